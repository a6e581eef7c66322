package service

import (
	"github.com/okian/biotica/internal/adapters/mq/worker"
	"github.com/okian/biotica/internal/adapters/repository"
	"github.com/okian/biotica/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of scoring workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending submissions.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHistoryLimit caps the measurements kept per site by the memory store.
func WithHistoryLimit(limit int) Option {
	return func(s *Service) {
		if limit >= 0 {
			s.historyLimit = limit
		}
	}
}

// WithStoreDriver selects the repository opened by Start.
func WithStoreDriver(driver, dsn string) Option {
	return func(s *Service) {
		s.storeDriver = driver
		s.storeDSN = dsn
	}
}

// WithStore uses an already opened repository. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithPublisher receives every stored measurement.
func WithPublisher(p worker.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithTippingWindow sets the default rolling window of the tipping-point check.
func WithTippingWindow(window int) Option {
	return func(s *Service) {
		if window > 0 {
			s.tippingWindow = window
		}
	}
}

// WithNoiseSD sets the observation noise of Bayesian weight estimation.
func WithNoiseSD(sd float64) Option {
	return func(s *Service) {
		if sd > 0 {
			s.noiseSD = sd
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
