package repository

import "time"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithHistoryLimit caps the measurements kept per site; older ones are
// dropped. Once a site is full, Save rejects a measurement older than all of
// its retained ones with ErrStale. Zero keeps everything.
func WithHistoryLimit(limit int) Option {
	return func(s *TreapStore) {
		if limit >= 0 {
			s.historyLimit = limit
		}
	}
}
