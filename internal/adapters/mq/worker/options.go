// Package worker scores queued submissions and persists the results.
package worker

import (
	"context"

	"github.com/okian/biotica/internal/adapters/mq/queue"
	"github.com/okian/biotica/pkg/logger"
)

// Option applies a configuration option to an InMemoryWorker. Options passed
// to NewPool apply to every worker in the pool.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPublisher sends every stored measurement to p.
func WithPublisher(p Publisher) Option {
	return func(w *InMemoryWorker) {
		if p != nil {
			w.publisher = p
		}
	}
}

// WithFailureHandler is called for every job that could not be scored or
// stored.
func WithFailureHandler(fn func(ctx context.Context, j queue.Job, err error)) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.onFailure = fn
		}
	}
}
