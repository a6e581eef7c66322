// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - External errors are wrapped with ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"

	"github.com/okian/biotica/internal/adapters/repository"
)

// minTippingWindow is the smallest rolling window the early-warning check accepts.
const minTippingWindow = 3

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the measurement id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxListLimit caps ?limit on /leaderboard and site history.
	MaxListLimit int `koanf:"max_list_limit"`

	// StoreDriver selects the repository: memory, sqlite, postgres or mysql.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// HistoryLimit caps measurements kept per site by the memory store; 0 keeps all.
	HistoryLimit int `koanf:"history_limit"`

	// WSEnabled serves the websocket live feed at /ws.
	WSEnabled bool `koanf:"ws_enabled"`

	// TippingWindow is the default rolling window of the early-warning check.
	TippingWindow int `koanf:"tipping_window"`

	// CORSOrigin is sent as Access-Control-Allow-Origin.
	CORSOrigin string `koanf:"cors_origin"`

	// RidgeNoiseSD is the observation noise of Bayesian weight estimation.
	RidgeNoiseSD float64 `koanf:"ridge_noise_sd"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:      "info",
		Addr:          ":9080",
		QueueSize:     10_000,
		WorkerCount:   runtime.NumCPU() * 2,
		DedupeSize:    100_000,
		MaxListLimit:  100,
		StoreDriver:   repository.DriverMemory,
		WSEnabled:     true,
		TippingWindow: 24,
		CORSOrigin:    "*",
		RidgeNoiseSD:  0.05,
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.MaxListLimit < 1:
		return fmt.Errorf("%w: max_list_limit must be positive, got %d", ErrInvalidConfig, c.MaxListLimit)
	case c.HistoryLimit < 0:
		return fmt.Errorf("%w: history_limit must not be negative", ErrInvalidConfig)
	case c.TippingWindow < minTippingWindow:
		return fmt.Errorf("%w: tipping_window must be at least %d, got %d", ErrInvalidConfig, minTippingWindow, c.TippingWindow)
	case c.RidgeNoiseSD <= 0:
		return fmt.Errorf("%w: ridge_noise_sd must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case repository.DriverMemory:
	case repository.DriverSQLite, repository.DriverPostgres, repository.DriverMySQL:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for driver %q", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
