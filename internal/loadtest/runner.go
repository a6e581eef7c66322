package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/biotica/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Validate checks that cfg can drive a run.
func (cfg *Config) Validate() error {
	switch {
	case cfg.BaseURL == "":
		return fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	case cfg.Measurements < 1:
		return fmt.Errorf("%w: measurements must be positive, got %d", ErrInvalidConfig, cfg.Measurements)
	case cfg.Sites < 1:
		return fmt.Errorf("%w: sites must be positive, got %d", ErrInvalidConfig, cfg.Sites)
	case cfg.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, cfg.Workers)
	case cfg.TopN < 1:
		return fmt.Errorf("%w: top must be positive, got %d", ErrInvalidConfig, cfg.TopN)
	case cfg.Timeout <= 0 || cfg.DrainTimeout <= 0 || cfg.PollInterval <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

// Run generates measurements, submits them, waits for scoring to finish and
// verifies the served ranks and leaderboard against local computation. A
// verification failure returns the report together with ErrVerification.
func Run(ctx context.Context, cfg *Config) (stats Stats, rep *Report, err error) {
	if err := cfg.Validate(); err != nil {
		return stats, nil, err
	}
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	log := logger.Get().Named("loadtest")
	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("measurements", cfg.Measurements),
		logger.Int("sites", cfg.Sites),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return stats, nil, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	ms := newGenerator(seed, start).generate(cfg.Measurements, cfg.Sites)
	stats.Generated = len(ms)
	log.Debug(ctx, "generated measurements", logger.Int("count", len(ms)), logger.Any("seed", seed))

	if cfg.OutputFile != "" {
		if err := saveMeasurements(cfg.OutputFile, ms); err != nil {
			log.Warn(ctx, "failed to save measurements", logger.Error(err))
		}
	}

	before, err := fetchStatus(ctx, c)
	if err != nil {
		return stats, nil, fmt.Errorf("status: %w", err)
	}
	if err := submitAll(ctx, cfg, c, ms, &stats); err != nil {
		return stats, nil, fmt.Errorf("submit: %w", err)
	}
	if err := waitForDrain(ctx, cfg, c, before.Processed+int64(stats.Accepted)); err != nil {
		return stats, nil, err
	}

	latest := expectedLatest(ms)
	ranks, misses, err := fetchRanks(ctx, cfg, c, sortedSites(latest))
	if err != nil {
		return stats, nil, fmt.Errorf("ranks: %w", err)
	}
	stats.RanksRetrieved = len(ranks)

	board, err := fetchLeaderboard(ctx, cfg, c)
	if err != nil {
		return stats, nil, fmt.Errorf("leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(board)

	rep = verify(latest, ranks, board)
	if stats.Failed == 0 && misses > 0 {
		rep.addf("%d sites had no rank after every submission was accepted", misses)
	}
	stats.ScoreMismatches = rep.Mismatches
	stats.Duration = time.Since(start)

	logStats(ctx, log, stats)
	if !rep.OK() {
		for _, p := range rep.Problems {
			log.Warn(ctx, "mismatch", logger.String("problem", p))
		}
		return stats, rep, fmt.Errorf("%w: %d problems: %s", ErrVerification, rep.Mismatches, strings.Join(rep.Problems, "; "))
	}
	log.Info(ctx, "load test passed", logger.Int("sitesChecked", rep.Checked))
	return stats, rep, nil
}

// saveMeasurements writes ms as a JSON array.
func saveMeasurements(path string, ms []Measurement) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ms); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode measurements: %w", err)
	}
	return f.Close()
}

func logStats(ctx context.Context, log logger.Logger, s Stats) {
	log.Info(ctx, "final statistics",
		logger.Int("generated", s.Generated),
		logger.Int("submitted", s.Submitted),
		logger.Int("accepted", s.Accepted),
		logger.Int("duplicate", s.Duplicate),
		logger.Int("failed", s.Failed),
		logger.Int("ranksRetrieved", s.RanksRetrieved),
		logger.Int("leaderboardEntries", s.LeaderboardEntries),
		logger.Duration("duration", s.Duration),
		logger.Float64("perSecond", s.Throughput()),
		logger.Float64("successRate", s.SuccessRate()))
}
