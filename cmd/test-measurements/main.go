// Command test-measurements load tests a running scoring service and checks
// the served ranks against locally computed scores.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/okian/biotica/internal/loadtest"
	"github.com/okian/biotica/pkg/logger"
)

// Default configuration constants.
const (
	defaultMeasurements = 10000
	defaultSites        = 2500
	defaultTopN         = 50
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultDrainTimeout = 2 * time.Minute
	defaultPoll         = 250 * time.Millisecond
	defaultTestTimeout  = 10 * time.Minute
)

func main() {
	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		logger.Get().Error(ctx, "load test failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "test-measurements",
		Usage: "Submit random measurements concurrently and verify ranks and the leaderboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:9080", Usage: "Base URL of the service"},
			&cli.IntFlag{Name: "measurements", Aliases: []string{"n"}, Value: defaultMeasurements, Usage: "Measurements to submit"},
			&cli.IntFlag{Name: "sites", Value: defaultSites, Usage: "Distinct sites the measurements are spread over"},
			&cli.IntFlag{Name: "top", Value: defaultTopN, Usage: "Leaderboard entries to fetch"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU() * defaultWorkers, Usage: "Concurrent workers"},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "HTTP request timeout"},
			&cli.DurationFlag{Name: "drain-timeout", Value: defaultDrainTimeout, Usage: "How long to wait for scoring to finish"},
			&cli.Uint64Flag{Name: "seed", Usage: "Generator seed (default: from the clock)"},
			&cli.StringFlag{Name: "output", Usage: "Write the generated measurements to this JSON file"},
			&cli.BoolFlag{Name: "verbose", Usage: "Enable debug logging"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("verbose") {
				_ = logger.SetLevelString("debug")
			}
			ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
			defer cancel()

			cfg := &loadtest.Config{
				BaseURL:      cmd.String("url"),
				Measurements: int(cmd.Int("measurements")),
				Sites:        int(cmd.Int("sites")),
				TopN:         int(cmd.Int("top")),
				Workers:      int(cmd.Int("workers")),
				Timeout:      cmd.Duration("timeout"),
				DrainTimeout: cmd.Duration("drain-timeout"),
				PollInterval: defaultPoll,
				Seed:         cmd.Uint64("seed"),
				OutputFile:   cmd.String("output"),
			}
			_, _, err := loadtest.Run(ctx, cfg)
			return err
		},
	}
}
