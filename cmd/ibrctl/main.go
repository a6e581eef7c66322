// Command ibrctl computes IBR scores and runs the statistical diagnostics on
// local JSON and CSV files.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/biotica/pkg/logger"
)

func main() {
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		logger.Get().Error(ctx, "fatal error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
