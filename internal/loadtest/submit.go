package loadtest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/biotica/pkg/logger"
)

const progressInterval = time.Second

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// submitAll posts every measurement with at most cfg.Workers in flight.
func submitAll(ctx context.Context, cfg *Config, c *client, ms []Measurement, stats *Stats) error {
	log := logger.Get().Named("loadtest")
	log.Info(ctx, "submitting measurements",
		logger.Int("count", len(ms)),
		logger.Int("workers", cfg.Workers))

	var submitted, accepted, duplicate, failed atomic.Int64
	var lastReport atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, m := range ms {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch submitOne(gctx, c, m) {
			case outcomeAccepted:
				accepted.Add(1)
			case outcomeDuplicate:
				duplicate.Add(1)
			default:
				failed.Add(1)
			}
			n := submitted.Add(1)

			now := time.Now().UnixNano()
			last := lastReport.Load()
			if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
				log.Info(gctx, "progress",
					logger.Int("submitted", int(n)),
					logger.Int("total", len(ms)),
					logger.Int("failed", int(failed.Load())))
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed))

	if err != nil {
		return err
	}
	return ctx.Err()
}

func submitOne(ctx context.Context, c *client, m Measurement) outcome {
	code, body, err := c.postJSON(ctx, "/measurements", m)
	if err != nil {
		logger.Get().Debug(ctx, "submit failed", logger.String("measurementId", m.MeasurementID), logger.Error(err))
		return outcomeFailed
	}
	var ack ackResponse
	_ = json.Unmarshal(body, &ack)
	switch {
	case code == http.StatusAccepted:
		return outcomeAccepted
	case code == http.StatusOK && ack.Duplicate:
		return outcomeDuplicate
	default:
		logger.Get().Debug(ctx, "submit rejected",
			logger.String("measurementId", m.MeasurementID),
			logger.Int("status", code),
			logger.String("body", string(body)))
		return outcomeFailed
	}
}
