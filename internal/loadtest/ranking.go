package loadtest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/biotica/pkg/logger"
)

type serviceStatus struct {
	QueueLength int   `json:"queueLength"`
	BusyWorkers int   `json:"busyWorkers"`
	TotalSites  int   `json:"totalSites"`
	Processed   int64 `json:"processed"`
}

func fetchStatus(ctx context.Context, c *client) (serviceStatus, error) {
	var st serviceStatus
	err := c.getJSON(ctx, "/status", &st)
	return st, err
}

// waitForDrain polls /status until at least target measurements have been
// processed, the queue is empty and no worker is busy.
func waitForDrain(ctx context.Context, cfg *Config, c *client, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		st, err := fetchStatus(ctx, c)
		if err == nil && st.Processed >= target && st.QueueLength == 0 && st.BusyWorkers == 0 {
			logger.Get().Info(ctx, "queue drained", logger.Int("sites", st.TotalSites))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrDrainTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// fetchRanks asks /rank for every site. Sites that fail are left out and
// counted in the returned miss count.
func fetchRanks(ctx context.Context, cfg *Config, c *client, sites []string) (map[string]Entry, int, error) {
	logger.Get().Info(ctx, "retrieving ranks", logger.Int("sites", len(sites)))

	var (
		mu     sync.Mutex
		ranks  = make(map[string]Entry, len(sites))
		misses int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, site := range sites {
		g.Go(func() error {
			var e Entry
			err := c.getJSON(gctx, "/rank/"+url.PathEscape(site), &e)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				misses++
				logger.Get().Debug(gctx, "rank lookup failed", logger.String("siteId", site), logger.Error(err))
				return nil
			}
			ranks[site] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return ranks, misses, ctx.Err()
}

func fetchLeaderboard(ctx context.Context, cfg *Config, c *client) ([]Entry, error) {
	var board []Entry
	if err := c.getJSON(ctx, fmt.Sprintf("/leaderboard?limit=%d", cfg.TopN), &board); err != nil {
		return nil, err
	}
	return board, nil
}

func sortedSites(latest map[string]Measurement) []string {
	out := make([]string, 0, len(latest))
	for site := range latest {
		out = append(out, site)
	}
	sort.Strings(out)
	return out
}
