// Package repository persists scored measurements and ranks sites by their
// latest IBR score.
package repository

import (
	"context"
	"time"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
)

// Entry is a leaderboard row: a site and its latest measurement.
type Entry struct {
	Rank           int       `json:"rank"`
	SiteID         string    `json:"site_id"`
	Score          float64   `json:"ibr"`
	Classification ibr.Band  `json:"classification"`
	MeasurementID  string    `json:"measurement_id"`
	TS             time.Time `json:"timestamp"`
}

// Store provides read/write access to measurements and the site ranking.
//
// Ranking uses a site's most recent measurement (by TS, ties broken by the
// later save). Sites are ordered by score DESC then site id ASC; equal scores
// share a rank and the following rank skips accordingly (1, 2, 2, 4).
type Store interface {
	// Save stores m, replacing any measurement with the same id.
	Save(ctx context.Context, m model.Measurement) error

	// Get returns a measurement by id or ErrNotFound.
	Get(ctx context.Context, id string) (model.Measurement, error)

	// History returns up to limit most recent measurements of a site,
	// oldest first. limit <= 0 returns all of them.
	History(ctx context.Context, siteID string, limit int) ([]model.Measurement, error)

	// Rank returns the leaderboard entry of a site or ErrNotFound.
	Rank(ctx context.Context, siteID string) (Entry, error)

	// TopN returns the best n sites. n must be positive.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of ranked sites.
	Count(ctx context.Context) int

	Close() error
}

// assignRanks sets competition ranks on entries already in leaderboard order.
func assignRanks(entries []Entry, first int) {
	for i := range entries {
		if i > 0 && toFixedPoint(entries[i].Score) == toFixedPoint(entries[i-1].Score) {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = first + i
	}
}

// rankKey is score on the fixed-point grid the treap ranks by, so scores that
// tie in memory also tie in SQL.
func rankKey(score float64) float64 {
	return float64(toFixedPoint(score)) / scoreScale
}

func entryOf(m model.Measurement) Entry {
	return Entry{
		SiteID:         m.SiteID,
		Score:          m.Result.Score,
		Classification: m.Result.Classification,
		MeasurementID:  m.ID,
		TS:             m.TS,
	}
}
