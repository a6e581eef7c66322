package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// floatEqual compares two float64 values with a small tolerance for floating-point precision
func floatEqual(a, b float64) bool {
	const tolerance = 1e-10
	return math.Abs(a-b) < tolerance
}

func measurement(id, site string, score float64, at time.Duration) model.Measurement {
	return model.Measurement{
		ID:     id,
		SiteID: site,
		Parameters: ibr.Parameters{
			ibr.VCA: score,
		},
		Result: ibr.Result{
			Score:          score,
			Classification: ibr.Classify(score),
		},
		TS: base.Add(at),
	}
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	m := measurement("m1", "site-a", 0.82, 0)
	if err := store.Save(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	got, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SiteID != "site-a" || !floatEqual(got.Score(), 0.82) {
		t.Errorf("unexpected measurement %+v", got)
	}

	entry, err := store.Rank(ctx, "site-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 {
		t.Errorf("expected rank 1, got %d", entry.Rank)
	}
	if entry.MeasurementID != "m1" || entry.Classification != ibr.Functional {
		t.Errorf("unexpected entry %+v", entry)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].SiteID != "site-a" {
		t.Errorf("unexpected leaderboard %+v", entries)
	}
}

func TestTreapStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Rank(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.History(ctx, "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTreapStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	if err := store.Save(ctx, measurement("", "site", 0.5, 0)); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID for empty id, got %v", err)
	}
	if err := store.Save(ctx, measurement("m", "", 0.5, 0)); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID for empty site, got %v", err)
	}
	for _, n := range []int{0, -1} {
		if _, err := store.TopN(ctx, n); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("TopN(%d): expected ErrInvalidLimit, got %v", n, err)
		}
	}
}

func TestTreapStore_LatestMeasurementRanks(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	mustSave(t, store, measurement("a1", "a", 0.9, 0))
	mustSave(t, store, measurement("b1", "b", 0.7, 0))

	// A later, lower score replaces the site's standing.
	mustSave(t, store, measurement("a2", "a", 0.5, time.Hour))
	entry, err := store.Rank(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 2 || entry.MeasurementID != "a2" {
		t.Errorf("expected a at rank 2 with a2, got %+v", entry)
	}

	// An older measurement arriving late does not.
	mustSave(t, store, measurement("a0", "a", 0.99, -time.Hour))
	entry, _ = store.Rank(ctx, "a")
	if entry.MeasurementID != "a2" {
		t.Errorf("expected a2 to stay latest, got %s", entry.MeasurementID)
	}

	// Equal timestamps: the later save wins.
	mustSave(t, store, measurement("a3", "a", 0.95, time.Hour))
	entry, _ = store.Rank(ctx, "a")
	if entry.MeasurementID != "a3" || entry.Rank != 1 {
		t.Errorf("expected a3 at rank 1, got %+v", entry)
	}

	if count := store.Count(ctx); count != 2 {
		t.Errorf("expected 2 ranked sites, got %d", count)
	}
}

func TestTreapStore_CompetitionRanking(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	mustSave(t, store, measurement("m1", "s1", 0.9, 0))
	mustSave(t, store, measurement("m3", "s3", 0.8, 0))
	mustSave(t, store, measurement("m2", "s2", 0.8, 0))
	mustSave(t, store, measurement("m4", "s4", 0.7, 0))

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantSites := []string{"s1", "s2", "s3", "s4"}
	wantRanks := []int{1, 2, 2, 4}
	if len(entries) != len(wantSites) {
		t.Fatalf("expected %d entries, got %d", len(wantSites), len(entries))
	}
	for i, e := range entries {
		if e.SiteID != wantSites[i] || e.Rank != wantRanks[i] {
			t.Errorf("entry %d: expected %s@%d, got %s@%d", i, wantSites[i], wantRanks[i], e.SiteID, e.Rank)
		}
		single, err := store.Rank(ctx, e.SiteID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if single.Rank != e.Rank {
			t.Errorf("Rank(%s)=%d disagrees with TopN rank %d", e.SiteID, single.Rank, e.Rank)
		}
	}

	top2, _ := store.TopN(ctx, 2)
	if len(top2) != 2 || top2[1].SiteID != "s2" {
		t.Errorf("unexpected top 2: %+v", top2)
	}
}

func TestTreapStore_ReplaceByID(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	mustSave(t, store, measurement("m1", "a", 0.4, 0))
	mustSave(t, store, measurement("m1", "a", 0.6, 0))

	hist, err := store.History(ctx, "a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 1 || !floatEqual(hist[0].Score(), 0.6) {
		t.Errorf("expected single replaced measurement, got %+v", hist)
	}

	// Moving the id to another site removes the first site from the ranking.
	mustSave(t, store, measurement("m1", "b", 0.6, 0))
	if _, err := store.Rank(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected site a to be gone, got %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected 1 ranked site, got %d", count)
	}
}

func TestTreapStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	mustSave(t, store, measurement("m2", "a", 0.5, 2*time.Hour))
	mustSave(t, store, measurement("m0", "a", 0.3, 0))
	mustSave(t, store, measurement("m1", "a", 0.4, time.Hour))

	all, err := store.History(ctx, "a", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []string{"m0", "m1", "m2"} {
		if all[i].ID != want {
			t.Errorf("history[%d]: expected %s, got %s", i, want, all[i].ID)
		}
	}

	last, _ := store.History(ctx, "a", 2)
	if len(last) != 2 || last[0].ID != "m1" || last[1].ID != "m2" {
		t.Errorf("unexpected limited history %+v", last)
	}
}

func TestTreapStore_HistoryLimit(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx, WithHistoryLimit(2))
	defer store.Close()

	for i := 0; i < 4; i++ {
		mustSave(t, store, measurement(fmt.Sprintf("m%d", i), "a", 0.5, time.Duration(i)*time.Minute))
	}
	hist, _ := store.History(ctx, "a", 0)
	if len(hist) != 2 || hist[0].ID != "m2" {
		t.Errorf("expected the two newest, got %+v", hist)
	}
	if _, err := store.Get(ctx, "m0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected evicted measurement to be gone, got %v", err)
	}

	// Older than both retained measurements: rejected, nothing changes.
	if err := store.Save(ctx, measurement("early", "a", 0.9, -time.Hour)); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if _, err := store.Get(ctx, "early"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected stale measurement not to be stored, got %v", err)
	}
	hist, _ = store.History(ctx, "a", 0)
	if len(hist) != 2 || hist[0].ID != "m2" || hist[1].ID != "m3" {
		t.Errorf("expected history unchanged, got %+v", hist)
	}

	// Between the retained ones: accepted, the oldest is evicted.
	mustSave(t, store, measurement("mid", "a", 0.3, 150*time.Second))
	hist, _ = store.History(ctx, "a", 0)
	if len(hist) != 2 || hist[0].ID != "mid" || hist[1].ID != "m3" {
		t.Errorf("expected mid and m3, got %+v", hist)
	}

	// Replacing a retained measurement by id is never stale.
	mustSave(t, store, measurement("mid", "a", 0.2, 150*time.Second))
	if got, err := store.Get(ctx, "mid"); err != nil || !floatEqual(got.Result.Score, 0.2) {
		t.Errorf("expected replaced measurement, got %+v %v", got, err)
	}
}

func TestTreapStore_RandomizedAgainstSort(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	r := rand.New(rand.NewSource(7))
	latest := map[string]float64{}
	for i := 0; i < 2000; i++ {
		site := fmt.Sprintf("site-%03d", r.Intn(300))
		score := float64(r.Intn(50)) / 50
		mustSave(t, store, measurement(fmt.Sprintf("m-%d", i), site, score, time.Duration(i)*time.Second))
		latest[site] = score
	}

	entries, err := store.TopN(ctx, len(latest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != len(latest) {
		t.Fatalf("expected %d entries, got %d", len(latest), len(entries))
	}
	for i, e := range entries {
		if !floatEqual(e.Score, latest[e.SiteID]) {
			t.Errorf("%s: expected latest score %f, got %f", e.SiteID, latest[e.SiteID], e.Score)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if prev.Score < e.Score || (prev.Score == e.Score && prev.SiteID > e.SiteID) {
			t.Fatalf("leaderboard out of order at %d: %+v then %+v", i, prev, e)
		}
		above := 0
		for _, s := range latest {
			if s > e.Score {
				above++
			}
		}
		if e.Rank != above+1 {
			t.Errorf("%s: expected rank %d, got %d", e.SiteID, above+1, e.Rank)
		}
	}
}

func TestTreapStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer store.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				site := fmt.Sprintf("site-%d", i%20)
				_ = store.Save(ctx, measurement(fmt.Sprintf("w%d-%d", w, i), site, float64(i%10)/10, time.Duration(i)))
				_, _ = store.Rank(ctx, site)
				_, _ = store.TopN(ctx, 5)
			}
		}(w)
	}
	wg.Wait()

	if count := store.Count(ctx); count != 20 {
		t.Errorf("expected 20 sites, got %d", count)
	}
}

func mustSave(t *testing.T, s Store, m model.Measurement) {
	t.Helper()
	if err := s.Save(context.Background(), m); err != nil {
		t.Fatalf("save %s: %v", m.ID, err)
	}
}
