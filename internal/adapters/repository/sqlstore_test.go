package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "biotica.db")
	s, err := OpenSQLStore(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	m := measurement("m1", "plot-7", 0.82, 0)
	m.Result = ibr.Compute(ibr.Parameters{ibr.VCA: 0.8, ibr.MDI: 0.9})
	require.NoError(t, s.Save(ctx, m))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "plot-7", got.SiteID)
	assert.InDelta(t, m.Result.Score, got.Score(), 1e-12)
	assert.Equal(t, m.Result.Classification, got.Result.Classification)
	assert.Equal(t, m.Parameters, got.Parameters)
	assert.True(t, m.TS.Equal(got.TS))

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreRanking(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	for _, m := range []struct {
		id, site string
		score    float64
		at       time.Duration
	}{
		{"m1", "s1", 0.9, 0},
		{"m2", "s2", 0.8, 0},
		{"m3", "s3", 0.8, 0},
		{"m4", "s4", 0.7, 0},
		{"m0", "s4", 0.95, -time.Hour},
	} {
		require.NoError(t, s.Save(ctx, measurement(m.id, m.site, m.score, m.at)))
	}

	assert.Equal(t, 4, s.Count(ctx))

	top, err := s.TopN(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 4)
	var sites []string
	var ranks []int
	for _, e := range top {
		sites = append(sites, e.SiteID)
		ranks = append(ranks, e.Rank)
	}
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, sites)
	assert.Equal(t, []int{1, 2, 2, 4}, ranks)

	e, err := s.Rank(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Rank)
	assert.Equal(t, "m3", e.MeasurementID)

	e, err = s.Rank(ctx, "s4")
	require.NoError(t, err)
	assert.Equal(t, "m4", e.MeasurementID, "older measurement must not displace the latest")

	_, err = s.Rank(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.TopN(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestSQLStoreTiesMatchTreap(t *testing.T) {
	ctx := context.Background()
	sqlStore := newSQLiteStore(t)
	treap := NewTreapStore(ctx)
	defer treap.Close()

	// 0.8 and 0.8+1e-15 differ as floats but share a fixed-point score.
	for _, m := range []model.Measurement{
		measurement("m1", "s1", 0.8+1e-15, 0),
		measurement("m2", "s2", 0.8, 0),
		measurement("m3", "s3", 0.7, 0),
	} {
		require.NoError(t, sqlStore.Save(ctx, m))
		require.NoError(t, treap.Save(ctx, m))
	}

	for _, store := range []Store{sqlStore, treap} {
		top, err := store.TopN(ctx, 10)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, []string{"s1", "s2", "s3"}, []string{top[0].SiteID, top[1].SiteID, top[2].SiteID})
		assert.Equal(t, []int{1, 1, 3}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

		for _, site := range []string{"s1", "s2"} {
			e, err := store.Rank(ctx, site)
			require.NoError(t, err)
			assert.Equal(t, 1, e.Rank, site)
		}
	}

	got, err := sqlStore.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 0.8+1e-15, got.Score(), "stored result keeps full precision")
}

func TestSQLStoreReplaceMovesSite(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.Save(ctx, measurement("m1", "a", 0.4, 0)))
	require.NoError(t, s.Save(ctx, measurement("m1", "b", 0.6, 0)))

	_, err := s.Rank(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	e, err := s.Rank(ctx, "b")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, e.Score, 1e-12)
	assert.Equal(t, 1, s.Count(ctx))
}

func TestSQLStoreHistory(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.Save(ctx, measurement("m2", "a", 0.5, 2*time.Hour)))
	require.NoError(t, s.Save(ctx, measurement("m0", "a", 0.3, 0)))
	require.NoError(t, s.Save(ctx, measurement("m1", "a", 0.4, time.Hour)))

	all, err := s.History(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "m0", all[0].ID)
	assert.Equal(t, "m2", all[2].ID)

	last, err := s.History(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "m1", last[0].ID)

	_, err = s.History(ctx, "none", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreInvalid(t *testing.T) {
	s := newSQLiteStore(t)
	assert.ErrorIs(t, s.Save(context.Background(), measurement("", "a", 0.5, 0)), ErrInvalidID)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	mem, err := NewStore(ctx, "", "")
	require.NoError(t, err)
	assert.IsType(t, &TreapStore{}, mem)
	require.NoError(t, mem.Close())

	lite, err := NewStore(ctx, DriverSQLite, filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, lite)
	require.NoError(t, lite.Close())

	_, err = NewStore(ctx, "oracle", "dsn")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)

	_, err = NewStore(ctx, DriverSQLite, "")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	my := &SQLStore{driver: DriverMySQL}
	assert.Contains(t, my.upsert("sites", "site_id", siteCols), "ON DUPLICATE KEY UPDATE measurement_id = VALUES(measurement_id)")
	lite := &SQLStore{driver: DriverSQLite}
	assert.Contains(t, lite.upsert("sites", "site_id", siteCols), "ON CONFLICT (site_id) DO UPDATE SET measurement_id = excluded.measurement_id")
}
