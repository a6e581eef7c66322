//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestSQLStorePostgres(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("biotica"),
		postgres.WithUsername("biotica"),
		postgres.WithPassword("biotica"),
		postgres.BasicWaitStrategies(),
	)
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := OpenSQLStore(ctx, DriverPostgres, dsn)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, measurement("m1", "s1", 0.9, 0)))
	require.NoError(t, s.Save(ctx, measurement("m2", "s2", 0.8, 0)))
	require.NoError(t, s.Save(ctx, measurement("m3", "s2", 0.95, time.Minute)))

	top, err := s.TopN(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "s2", top[0].SiteID)
	assert.Equal(t, "m3", top[0].MeasurementID)

	e, err := s.Rank(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Rank)

	hist, err := s.History(ctx, "s2", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
