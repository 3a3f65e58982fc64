package storage

import (
	"context"
	"testing"
	"time"

	"deal_watcher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("deals"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pg, ok := store.(*PostgresStore)
	require.True(t, ok)
	return pg
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	s := setupPostgres(t)

	wm, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultWatermark, wm)

	require.NoError(t, s.RecordRun(ctx, time.Unix(1700000000, 0), 1))
	wm, err = s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), wm)

	d := &models.Deal{DealID: 42, Project: "City", House: 7, ObjectType: models.ObjectApartment, Object: 12}
	require.NoError(t, s.InsertDeal(ctx, d))
	assert.NotZero(t, d.ID)

	err = s.InsertDeal(ctx, &models.Deal{DealID: 42, ObjectType: models.ObjectApartment})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.ErrorIs(t, err, models.ErrPersistence)

	exists, err := s.DealExists(ctx, 42)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.GetDeal(ctx, "City", models.ObjectApartment, 7, 12)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.DealID)

	houses, err := s.ListHouses(ctx, "City", models.ObjectApartment)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, houses)

	_, err = s.InsertCommand(ctx, models.CmdSyncNow)
	require.NoError(t, err)
	cmds, err := s.GetPendingCommands(ctx)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	require.NoError(t, s.MarkCommandProcessed(ctx, cmds[0].ID))
}

func TestPostgresRunLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := setupPostgres(t)

	release, err := s.AcquireRunLock(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = s.AcquireRunLock(waitCtx)
	assert.Error(t, err, "second holder must block until the first releases")

	release()

	release2, err := s.AcquireRunLock(ctx)
	require.NoError(t, err)
	release2()
}
