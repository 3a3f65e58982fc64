package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deal_watcher/models"
)

var (
	// ErrDuplicateKey is returned when a deal id is already persisted. Deals are append-only.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store is the record store behind the sync: watermark log, deals, run bookkeeping and commands.
type Store interface {
	GetWatermark(ctx context.Context) (int64, error)
	RecordRun(ctx context.Context, checkedAt time.Time, rowCount int) error
	LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error)

	DealExists(ctx context.Context, dealID int64) (bool, error)
	InsertDeal(ctx context.Context, d *models.Deal) error
	ListDeals(ctx context.Context, objectType models.ObjectType) ([]models.Deal, error)
	ListHouses(ctx context.Context, project string, objectType models.ObjectType) ([]int, error)
	ListObjects(ctx context.Context, project string, objectType models.ObjectType, house int) ([]int, error)
	GetDeal(ctx context.Context, project string, objectType models.ObjectType, house, object int) (*models.Deal, error)

	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
	RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)

	InsertCommand(ctx context.Context, cmd models.CommandType) (int64, error)
	GetPendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error

	Close() error
}

// Open picks the backend from the URL scheme: postgres:// or postgresql:// selects
// Postgres, anything else is a SQLite path (an optional "sqlite:" prefix is stripped).
func Open(ctx context.Context, dbURL string) (Store, error) {
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		return NewPostgresStore(ctx, dbURL)
	}

	path := strings.TrimPrefix(dbURL, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	return NewSQLiteStore(path)
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}
