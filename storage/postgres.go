package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"deal_watcher/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runLockKey identifies the sync advisory lock; any constant shared by all instances works.
const runLockKey int64 = 7_305_291_001

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, persistErr("parse config", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, persistErr("create pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistErr("ping", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, persistErr("migrate", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS deal (
		id BIGSERIAL PRIMARY KEY,
		deal_id BIGINT NOT NULL UNIQUE,
		project TEXT NOT NULL DEFAULT '',
		house INTEGER NOT NULL,
		object_type TEXT NOT NULL,
		object INTEGER NOT NULL,
		facing TEXT,
		created_on TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		id BIGSERIAL PRIMARY KEY,
		last_checked_date BIGINT NOT NULL,
		row_count INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id UUID PRIMARY KEY,
		triggered_by TEXT,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		status TEXT,
		leads_fetched INTEGER DEFAULT 0,
		leads_qualifying INTEGER DEFAULT 0,
		deals_new INTEGER DEFAULT 0,
		enrichment_errors INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id BIGSERIAL PRIMARY KEY,
		command TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_deal_lookup ON deal(project, object_type, house, object);
	CREATE INDEX IF NOT EXISTS idx_sync_log_created ON sync_log(created_at, id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`)
	return err
}

// AcquireRunLock blocks until this process holds the sync advisory lock.
// The lock lives on a dedicated connection and is dropped with it.
func (s *PostgresStore) AcquireRunLock(ctx context.Context) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, persistErr("acquire lock connection", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, runLockKey); err != nil {
		conn.Release()
		return nil, persistErr("advisory lock", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, runLockKey); err != nil {
			log.Printf("Postgres: advisory unlock failed: %v", err)
			conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}

// =============================================================================
// Watermark log
// =============================================================================

func (s *PostgresStore) GetWatermark(ctx context.Context) (int64, error) {
	entry, err := s.LastSyncLog(ctx)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return models.DefaultWatermark, nil
	}
	return entry.LastCheckedDate, nil
}

func (s *PostgresStore) LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error) {
	var e models.SyncLogEntry
	err := s.pool.QueryRow(ctx, `
		SELECT id, last_checked_date, row_count, created_at, updated_at
		FROM sync_log ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&e.ID, &e.LastCheckedDate, &e.RowCount, &e.CreatedAt, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("read sync log", err)
	}
	return &e, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, checkedAt time.Time, rowCount int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_log (last_checked_date, row_count) VALUES ($1, $2)`,
		checkedAt.Unix(), rowCount)
	if err != nil {
		return persistErr("record run", err)
	}
	return nil
}

// =============================================================================
// Deals
// =============================================================================

func (s *PostgresStore) DealExists(ctx context.Context, dealID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM deal WHERE deal_id = $1)`, dealID).Scan(&exists)
	if err != nil {
		return false, persistErr("deal exists", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertDeal(ctx context.Context, d *models.Deal) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO deal (deal_id, project, house, object_type, object, facing, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		d.DealID, d.Project, d.House, string(d.ObjectType), d.Object, d.Facing, d.CreatedOn,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return persistErr("insert deal", ErrDuplicateKey)
		}
		return persistErr("insert deal", err)
	}
	return nil
}

const pgDealColumns = `id, deal_id, project, house, object_type, object, facing, created_on, created_at, updated_at`

func scanPgDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	var objectType string
	var facing *string
	var createdOn *time.Time
	if err := row.Scan(&d.ID, &d.DealID, &d.Project, &d.House, &objectType, &d.Object,
		&facing, &createdOn, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ObjectType = models.ObjectType(objectType)
	if facing != nil {
		d.Facing = *facing
	}
	if createdOn != nil {
		d.CreatedOn = createdOn.UTC()
	}
	return &d, nil
}

func (s *PostgresStore) ListDeals(ctx context.Context, objectType models.ObjectType) ([]models.Deal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgDealColumns+` FROM deal
		WHERE object_type = $1 ORDER BY project, house, object`, string(objectType))
	if err != nil {
		return nil, persistErr("list deals", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanPgDeal(rows)
		if err != nil {
			return nil, persistErr("list deals", err)
		}
		deals = append(deals, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list deals", err)
	}
	return deals, nil
}

func (s *PostgresStore) ListHouses(ctx context.Context, project string, objectType models.ObjectType) ([]int, error) {
	return s.queryInts(ctx, "list houses", `
		SELECT DISTINCT house FROM deal
		WHERE project = $1 AND object_type = $2 ORDER BY house`, project, string(objectType))
}

func (s *PostgresStore) ListObjects(ctx context.Context, project string, objectType models.ObjectType, house int) ([]int, error) {
	return s.queryInts(ctx, "list objects", `
		SELECT object FROM deal
		WHERE project = $1 AND object_type = $2 AND house = $3 ORDER BY object`, project, string(objectType), house)
}

func (s *PostgresStore) queryInts(ctx context.Context, op, query string, args ...any) ([]int, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, project string, objectType models.ObjectType, house, object int) (*models.Deal, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pgDealColumns+` FROM deal
		WHERE project = $1 AND object_type = $2 AND house = $3 AND object = $4
		ORDER BY id LIMIT 1`, project, string(objectType), house, object)

	d, err := scanPgDeal(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get deal", err)
	}
	return d, nil
}

// =============================================================================
// Sync runs
// =============================================================================

func (s *PostgresStore) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_runs (run_id, triggered_by, started_at, status)
		VALUES ($1, $2, $3, $4)`,
		run.RunID, run.Trigger, run.StartedAt, string(run.Status))
	if err != nil {
		return persistErr("create sync run", err)
	}
	return nil
}

func (s *PostgresStore) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_runs SET finished_at = $2, status = $3, leads_fetched = $4, leads_qualifying = $5,
			deals_new = $6, enrichment_errors = $7, error = $8
		WHERE run_id = $1`,
		run.RunID, run.FinishedAt, string(run.Status), run.LeadsFetched, run.LeadsQualifying,
		run.DealsNew, run.EnrichmentErrors, run.Error)
	if err != nil {
		return persistErr("finish sync run", err)
	}
	return nil
}

func (s *PostgresStore) RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, triggered_by, started_at, finished_at, status, leads_fetched, leads_qualifying,
			deals_new, enrichment_errors, COALESCE(error, '')
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, persistErr("recent sync runs", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var status string
		if err := rows.Scan(&run.RunID, &run.Trigger, &run.StartedAt, &run.FinishedAt, &status,
			&run.LeadsFetched, &run.LeadsQualifying, &run.DealsNew, &run.EnrichmentErrors, &run.Error); err != nil {
			return nil, persistErr("recent sync runs", err)
		}
		run.Status = models.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("recent sync runs", err)
	}
	return runs, nil
}

// =============================================================================
// Commands
// =============================================================================

func (s *PostgresStore) InsertCommand(ctx context.Context, cmd models.CommandType) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO commands (command) VALUES ($1) RETURNING id`, string(cmd)).Scan(&id)
	if err != nil {
		return 0, persistErr("insert command", err)
	}
	return id, nil
}

func (s *PostgresStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, persistErr("pending commands", err)
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var name string
		if err := rows.Scan(&cmd.ID, &name, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, persistErr("pending commands", err)
		}
		cmd.Command = models.CommandType(name)
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("pending commands", err)
	}
	return cmds, nil
}

func (s *PostgresStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE commands SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return persistErr("mark command", err)
	}
	return nil
}
