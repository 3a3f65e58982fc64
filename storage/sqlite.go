package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"deal_watcher/models"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, persistErr("open sqlite", err)
	}
	// single writer; the api and the scheduler share this handle
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, persistErr("migrate", err)
	}

	return store, nil
}

// sqliteDSN appends the connection pragmas, keeping any query the path already has.
func sqliteDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		deal_id INTEGER NOT NULL UNIQUE,
		project TEXT NOT NULL DEFAULT '',
		house INTEGER NOT NULL,
		object_type TEXT NOT NULL,
		object INTEGER NOT NULL,
		facing TEXT,
		created_on DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		last_checked_date INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id TEXT PRIMARY KEY,
		triggered_by TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		leads_fetched INTEGER DEFAULT 0,
		leads_qualifying INTEGER DEFAULT 0,
		deals_new INTEGER DEFAULT 0,
		enrichment_errors INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_deal_lookup ON deal(project, object_type, house, object);
	CREATE INDEX IF NOT EXISTS idx_sync_log_created ON sync_log(created_at, id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_runs_started ON sync_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Watermark log
// =============================================================================

func (s *SQLiteStore) GetWatermark(ctx context.Context) (int64, error) {
	entry, err := s.LastSyncLog(ctx)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return models.DefaultWatermark, nil
	}
	return entry.LastCheckedDate, nil
}

func (s *SQLiteStore) LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error) {
	var e models.SyncLogEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, last_checked_date, row_count, created_at, updated_at
		FROM sync_log ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&e.ID, &e.LastCheckedDate, &e.RowCount, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("read sync log", err)
	}
	return &e, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, checkedAt time.Time, rowCount int) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (last_checked_date, row_count, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		checkedAt.Unix(), rowCount, now, now)
	if err != nil {
		return persistErr("record run", err)
	}
	return nil
}

// =============================================================================
// Deals
// =============================================================================

func (s *SQLiteStore) DealExists(ctx context.Context, dealID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM deal WHERE deal_id = ? LIMIT 1`, dealID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, persistErr("deal exists", err)
	}
	return true, nil
}

func (s *SQLiteStore) InsertDeal(ctx context.Context, d *models.Deal) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO deal (deal_id, project, house, object_type, object, facing, created_on, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DealID, d.Project, d.House, d.ObjectType, d.Object, d.Facing, d.CreatedOn.UTC(), now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return persistErr("insert deal", ErrDuplicateKey)
		}
		return persistErr("insert deal", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return persistErr("insert deal", err)
	}
	d.ID = id
	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

const dealColumns = `id, deal_id, project, house, object_type, object, facing, created_on, created_at, updated_at`

func scanDeal(scan func(dest ...any) error) (*models.Deal, error) {
	var d models.Deal
	var facing sql.NullString
	var createdOn sql.NullTime
	if err := scan(&d.ID, &d.DealID, &d.Project, &d.House, &d.ObjectType, &d.Object,
		&facing, &createdOn, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Facing = facing.String
	if createdOn.Valid {
		d.CreatedOn = createdOn.Time
	}
	return &d, nil
}

func (s *SQLiteStore) ListDeals(ctx context.Context, objectType models.ObjectType) ([]models.Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dealColumns+` FROM deal
		WHERE object_type = ? ORDER BY project, house, object`, objectType)
	if err != nil {
		return nil, persistErr("list deals", err)
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows.Scan)
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

func (s *SQLiteStore) ListHouses(ctx context.Context, project string, objectType models.ObjectType) ([]int, error) {
	return s.queryInts(ctx, "list houses", `
		SELECT DISTINCT house FROM deal
		WHERE project = ? AND object_type = ? ORDER BY house`, project, objectType)
}

func (s *SQLiteStore) ListObjects(ctx context.Context, project string, objectType models.ObjectType, house int) ([]int, error) {
	return s.queryInts(ctx, "list objects", `
		SELECT object FROM deal
		WHERE project = ? AND object_type = ? AND house = ? ORDER BY object`, project, objectType, house)
}

func (s *SQLiteStore) queryInts(ctx context.Context, op, query string, args ...any) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, persistErr(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return out, nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, project string, objectType models.ObjectType, house, object int) (*models.Deal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dealColumns+` FROM deal
		WHERE project = ? AND object_type = ? AND house = ? AND object = ?
		ORDER BY id LIMIT 1`, project, objectType, house, object)

	d, err := scanDeal(row.Scan)
	if err == sql.ErrNoRows {
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

func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, triggered_by, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.RunID.String(), run.Trigger, run.StartedAt.UTC(), run.Status)
	if err != nil {
		return persistErr("create sync run", err)
	}
	return nil
}

func (s *SQLiteStore) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	var finished *time.Time
	if run.FinishedAt != nil {
		t := run.FinishedAt.UTC()
		finished = &t
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET finished_at = ?, status = ?, leads_fetched = ?, leads_qualifying = ?,
			deals_new = ?, enrichment_errors = ?, error = ?
		WHERE run_id = ?`,
		finished, run.Status, run.LeadsFetched, run.LeadsQualifying,
		run.DealsNew, run.EnrichmentErrors, run.Error, run.RunID.String())
	if err != nil {
		return persistErr("finish sync run", err)
	}
	return nil
}

func (s *SQLiteStore) RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, triggered_by, started_at, finished_at, status, leads_fetched, leads_qualifying,
			deals_new, enrichment_errors, error
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistErr("recent sync runs", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var runID string
		var finished sql.NullTime
		var errText sql.NullString
		if err := rows.Scan(&runID, &run.Trigger, &run.StartedAt, &finished, &run.Status, &run.LeadsFetched,
			&run.LeadsQualifying, &run.DealsNew, &run.EnrichmentErrors, &errText); err != nil {
			return nil, persistErr("recent sync runs", err)
		}
		run.RunID, _ = uuid.Parse(runID)
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		run.Error = errText.String
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

func (s *SQLiteStore) InsertCommand(ctx context.Context, cmd models.CommandType) (int64, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO commands (command, created_at) VALUES (?, ?)`, cmd, time.Now().UTC())
	if err != nil {
		return 0, persistErr("insert command", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands(ctx context.Context) ([]models.Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, persistErr("pending commands", err)
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(&cmd.ID, &cmd.Command, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, persistErr("pending commands", err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return persistErr("mark command", err)
	}
	return nil
}
