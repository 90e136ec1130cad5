package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/siteopt/internal/result"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS optimization_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	params     TEXT NOT NULL,
	patches    INTEGER NOT NULL DEFAULT 0,
	runs       INTEGER NOT NULL DEFAULT 0,
	selected   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS selection_records (
	run_id                TEXT NOT NULL REFERENCES optimization_runs(id) ON DELETE CASCADE,
	rank                  INTEGER NOT NULL,
	patch_id              INTEGER NOT NULL,
	run                   INTEGER NOT NULL,
	centroid_x            REAL NOT NULL,
	centroid_y            REAL NOT NULL,
	report_centroid_x     REAL NOT NULL,
	report_centroid_y     REAL NOT NULL,
	bbox                  TEXT NOT NULL,
	landcover_suitability REAL NOT NULL,
	slope                 REAL NOT NULL,
	soil                  REAL NOT NULL,
	flood_risk            REAL NOT NULL,
	urban_proximity       REAL NOT NULL,
	overall_score         REAL NOT NULL,
	PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_optimization_runs_status ON optimization_runs(status);
CREATE INDEX IF NOT EXISTS idx_selection_records_patch ON selection_records(patch_id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a running entry with params stored as JSON.
func (s *SQLiteStore) CreateRun(ctx context.Context, params any) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal params")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimization_runs (id, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(RunStatusRunning), string(paramsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &Run{
		ID:        id,
		Status:    RunStatusRunning,
		Params:    paramsJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FinishRun records the outcome and the selection records in one transaction.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, summary Summary, records []result.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin finish run")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE optimization_runs SET status = ?, patches = ?, runs = ?, selected = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(summary.Status), summary.Patches, summary.Runs, len(records), summary.Error, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", id)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return err
	}

	if len(records) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)+1), ", ")
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO selection_records (run_id, `+strings.Join(recordColumns, ", ")+`) VALUES (`+placeholders+`)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert record")
		}
		defer func() { _ = stmt.Close() }()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, recordValues(id, r)...); err != nil {
				return eris.Wrapf(err, "sqlite: insert record rank %d", r.Rank)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit finish run")
}

// GetRun loads one run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, params, patches, runs, selected, error, created_at, updated_at
		 FROM optimization_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, params, patches, runs, selected, error, created_at, updated_at
		FROM optimization_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOf(filter))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// ListRecords returns a run's selection records in rank order.
func (s *SQLiteStore) ListRecords(ctx context.Context, id string) ([]result.Record, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(recordColumns, ", ")+` FROM selection_records WHERE run_id = ? ORDER BY rank`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer func() { _ = rows.Close() }()

	var out []result.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var status, params string
	if err := row.Scan(&r.ID, &status, &params, &r.Patches, &r.Runs, &r.Selected, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.Params = json.RawMessage(params)
	return &r, nil
}
