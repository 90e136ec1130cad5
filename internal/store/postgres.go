package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteopt/internal/db"
	"github.com/sells-group/siteopt/internal/result"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to Postgres and returns a store owning the pool.
func NewPostgres(ctx context.Context, url string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, url, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close leaves the pool open.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS optimization_runs (
	id         UUID PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	params     JSONB NOT NULL,
	patches    INTEGER NOT NULL DEFAULT 0,
	runs       INTEGER NOT NULL DEFAULT 0,
	selected   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS selection_records (
	run_id                UUID NOT NULL REFERENCES optimization_runs(id) ON DELETE CASCADE,
	rank                  INTEGER NOT NULL,
	patch_id              INTEGER NOT NULL,
	run                   INTEGER NOT NULL,
	centroid_x            DOUBLE PRECISION NOT NULL,
	centroid_y            DOUBLE PRECISION NOT NULL,
	report_centroid_x     DOUBLE PRECISION NOT NULL,
	report_centroid_y     DOUBLE PRECISION NOT NULL,
	bbox                  TEXT NOT NULL,
	landcover_suitability DOUBLE PRECISION NOT NULL,
	slope                 DOUBLE PRECISION NOT NULL,
	soil                  DOUBLE PRECISION NOT NULL,
	flood_risk            DOUBLE PRECISION NOT NULL,
	urban_proximity       DOUBLE PRECISION NOT NULL,
	overall_score         DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_optimization_runs_status ON optimization_runs(status);
CREATE INDEX IF NOT EXISTS idx_selection_records_patch ON selection_records(patch_id);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateRun inserts a running entry with params stored as JSONB.
func (s *PostgresStore) CreateRun(ctx context.Context, params any) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO optimization_runs (id, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &Run{
		ID:        id,
		Status:    RunStatusRunning,
		Params:    paramsJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FinishRun records the outcome and COPYs the selection records in one
// transaction.
func (s *PostgresStore) FinishRun(ctx context.Context, id string, summary Summary, records []result.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin finish run")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE optimization_runs SET status = $1, patches = $2, runs = $3, selected = $4, error = $5, updated_at = $6 WHERE id = $7`,
		string(summary.Status), summary.Patches, summary.Runs, len(records), summary.Error, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}

	if len(records) > 0 {
		rows := make([][]any, len(records))
		for i, r := range records {
			rows[i] = recordValues(id, r)
		}
		cols := append([]string{"run_id"}, recordColumns...)
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"selection_records"}, cols, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: copy selection records")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit finish run")
}

// GetRun loads one run by id.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, params, patches, runs, selected, error, created_at, updated_at
		 FROM optimization_runs WHERE id = $1`, id)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, status, params, patches, runs, selected, error, created_at, updated_at
		FROM optimization_runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, limitOf(filter))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// ListRecords returns a run's selection records in rank order.
func (s *PostgresStore) ListRecords(ctx context.Context, id string) ([]result.Record, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(recordColumns, ", ")+` FROM selection_records WHERE run_id = $1 ORDER BY rank`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []result.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func scanPostgresRun(row scannable) (*Run, error) {
	var r Run
	var status string
	var params []byte
	if err := row.Scan(&r.ID, &status, &params, &r.Patches, &r.Runs, &r.Selected, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.Params = json.RawMessage(params)
	return &r, nil
}
