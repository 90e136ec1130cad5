package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

var runColumns = []string{"id", "status", "params", "patches", "runs", "selected", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS optimization_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO optimization_runs`).
		WithArgs(pgxmock.AnyArg(), "running", []byte(`{"pop_size":100}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), map[string]int{"pop_size": 100})
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Len(t, run.ID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_CopiesRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE optimization_runs SET status = \$1`).
		WithArgs("complete", 64, 5, 2, "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"selection_records"}, append([]string{"run_id"}, recordColumns...)).
		WillReturnResult(2)
	mock.ExpectCommit()

	err := s.FinishRun(context.Background(), "run-1", Summary{Status: RunStatusComplete, Patches: 64, Runs: 5}, sampleRecords())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFoundRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE optimization_runs`).
		WithArgs("failed", 0, 0, 0, "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.FinishRun(context.Background(), "missing", Summary{Status: RunStatusFailed, Error: "boom"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, status, params, .* FROM optimization_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "complete", []byte(`{}`), 64, 5, 3, "", now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Selected)
	assert.JSONEq(t, `{}`, string(run.Params))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM optimization_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Placeholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("complete", 10, 20).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("a", "complete", []byte(`{}`), 1, 1, 1, "", now, now).
			AddRow("b", "complete", []byte(`{}`), 2, 2, 2, "", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: RunStatusComplete, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	want := sampleRecords()[0]

	mock.ExpectQuery(`FROM optimization_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "complete", []byte(`{}`), 64, 5, 1, "", now, now))
	mock.ExpectQuery(`FROM selection_records WHERE run_id = \$1 ORDER BY rank`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(want.Rank, want.PatchID, want.Run, want.CentroidX, want.CentroidY, want.ReportX, want.ReportY,
				want.BBox, want.LandcoverSuitability, want.Slope, want.Soil, want.FloodRisk, want.UrbanProximity, want.OverallScore))

	recs, err := s.ListRecords(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, want, recs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutOwnership(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
