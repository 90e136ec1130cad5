package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "results"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "results", ConflictKeys: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "results", Columns: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_siteopt_results" \(LIKE "siteopt"."results" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_siteopt_results"}, []string{"patch_id", "score"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "siteopt"."results" \("patch_id", "score"\) SELECT .* ON CONFLICT \("patch_id"\) DO UPDATE SET "score" = EXCLUDED."score"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "siteopt.results",
		Columns:      []string{"patch_id", "score"},
		ConflictKeys: []string{"patch_id"},
	}, [][]any{{1, 0.5}, {2, 0.25}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_NothingToUpdate(t *testing.T) {
	got := UpsertSQL("results", "tmp", []string{"patch_id"}, []string{"patch_id"}, nil)
	assert.Equal(t, `INSERT INTO "results" ("patch_id") SELECT "patch_id" FROM "tmp" ON CONFLICT ("patch_id") DO NOTHING`, got)
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
