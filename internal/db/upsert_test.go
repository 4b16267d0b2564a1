package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsertBuildsMultiRowInsert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "nsd" \("nsd", "company_name"\) VALUES \(\$1, \$2\), \(\$3, \$4\) ON CONFLICT \("nsd"\) DO UPDATE SET "company_name" = EXCLUDED\."company_name"`).
		WithArgs(1, "A", 2, "B").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "nsd",
		Columns:      []string{"nsd", "company_name"},
		ConflictKeys: []string{"nsd"},
	}, [][]any{{1, "A"}, {2, "B"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertCustomExpr(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`"processed" = CASE WHEN raw_statements\.version = EXCLUDED\.version THEN raw_statements\.processed ELSE NULL END`).
		WithArgs("A", 1, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "raw_statements",
		Columns:      []string{"company_name", "version", "processed"},
		ConflictKeys: []string{"company_name", "version"},
		UpdateExprs: map[string]string{
			"processed": "CASE WHEN raw_statements.version = EXCLUDED.version THEN raw_statements.processed ELSE NULL END",
		},
	}, [][]any{{"A", 1, nil}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertAllKeysDoNothing(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO "pending_companies" \("company_name"\) VALUES \(\$1\) ON CONFLICT \("company_name"\) DO NOTHING`).
		WithArgs("A").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "pending_companies",
		Columns:      []string{"company_name"},
		ConflictKeys: []string{"company_name"},
	}, [][]any{{"A"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{Table: "t"}, [][]any{{1}})
	assert.Error(t, err)

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table: "t", Columns: []string{"a"}, ConflictKeys: []string{"a"},
	}, [][]any{{1, 2}})
	assert.Error(t, err)

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table: "t", Columns: []string{"a"}, ConflictKeys: []string{"a"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
