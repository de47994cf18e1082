// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/sigma/internal/dialect"
)

/*
TestNew_Aliases verifies dialect name resolution, including the H2 mapping to
the embedded SQLite engine.
*/
func TestNew_Aliases(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"postgres", dialect.Postgres},
		{"postgresql", dialect.Postgres},
		{"pgx", dialect.Postgres},
		{"oracle", dialect.Oracle},
		{"ora", dialect.Oracle},
		{"sqlite", dialect.SQLite},
		{"sqlite3", dialect.SQLite},
		{"h2", dialect.SQLite},
		{"POSTGRES", dialect.Postgres},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := dialect.New(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := dialect.New("mongodb")
	assert.Error(t, err)
}

/*
TestInfer verifies dialect inference from connection URL schemes.
*/
func TestInfer(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://user:pw@host/db", dialect.Postgres},
		{"postgresql://host/db", dialect.Postgres},
		{"oracle://user:pw@host/svc", dialect.Oracle},
		{"file:gateway.db", dialect.SQLite},
		{"/var/data/gateway.db", dialect.SQLite},
		{"mysql://host/db", dialect.Postgres}, // default
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, dialect.Infer(tt.url))
		})
	}
}

/*
TestJSONExtraction verifies path rendering on nested dot paths per dialect.
*/
func TestJSONExtraction(t *testing.T) {
	pgd, err := dialect.New(dialect.Postgres)
	require.NoError(t, err)
	ora, err := dialect.New(dialect.Oracle)
	require.NoError(t, err)
	lite, err := dialect.New(dialect.SQLite)
	require.NoError(t, err)

	assert.Equal(t, "data #>> '{a,b}'", pgd.JSONExtractText("data", "a.b"))
	assert.Equal(t, "JSON_VALUE(data, '$.a.b')", ora.JSONExtractText("data", "a.b"))
	assert.Equal(t, "data ->> '$.a.b'", lite.JSONExtractText("data", "a.b"))
}

/*
TestJSONTypePredicate verifies type probe rendering and unknown-token
rejection.
*/
func TestJSONTypePredicate(t *testing.T) {
	lite, err := dialect.New(dialect.SQLite)
	require.NoError(t, err)

	pred, err := lite.JSONTypePredicate("data", "price", "number")
	require.NoError(t, err)
	assert.Equal(t, "json_type(data, '$.price') IN ('integer', 'real')", pred)

	_, err = lite.JSONTypePredicate("data", "price", "decimal")
	assert.Error(t, err)

	ora, err := dialect.New(dialect.Oracle)
	require.NoError(t, err)
	pred, err = ora.JSONTypePredicate("data", "meta", "object")
	require.NoError(t, err)
	assert.Contains(t, pred, `@.type() == "object"`)
}

/*
TestPaginationClause verifies limit/offset rendering, including the SQLite
offset-without-limit case.
*/
func TestPaginationClause(t *testing.T) {
	pgd, _ := dialect.New(dialect.Postgres)
	ora, _ := dialect.New(dialect.Oracle)
	lite, _ := dialect.New(dialect.SQLite)

	assert.Equal(t, " LIMIT 10 OFFSET 5", pgd.PaginationClause(10, 5))
	assert.Equal(t, "", pgd.PaginationClause(0, 0))
	assert.Equal(t, " OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY", ora.PaginationClause(10, 5))
	assert.Equal(t, " LIMIT -1 OFFSET 5", lite.PaginationClause(0, 5))
	assert.Equal(t, " LIMIT 10 OFFSET 5", lite.PaginationClause(10, 5))
}

/*
TestBooleanEncoding verifies the native-boolean vs NUMBER(1) split.
*/
func TestBooleanEncoding(t *testing.T) {
	pgd, _ := dialect.New(dialect.Postgres)
	ora, _ := dialect.New(dialect.Oracle)

	assert.Equal(t, "is_deleted = FALSE", pgd.BoolColumnEq("is_deleted", false))
	assert.Equal(t, "is_deleted = 0", ora.BoolColumnEq("is_deleted", false))
	assert.Equal(t, "TRUE", pgd.BoolLiteral(true))
	assert.Equal(t, "1", ora.BoolLiteral(true))
}

/*
TestIdentityRecovery verifies the RETURNING capability split.
*/
func TestIdentityRecovery(t *testing.T) {
	pgd, _ := dialect.New(dialect.Postgres)
	ora, _ := dialect.New(dialect.Oracle)
	lite, _ := dialect.New(dialect.SQLite)

	assert.True(t, pgd.InsertReturningID())
	assert.False(t, ora.InsertReturningID())
	assert.False(t, lite.InsertReturningID())
	assert.Equal(t, "SELECT last_insert_rowid()", lite.LastInsertIDSQL())
	assert.Contains(t, ora.LastInsertIDSQL(), "CURRVAL")
}

/*
TestDDL_Shape sanity-checks the bootstrap DDL sets.
*/
func TestDDL_Shape(t *testing.T) {
	for _, name := range []string{dialect.Postgres, dialect.Oracle, dialect.SQLite} {
		t.Run(name, func(t *testing.T) {
			d, err := dialect.New(name)
			require.NoError(t, err)

			ddl := d.DocumentsTableDDL()
			require.NotEmpty(t, ddl)
			assert.Contains(t, ddl[len(ddl)-1], "sequence_checkpoints")
			assert.NotEmpty(t, d.SequenceTriggerDDL())
			assert.NotEmpty(t, d.ProbeSQL())
		})
	}
}
