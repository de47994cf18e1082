// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// postgresDialect targets PostgreSQL 12+ with a JSONB data column.
type postgresDialect struct{}

func (postgresDialect) Name() string       { return Postgres }
func (postgresDialect) DriverName() string { return "pgx" }
func (postgresDialect) BindType() int      { return sqlx.DOLLAR }

// pgPathLiteral renders a dot path as a text-array literal: '{a,b,c}'.
func pgPathLiteral(path string) string {
	return "'{" + strings.Join(splitPath(sqlQuote(path)), ",") + "}'"
}

func (postgresDialect) JSONExtractText(col, path string) string {
	return fmt.Sprintf("%s #>> %s", col, pgPathLiteral(path))
}

func (postgresDialect) JSONExtract(col, path string) string {
	return fmt.Sprintf("%s #> %s", col, pgPathLiteral(path))
}

func (postgresDialect) JSONExists(col, path string) string {
	return fmt.Sprintf("(%s #> %s) IS NOT NULL", col, pgPathLiteral(path))
}

func (d postgresDialect) JSONTypePredicate(col, path, token string) (string, error) {
	native, ok := map[string]string{
		"object": "object",
		"array":  "array",
		"string": "string",
		"number": "number",
		"bool":   "boolean",
		"null":   "null",
	}[token]
	if !ok {
		return "", fmt.Errorf("dialect: unsupported type token %q", token)
	}
	return fmt.Sprintf("jsonb_typeof(%s) = '%s'", d.JSONExtract(col, path), native), nil
}

func (postgresDialect) NumericCast(expr string) string {
	return fmt.Sprintf("(%s)::numeric", expr)
}

func (postgresDialect) JSONBind(placeholder string) string {
	return fmt.Sprintf("CAST(%s AS jsonb)", placeholder)
}

func (postgresDialect) PaginationClause(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func (postgresDialect) LimitClause(n int) string {
	return fmt.Sprintf(" LIMIT %d", n)
}

func (postgresDialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d postgresDialect) BoolColumnEq(col string, b bool) string {
	return fmt.Sprintf("%s = %s", col, d.BoolLiteral(b))
}

func (d postgresDialect) JSONArrayExpand(col, path, alias string) string {
	return fmt.Sprintf("CROSS JOIN LATERAL jsonb_array_elements(%s) AS %s(elem)",
		d.JSONExtract(col, path), alias)
}

func (postgresDialect) ArrayElement(alias string) string {
	return alias + ".elem"
}

func (postgresDialect) InsertReturningID() bool { return true }

func (postgresDialect) LastInsertIDSQL() string { return "" }

func (postgresDialect) DocumentsTableDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS dynamic_documents (
			id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			table_name        TEXT NOT NULL,
			data              JSONB NOT NULL,
			version           BIGINT NOT NULL DEFAULT 0,
			is_deleted        BOOLEAN NOT NULL DEFAULT FALSE,
			latest_request_id TEXT,
			created_by        TEXT,
			last_modified_by  TEXT,
			created_at        TIMESTAMPTZ NOT NULL,
			last_modified_at  TIMESTAMPTZ NOT NULL,
			sequence_number   BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_table_deleted ON dynamic_documents (table_name, is_deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_table_sequence ON dynamic_documents (table_name, sequence_number)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_table_modified ON dynamic_documents (table_name, last_modified_at)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_data_gin ON dynamic_documents USING GIN (data)`,
		`CREATE TABLE IF NOT EXISTS sequence_checkpoints (
			collection   TEXT PRIMARY KEY,
			sequence     BIGINT NOT NULL,
			resume_token TEXT,
			last_updated TIMESTAMPTZ NOT NULL
		)`,
	}
}

func (postgresDialect) SequenceTriggerDDL() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS dynamic_documents_seq`,
		`CREATE OR REPLACE FUNCTION assign_sequence_number() RETURNS trigger AS $$
		BEGIN
			NEW.sequence_number := nextval('dynamic_documents_seq');
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_dynamic_documents_seq ON dynamic_documents`,
		`CREATE TRIGGER trg_dynamic_documents_seq
			BEFORE INSERT OR UPDATE ON dynamic_documents
			FOR EACH ROW EXECUTE FUNCTION assign_sequence_number()`,
	}
}

func (postgresDialect) ProbeSQL() string {
	return `SELECT jsonb_typeof('{"a":1}'::jsonb #> '{a}')`
}
