// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// sqliteDialect targets the embedded SQLite engine (the port's stand-in for
// H2). Data lives in a TEXT column queried through the json1 functions.
type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return SQLite }
func (sqliteDialect) DriverName() string { return "sqlite3" }
func (sqliteDialect) BindType() int      { return sqlx.QUESTION }

func (sqliteDialect) JSONExtractText(col, path string) string {
	return fmt.Sprintf("%s ->> '%s'", col, jsonPathExpr(path))
}

func (sqliteDialect) JSONExtract(col, path string) string {
	return fmt.Sprintf("%s -> '%s'", col, jsonPathExpr(path))
}

func (sqliteDialect) JSONExists(col, path string) string {
	return fmt.Sprintf("json_type(%s, '%s') IS NOT NULL", col, jsonPathExpr(path))
}

func (sqliteDialect) JSONTypePredicate(col, path, token string) (string, error) {
	expr := fmt.Sprintf("json_type(%s, '%s')", col, jsonPathExpr(path))
	switch token {
	case "object":
		return expr + " = 'object'", nil
	case "array":
		return expr + " = 'array'", nil
	case "string":
		return expr + " = 'text'", nil
	case "number":
		return expr + " IN ('integer', 'real')", nil
	case "bool":
		return expr + " IN ('true', 'false')", nil
	case "null":
		return expr + " = 'null'", nil
	default:
		return "", fmt.Errorf("dialect: unsupported type token %q", token)
	}
}

func (sqliteDialect) NumericCast(expr string) string {
	return fmt.Sprintf("CAST(%s AS NUMERIC)", expr)
}

func (sqliteDialect) JSONBind(placeholder string) string {
	return fmt.Sprintf("json(%s)", placeholder)
}

func (sqliteDialect) PaginationClause(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	} else if offset > 0 {
		// SQLite requires a LIMIT before OFFSET.
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func (sqliteDialect) LimitClause(n int) string {
	return fmt.Sprintf(" LIMIT %d", n)
}

func (sqliteDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d sqliteDialect) BoolColumnEq(col string, b bool) string {
	return fmt.Sprintf("%s = %s", col, d.BoolLiteral(b))
}

func (sqliteDialect) JSONArrayExpand(col, path, alias string) string {
	return fmt.Sprintf(", json_each(%s, '%s') AS %s", col, jsonPathExpr(path), alias)
}

func (sqliteDialect) ArrayElement(alias string) string {
	return alias + ".value"
}

func (sqliteDialect) InsertReturningID() bool { return false }

func (sqliteDialect) LastInsertIDSQL() string {
	return "SELECT last_insert_rowid()"
}

func (sqliteDialect) DocumentsTableDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS dynamic_documents (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name        TEXT NOT NULL,
			data              TEXT NOT NULL CHECK (json_valid(data)),
			version           INTEGER NOT NULL DEFAULT 0,
			is_deleted        INTEGER NOT NULL DEFAULT 0,
			latest_request_id TEXT,
			created_by        TEXT,
			last_modified_by  TEXT,
			created_at        TIMESTAMP NOT NULL,
			last_modified_at  TIMESTAMP NOT NULL,
			sequence_number   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_table_deleted ON dynamic_documents (table_name, is_deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_table_sequence ON dynamic_documents (table_name, sequence_number)`,
		`CREATE INDEX IF NOT EXISTS idx_docs_table_modified ON dynamic_documents (table_name, last_modified_at)`,
		`CREATE TABLE IF NOT EXISTS sequence_checkpoints (
			collection   TEXT PRIMARY KEY,
			sequence     INTEGER NOT NULL,
			resume_token TEXT,
			last_updated TIMESTAMP NOT NULL
		)`,
	}
}

func (sqliteDialect) SequenceTriggerDDL() []string {
	// SQLite triggers may not assign NEW columns, so the counter is applied by
	// a follow-up UPDATE restricted to the mutated row. The UPDATE trigger
	// excludes sequence_number itself to avoid re-firing.
	return []string{
		`CREATE TRIGGER IF NOT EXISTS trg_docs_seq_insert
			AFTER INSERT ON dynamic_documents
		BEGIN
			UPDATE dynamic_documents
			SET sequence_number = (SELECT IFNULL(MAX(sequence_number), 0) + 1 FROM dynamic_documents)
			WHERE id = NEW.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS trg_docs_seq_update
			AFTER UPDATE OF data, version, is_deleted, latest_request_id, last_modified_at
			ON dynamic_documents
		BEGIN
			UPDATE dynamic_documents
			SET sequence_number = (SELECT IFNULL(MAX(sequence_number), 0) + 1 FROM dynamic_documents)
			WHERE id = NEW.id;
		END`,
	}
}

func (sqliteDialect) ProbeSQL() string {
	return `SELECT json_type('{"a":1}', '$.a')`
}
