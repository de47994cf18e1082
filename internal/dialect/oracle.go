// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// oracleDialect targets Oracle 19c+ with a CLOB data column constrained to be
// valid JSON. Boolean columns are NUMBER(1) since the engine lacks a native
// boolean type.
type oracleDialect struct{}

func (oracleDialect) Name() string       { return Oracle }
func (oracleDialect) DriverName() string { return "oracle" }
func (oracleDialect) BindType() int      { return sqlx.NAMED }

func (oracleDialect) JSONExtractText(col, path string) string {
	return fmt.Sprintf("JSON_VALUE(%s, '%s')", col, jsonPathExpr(path))
}

func (oracleDialect) JSONExtract(col, path string) string {
	return fmt.Sprintf("JSON_QUERY(%s, '%s')", col, jsonPathExpr(path))
}

func (oracleDialect) JSONExists(col, path string) string {
	return fmt.Sprintf("JSON_EXISTS(%s, '%s')", col, jsonPathExpr(path))
}

func (oracleDialect) JSONTypePredicate(col, path, token string) (string, error) {
	// Oracle has no direct typeof; probe via JSON_EXISTS type predicates.
	p := jsonPathExpr(path)
	switch token {
	case "object":
		return fmt.Sprintf("JSON_EXISTS(%s, '%s?(@.type() == \"object\")')", col, p), nil
	case "array":
		return fmt.Sprintf("JSON_EXISTS(%s, '%s?(@.type() == \"array\")')", col, p), nil
	case "string":
		return fmt.Sprintf("JSON_EXISTS(%s, '%s?(@.type() == \"string\")')", col, p), nil
	case "number":
		return fmt.Sprintf("JSON_EXISTS(%s, '%s?(@.type() == \"number\")')", col, p), nil
	case "bool":
		return fmt.Sprintf("JSON_EXISTS(%s, '%s?(@.type() == \"boolean\")')", col, p), nil
	case "null":
		return fmt.Sprintf("JSON_EXISTS(%s, '%s?(@.type() == \"null\")')", col, p), nil
	default:
		return "", fmt.Errorf("dialect: unsupported type token %q", token)
	}
}

func (oracleDialect) NumericCast(expr string) string {
	return fmt.Sprintf("TO_NUMBER(%s)", expr)
}

func (oracleDialect) JSONBind(placeholder string) string {
	return placeholder
}

func (oracleDialect) PaginationClause(limit, offset int) string {
	var b strings.Builder
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d ROWS", offset)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", limit)
	}
	return b.String()
}

func (oracleDialect) LimitClause(n int) string {
	return fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", n)
}

func (oracleDialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d oracleDialect) BoolColumnEq(col string, b bool) string {
	return fmt.Sprintf("%s = %s", col, d.BoolLiteral(b))
}

func (oracleDialect) JSONArrayExpand(col, path, alias string) string {
	return fmt.Sprintf(", JSON_TABLE(%s, '%s[*]' COLUMNS (elem CLOB FORMAT JSON PATH '$')) %s",
		col, jsonPathExpr(path), alias)
}

func (oracleDialect) ArrayElement(alias string) string {
	return alias + ".elem"
}

func (oracleDialect) InsertReturningID() bool { return false }

func (oracleDialect) LastInsertIDSQL() string {
	return "SELECT dynamic_documents_id_seq.CURRVAL FROM dual"
}

func (oracleDialect) DocumentsTableDDL() []string {
	// Oracle has no CREATE TABLE IF NOT EXISTS; the bootstrap layer treats
	// ORA-00955 (name already used) as success.
	return []string{
		`CREATE SEQUENCE dynamic_documents_id_seq`,
		`CREATE TABLE dynamic_documents (
			id                NUMBER(19) DEFAULT dynamic_documents_id_seq.NEXTVAL PRIMARY KEY,
			table_name        VARCHAR2(255) NOT NULL,
			data              CLOB NOT NULL CONSTRAINT docs_data_is_json CHECK (data IS JSON),
			version           NUMBER(19) DEFAULT 0 NOT NULL,
			is_deleted        NUMBER(1) DEFAULT 0 NOT NULL,
			latest_request_id VARCHAR2(255),
			created_by        VARCHAR2(255),
			last_modified_by  VARCHAR2(255),
			created_at        TIMESTAMP WITH TIME ZONE NOT NULL,
			last_modified_at  TIMESTAMP WITH TIME ZONE NOT NULL,
			sequence_number   NUMBER(19) DEFAULT 0 NOT NULL
		)`,
		`CREATE INDEX idx_docs_table_deleted ON dynamic_documents (table_name, is_deleted)`,
		`CREATE INDEX idx_docs_table_sequence ON dynamic_documents (table_name, sequence_number)`,
		`CREATE INDEX idx_docs_table_modified ON dynamic_documents (table_name, last_modified_at)`,
		`CREATE TABLE sequence_checkpoints (
			collection   VARCHAR2(255) PRIMARY KEY,
			sequence     NUMBER(19) NOT NULL,
			resume_token VARCHAR2(4000),
			last_updated TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
	}
}

func (oracleDialect) SequenceTriggerDDL() []string {
	return []string{
		`CREATE SEQUENCE dynamic_documents_seq`,
		`CREATE OR REPLACE TRIGGER trg_dynamic_documents_seq
			BEFORE INSERT OR UPDATE ON dynamic_documents
			FOR EACH ROW
		BEGIN
			:NEW.sequence_number := dynamic_documents_seq.NEXTVAL;
		END;`,
	}
}

func (oracleDialect) ProbeSQL() string {
	return `SELECT JSON_VALUE('{"a":1}', '$.a') FROM dual`
}
