// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package dialect isolates every piece of database-specific SQL text behind a
single interface with three implementations: PostgreSQL, Oracle, and SQLite.

Architecture:

  - Capability surface: JSON extraction, existence and type probes, pagination,
    boolean encoding, JSON array expansion, identity recovery, and the DDL for
    the documents table and its sequence trigger.
  - Selection: an explicit DATABASE_TYPE override wins, otherwise the dialect
    is inferred from the connection URL scheme.
  - Failure policy: unsupported features fail the startup probe, never a query.

Adding a dialect is one file plus a factory entry. No other package may embed
engine-specific SQL.
*/
package dialect

import (
	"fmt"
	"strings"
)

// Dialect names accepted by [New] and DATABASE_TYPE.
const (
	Postgres = "postgres"
	Oracle   = "oracle"
	SQLite   = "sqlite"
)

// Dialect emits engine-specific SQL fragments. Implementations are stateless
// and safe for concurrent use.
type Dialect interface {
	// Name returns the canonical dialect name.
	Name() string

	// DriverName is the database/sql driver this dialect runs on.
	DriverName() string

	// BindType is the sqlx bind variable style (sqlx.DOLLAR, sqlx.NAMED, ...).
	// Query builders emit '?' placeholders; the repository rebinds per dialect.
	BindType() int

	// JSONExtractText yields an expression extracting the value at the dot
	// path as SQL text.
	JSONExtractText(col, path string) string

	// JSONExtract yields an expression extracting the raw JSON at the dot path.
	JSONExtract(col, path string) string

	// JSONExists yields a predicate that is true when the path is present.
	JSONExists(col, path string) string

	// JSONTypePredicate yields a predicate comparing the JSON type at the path
	// against a canonical token (object, array, string, number, bool, null).
	JSONTypePredicate(col, path, token string) (string, error)

	// NumericCast wraps an extracted-text expression so it compares numerically.
	NumericCast(expr string) string

	// JSONBind wraps a bind placeholder carrying serialized JSON so the engine
	// stores it in its native JSON column type.
	JSONBind(placeholder string) string

	// PaginationClause renders LIMIT/OFFSET semantics. Zero or negative values
	// mean "absent".
	PaginationClause(limit, offset int) string

	// LimitClause bounds a statement to n rows.
	LimitClause(n int) string

	// BoolLiteral encodes a boolean constant.
	BoolLiteral(b bool) string

	// BoolColumnEq compares a boolean column to a constant.
	BoolColumnEq(col string, b bool) string

	// JSONArrayExpand yields a FROM-clause fragment unnesting the JSON array at
	// path into rows; the element is addressable via ArrayElement(alias).
	JSONArrayExpand(col, path, alias string) string

	// ArrayElement is the expression referencing one expanded array element.
	ArrayElement(alias string) string

	// InsertReturningID reports whether INSERT ... RETURNING id is supported.
	InsertReturningID() bool

	// LastInsertIDSQL recovers the assigned id when RETURNING is unavailable.
	LastInsertIDSQL() string

	// DocumentsTableDDL emits idempotent DDL for dynamic_documents,
	// sequence_checkpoints, and their indices.
	DocumentsTableDDL() []string

	// SequenceTriggerDDL installs per-row sequence_number auto-assignment.
	SequenceTriggerDDL() []string

	// ProbeSQL is a cheap statement exercising the JSON capability surface.
	// It runs once at startup; failure aborts boot.
	ProbeSQL() string
}

// New returns the dialect registered under name.
func New(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Postgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	case Oracle, "ora":
		return oracleDialect{}, nil
	case SQLite, "sqlite3", "h2":
		// H2 deployments of the original gateway map onto the embedded SQLite
		// engine in this port.
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
}

// Infer guesses the dialect from a connection URL scheme. An explicit
// DATABASE_TYPE override always wins over inference.
func Infer(databaseURL string) string {
	url := strings.ToLower(databaseURL)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres
	case strings.HasPrefix(url, "oracle://"):
		return Oracle
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"):
		return SQLite
	default:
		return Postgres
	}
}

// # Path Helpers

// splitPath splits a dot path into its segments, dropping empties.
func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sqlQuote escapes a config-supplied identifier segment for embedding inside a
// single-quoted SQL literal. Field paths come from operator configuration and
// filter keys that already passed the allowlist, never from raw values.
func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// jsonPathExpr renders a dot path as a JSONPath literal: $.a.b.c
func jsonPathExpr(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range splitPath(path) {
		b.WriteString(".")
		b.WriteString(sqlQuote(seg))
	}
	return b.String()
}
