// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package filter implements the gateway's filter pipeline: parsing a
MongoDB-style filter map into a typed tree, validating the tree against a
per-endpoint field/operator allowlist, and translating it into a parameterized
SQL WHERE clause through the dialect layer.

Architecture:

  - Tree: FieldCond | Logical | Not, finite and immutable after parse.
  - Operator registry: each operator owns its parse-shape check and SQL
    emission; there is no central switch.
  - Exhaustive validation: every invalid field or operator produces its own
    error detail; validation never short-circuits.
  - Determinism: equal filter inputs produce byte-identical SQL. Map keys are
    visited in sorted order; only user-supplied sort order is preserved.

All user-supplied values are bound as parameters. The only text interpolated
into SQL is field paths that already passed the allowlist.
*/
package filter

import "strings"

// # Tree

// Node is one vertex of a filter tree.
type Node interface {
	isNode()
}

// FieldCond is a leaf constraining a single field with one operator.
type FieldCond struct {
	Field string
	Op    string
	Value any
}

// Logical combines child predicates with and/or/nor.
type Logical struct {
	Op       string
	Children []Node
}

// Not negates its child predicate.
type Not struct {
	Child Node
}

func (FieldCond) isNode() {}
func (Logical) isNode()   {}
func (Not) isNode()       {}

// Logical operator tokens (normalized, without the $ prefix).
const (
	OpAnd = "and"
	OpOr  = "or"
	OpNor = "nor"
	OpNot = "not"
)

// FieldID is the primary-key pseudo-field. It is implicitly allowed with
// equality in every filter config and maps to the id column, not the JSON
// payload.
const FieldID = "_id"

// # Options

// SortField is one entry of an ORDER BY list. User-supplied order is
// preserved.
type SortField struct {
	Field string
	Desc  bool
}

// Projection selects fields to keep (include mode) or drop (exclude mode)
// from response documents. Server-side projection on JSON columns is
// best-effort; the gateway applies it post-fetch.
type Projection struct {
	Include bool
	Fields  map[string]bool
}

// Options carries the non-predicate query modifiers.
type Options struct {
	Sort       []SortField
	Limit      int
	Skip       int
	Projection *Projection
}

// # Allowlist Config

// Config is the per-endpoint allowlist: field → set of permitted operator
// tokens (normalized, without $). Separate instances exist for reads and
// writes; write configs are intentionally stricter.
type Config struct {
	Fields map[string]map[string]bool
}

// Enabled reports whether any filtering is configured at all.
func (c Config) Enabled() bool {
	return len(c.Fields) > 0
}

// Allows reports whether op is permitted on field. _id always permits
// equality regardless of configuration.
func (c Config) Allows(field, op string) bool {
	if field == FieldID && op == "eq" {
		return true
	}
	ops, ok := c.Fields[field]
	return ok && ops[op]
}

// AllowsField reports whether the field participates in filtering at all.
func (c Config) AllowsField(field string) bool {
	if field == FieldID {
		return true
	}
	_, ok := c.Fields[field]
	return ok
}

// NormalizeToken strips an optional $ prefix and lowercases an operator token.
func NormalizeToken(token string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(token), "$"))
}
