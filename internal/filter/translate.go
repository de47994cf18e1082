// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/taibuivan/sigma/internal/dialect"
	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/pkg/jsonx"
)

// Result is the translated form of a filter tree plus its options.
//
// Where uses '?' placeholders throughout; the repository rebinds them to the
// dialect's native style. Params holds the bound values in placeholder order.
type Result struct {
	Where      string
	Params     []any
	OrderBy    string
	Limit      int
	Skip       int
	Projection *Projection
}

// emitContext accumulates bind parameters during tree emission.
type emitContext struct {
	d      dialect.Dialect
	column string
	params []any
}

// bind registers a parameter and returns its placeholder.
func (ec *emitContext) bind(v any) string {
	ec.params = append(ec.params, v)
	return "?"
}

// Translate renders a validated tree over the documents data column.
func Translate(node Node, opts Options, d dialect.Dialect) (*Result, error) {
	return TranslateOver(node, opts, d, "data")
}

// TranslateOver renders a validated tree over an arbitrary JSON column
// expression. Nested (father document) queries translate over the expanded
// array element instead of the root column.
func TranslateOver(node Node, opts Options, d dialect.Dialect, column string) (*Result, error) {
	ec := &emitContext{d: d, column: column}

	where := ""
	if node != nil {
		rendered, err := emitNode(ec, node)
		if err != nil {
			return nil, err
		}
		where = rendered
	}

	orderBy, err := emitOrderBy(ec, opts.Sort)
	if err != nil {
		return nil, err
	}

	return &Result{
		Where:      where,
		Params:     ec.params,
		OrderBy:    orderBy,
		Limit:      opts.Limit,
		Skip:       opts.Skip,
		Projection: opts.Projection,
	}, nil
}

// # Tree Emission

func emitNode(ec *emitContext, node Node) (string, error) {
	switch n := node.(type) {
	case FieldCond:
		op, ok := operators[n.Op]
		if !ok {
			return "", apperr.ValidationError("Invalid filter",
				fmt.Sprintf("Unknown operator '$%s'", n.Op))
		}
		return op.emit(ec, n.Field, n.Value)

	case Logical:
		rendered := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			sub, err := emitNode(ec, child)
			if err != nil {
				return "", err
			}
			rendered = append(rendered, sub)
		}
		switch n.Op {
		case OpAnd:
			return "(" + strings.Join(rendered, " AND ") + ")", nil
		case OpOr:
			return "(" + strings.Join(rendered, " OR ") + ")", nil
		case OpNor:
			return "NOT (" + strings.Join(rendered, " OR ") + ")", nil
		default:
			return "", apperr.ValidationError("Invalid filter",
				fmt.Sprintf("Unknown logical operator '%s'", n.Op))
		}

	case Not:
		sub, err := emitNode(ec, n.Child)
		if err != nil {
			return "", err
		}
		return "NOT (" + sub + ")", nil

	default:
		return "", apperr.Internal(fmt.Errorf("filter: unknown node type %T", node))
	}
}

// # Leaf Emission

// emitComparison renders eq/ne/gt/gte/lt/lte. Numeric operands cast the
// extracted text so comparison happens numerically; the id pseudo-field
// compares against the primary key column directly.
func emitComparison(ec *emitContext, token, field string, value any) (string, error) {
	sqlOp := comparison[token]

	if field == FieldID {
		id, err := coerceID(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("id %s %s", sqlOp, ec.bind(id)), nil
	}

	if value == nil {
		switch token {
		case "eq":
			return fmt.Sprintf("%s IS NULL", ec.d.JSONExtractText(ec.column, field)), nil
		case "ne":
			return fmt.Sprintf("%s IS NOT NULL", ec.d.JSONExtractText(ec.column, field)), nil
		default:
			return "", apperr.ValidationError("Invalid filter",
				fmt.Sprintf("Operator $%s for field '%s' cannot compare against null", token, field))
		}
	}

	extract := ec.d.JSONExtractText(ec.column, field)
	if jsonx.IsNumber(value) {
		return fmt.Sprintf("%s %s %s", ec.d.NumericCast(extract), sqlOp, ec.bind(value)), nil
	}
	return fmt.Sprintf("%s %s %s", extract, sqlOp, ec.bind(valueToText(value))), nil
}

// emitIn renders in/nin. An empty set is constant FALSE (in) or TRUE (nin).
func emitIn(negate bool) func(*emitContext, string, any) (string, error) {
	return func(ec *emitContext, field string, value any) (string, error) {
		list, _ := value.([]any)
		if len(list) == 0 {
			if negate {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}

		numeric := true
		for _, item := range list {
			if !jsonx.IsNumber(item) {
				numeric = false
				break
			}
		}

		var expr string
		placeholders := make([]string, 0, len(list))
		switch {
		case field == FieldID:
			expr = "id"
			for _, item := range list {
				id, err := coerceID(item)
				if err != nil {
					return "", err
				}
				placeholders = append(placeholders, ec.bind(id))
			}
		case numeric:
			expr = ec.d.NumericCast(ec.d.JSONExtractText(ec.column, field))
			for _, item := range list {
				placeholders = append(placeholders, ec.bind(item))
			}
		default:
			expr = ec.d.JSONExtractText(ec.column, field)
			for _, item := range list {
				placeholders = append(placeholders, ec.bind(valueToText(item)))
			}
		}

		keyword := "IN"
		if negate {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", expr, keyword, strings.Join(placeholders, ", ")), nil
	}
}

// emitRegex renders the regex operator as a LIKE with escaped wildcards.
func emitRegex(ec *emitContext, field string, value any) (string, error) {
	pattern, _ := value.(string)
	like := RegexToLike(pattern)
	return fmt.Sprintf("%s LIKE %s ESCAPE '\\'",
		ec.d.JSONExtractText(ec.column, field), ec.bind(like)), nil
}

// emitExists renders the exists operator through the dialect's JSON probe.
func emitExists(ec *emitContext, field string, value any) (string, error) {
	present, _ := value.(bool)
	predicate := ec.d.JSONExists(ec.column, field)
	if !present {
		return "NOT (" + predicate + ")", nil
	}
	return predicate, nil
}

// emitType renders the type operator.
func emitType(ec *emitContext, field string, value any) (string, error) {
	token, _ := value.(string)
	predicate, err := ec.d.JSONTypePredicate(ec.column, field, strings.ToLower(token))
	if err != nil {
		return "", apperr.ValidationError("Invalid filter", err.Error())
	}
	return predicate, nil
}

// # Order By

func emitOrderBy(ec *emitContext, sort []SortField) (string, error) {
	if len(sort) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(sort))
	for _, s := range sort {
		expr := ec.d.JSONExtractText(ec.column, s.Field)
		if s.Field == FieldID {
			expr = "id"
		}
		direction := " ASC"
		if s.Desc {
			direction = " DESC"
		}
		parts = append(parts, expr+direction)
	}
	return strings.Join(parts, ", "), nil
}

// # Value Coercion

// coerceID converts any reasonable _id representation to int64.
func coerceID(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, apperr.ValidationError("Invalid filter",
				fmt.Sprintf("Field '_id' requires an integer value, got '%s'", v))
		}
		return id, nil
	default:
		return 0, apperr.ValidationError("Invalid filter",
			fmt.Sprintf("Field '_id' requires an integer value, got %v", value))
	}
}

// valueToText renders a scalar the way the JSON text extraction would.
func valueToText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
