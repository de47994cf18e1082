// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package filter

import (
	"fmt"
	"strings"
)

// operator bundles the parse-shape check and SQL emission for one filter
// operator. Registry entries replace a central type switch: adding an
// operator is one entry here plus nothing anywhere else.
type operator struct {
	token string

	// checkShape validates the operand's JSON shape at parse time.
	checkShape func(field string, value any) error

	// emit renders the leaf as a SQL predicate, binding values through ec.
	emit func(ec *emitContext, field string, value any) (string, error)
}

// comparison maps comparison tokens to their SQL operators.
var comparison = map[string]string{
	"eq":  "=",
	"ne":  "<>",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

// jsonTypeTokens are the canonical tokens accepted by the type operator.
var jsonTypeTokens = map[string]bool{
	"object": true, "array": true, "string": true,
	"number": true, "bool": true, "null": true,
}

// operators is the registry keyed by normalized token.
var operators = map[string]*operator{}

func register(op *operator) { operators[op.token] = op }

func init() {
	for token := range comparison {
		tok := token
		register(&operator{
			token:      tok,
			checkShape: scalarShape,
			emit: func(ec *emitContext, field string, value any) (string, error) {
				return emitComparison(ec, tok, field, value)
			},
		})
	}

	register(&operator{token: "in", checkShape: listShape, emit: emitIn(false)})
	register(&operator{token: "nin", checkShape: listShape, emit: emitIn(true)})

	register(&operator{
		token: "regex",
		checkShape: func(field string, value any) error {
			pattern, ok := value.(string)
			if !ok {
				return fmt.Errorf("Operator $regex for field '%s' requires a string pattern", field)
			}
			return CheckRegexPattern(field, pattern)
		},
		emit: emitRegex,
	})

	register(&operator{
		token: "exists",
		checkShape: func(field string, value any) error {
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("Operator $exists for field '%s' requires a boolean", field)
			}
			return nil
		},
		emit: emitExists,
	})

	register(&operator{
		token: "type",
		checkShape: func(field string, value any) error {
			token, ok := value.(string)
			if !ok || !jsonTypeTokens[strings.ToLower(token)] {
				return fmt.Errorf("Operator $type for field '%s' requires one of: object, array, string, number, bool, null", field)
			}
			return nil
		},
		emit: emitType,
	})
}

// KnownOperator reports whether token (with or without a leading $) names a
// registered operator. Endpoint builders use it to reject definitions whose
// allowlists reference operators that do not exist.
func KnownOperator(token string) bool {
	_, ok := operators[NormalizeToken(token)]
	return ok
}

// scalarShape rejects structured operands for plain comparisons.
func scalarShape(field string, value any) error {
	switch value.(type) {
	case map[string]any, []any:
		return fmt.Errorf("Comparison operator for field '%s' requires a scalar value", field)
	}
	return nil
}

// listShape requires an array operand (possibly empty).
func listShape(field string, value any) error {
	if _, ok := value.([]any); !ok {
		return fmt.Errorf("Operator for field '%s' requires a list", field)
	}
	return nil
}
