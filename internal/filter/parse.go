// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/taibuivan/sigma/internal/platform/apperr"
)

// Parse builds a filter tree from the external filter map. A nil node is
// returned for an empty map (full-collection read).
//
// # Determinism
//
// Map keys are visited in sorted order so equal inputs always build equal
// trees, regardless of Go's map iteration order.
func Parse(input map[string]any) (Node, error) {
	if len(input) == 0 {
		return nil, nil
	}

	children := make([]Node, 0, len(input))
	for _, key := range sortedKeys(input) {
		node, err := parseEntry(key, input[key])
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}

	if len(children) == 1 {
		return children[0], nil
	}
	// Multiple top-level keys combine as an implicit AND.
	return Logical{Op: OpAnd, Children: children}, nil
}

// parseEntry dispatches one map entry: a logical operator or a field.
func parseEntry(key string, value any) (Node, error) {
	switch NormalizeToken(key) {
	case OpAnd, OpOr, OpNor:
		return parseLogical(NormalizeToken(key), key, value)
	case OpNot:
		return parseNot(key, value)
	default:
		return parseField(key, value)
	}
}

// parseLogical handles and/or/nor, which require a non-empty array of
// sub-filters.
func parseLogical(op, rawKey string, value any) (Node, error) {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return nil, apperr.ValidationError("Invalid filter",
			fmt.Sprintf("Logical operator '%s' requires a non-empty array", rawKey))
	}

	children := make([]Node, 0, len(list))
	for i, item := range list {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.ValidationError("Invalid filter",
				fmt.Sprintf("Logical operator '%s' child %d must be an object", rawKey, i))
		}
		node, err := Parse(sub)
		if err != nil {
			return nil, err
		}
		if node != nil {
			children = append(children, node)
		}
	}
	if len(children) == 0 {
		return nil, apperr.ValidationError("Invalid filter",
			fmt.Sprintf("Logical operator '%s' requires a non-empty array", rawKey))
	}
	return Logical{Op: op, Children: children}, nil
}

// parseNot handles not, which takes a single sub-filter object — never a list.
func parseNot(rawKey string, value any) (Node, error) {
	sub, ok := value.(map[string]any)
	if !ok {
		return nil, apperr.ValidationError("Invalid filter",
			fmt.Sprintf("Operator '%s' requires an object, not a list or scalar", rawKey))
	}
	child, err := Parse(sub)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, apperr.ValidationError("Invalid filter",
			fmt.Sprintf("Operator '%s' requires a non-empty object", rawKey))
	}
	return Not{Child: child}, nil
}

// parseField handles a field entry: a scalar means implicit equality, a map
// means operator→operand pairs.
func parseField(field string, value any) (Node, error) {
	opMap, ok := value.(map[string]any)
	if !ok {
		// Scalar (or array) operand: implicit equality.
		return FieldCond{Field: field, Op: "eq", Value: value}, nil
	}

	if len(opMap) == 0 {
		return nil, apperr.ValidationError("Invalid filter",
			fmt.Sprintf("Field '%s' has an empty operator object", field))
	}

	conds := make([]Node, 0, len(opMap))
	for _, rawOp := range sortedKeys(opMap) {
		token := NormalizeToken(rawOp)
		op, known := operators[token]
		if !known {
			return nil, apperr.ValidationError("Invalid filter",
				fmt.Sprintf("Unknown operator '%s'", rawOp))
		}
		operand := opMap[rawOp]
		if err := op.checkShape(field, operand); err != nil {
			return nil, apperr.ValidationError("Invalid filter", err.Error())
		}
		conds = append(conds, FieldCond{Field: field, Op: token, Value: operand})
	}

	if len(conds) == 1 {
		return conds[0], nil
	}
	return Logical{Op: OpAnd, Children: conds}, nil
}

// # Option Parsing

// ParseOptionsJSON extracts sort/limit/skip/projection from a decoded request
// body, preserving the user's sort key order from the raw JSON.
func ParseOptionsJSON(body map[string]any, raw []byte) (Options, error) {
	opts := Options{}

	if limit, ok := body["limit"]; ok {
		n, err := toInt(limit)
		if err != nil || n < 0 {
			return opts, apperr.BadRequest("limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if skip, ok := body["skip"]; ok {
		n, err := toInt(skip)
		if err != nil || n < 0 {
			return opts, apperr.BadRequest("skip must be a non-negative integer")
		}
		opts.Skip = n
	}

	if _, ok := body["sort"]; ok {
		sortFields, err := sortFromRawJSON(raw)
		if err != nil {
			return opts, err
		}
		opts.Sort = sortFields
	}

	if rawProj, ok := body["projection"]; ok {
		proj, err := projectionFromMap(rawProj)
		if err != nil {
			return opts, err
		}
		opts.Projection = proj
	}

	return opts, nil
}

// SortFromQuery parses "name,-age" into an ordered sort list.
func SortFromQuery(value string) []SortField {
	var out []SortField
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			out = append(out, SortField{Field: strings.TrimPrefix(part, "-"), Desc: true})
		} else {
			out = append(out, SortField{Field: strings.TrimPrefix(part, "+")})
		}
	}
	return out
}

// sortFromRawJSON walks the raw body tokens to recover the insertion order of
// the sort object, which encoding/json map decoding discards.
func sortFromRawJSON(raw []byte) ([]SortField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	// Scan top-level keys for "sort".
	if _, err := dec.Token(); err != nil { // opening {
		return nil, apperr.BadRequest("Invalid JSON body")
	}
	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return nil, apperr.BadRequest("Invalid JSON body")
		}
		key, _ := keyToken.(string)
		if key != "sort" {
			// Skip this key's value entirely.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, apperr.BadRequest("Invalid JSON body")
			}
			continue
		}
		return decodeSortObject(dec)
	}
	return nil, nil
}

// decodeSortObject reads {"field": ±1, ...} preserving key order.
func decodeSortObject(dec *json.Decoder) ([]SortField, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, apperr.BadRequest("Invalid sort object")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, apperr.BadRequest("sort must be an object of field: 1|-1")
	}

	var out []SortField
	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return nil, apperr.BadRequest("Invalid sort object")
		}
		field, _ := keyToken.(string)

		valToken, err := dec.Token()
		if err != nil {
			return nil, apperr.BadRequest("Invalid sort object")
		}
		direction, err := toInt(valToken)
		if err != nil || (direction != 1 && direction != -1) {
			return nil, apperr.BadRequest(fmt.Sprintf("sort direction for '%s' must be 1 or -1", field))
		}
		out = append(out, SortField{Field: field, Desc: direction == -1})
	}
	// Consume closing }.
	_, _ = dec.Token()
	return out, nil
}

// projectionFromMap parses {"f": 0|1}; mixing modes is rejected.
func projectionFromMap(raw any) (*Projection, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.BadRequest("projection must be an object of field: 0|1")
	}
	if len(obj) == 0 {
		return nil, nil
	}

	proj := &Projection{Fields: map[string]bool{}}
	first := true
	for _, field := range sortedKeys(obj) {
		flag, err := toInt(obj[field])
		if err != nil || (flag != 0 && flag != 1) {
			return nil, apperr.BadRequest(fmt.Sprintf("projection flag for '%s' must be 0 or 1", field))
		}
		include := flag == 1
		if first {
			proj.Include = include
			first = false
		} else if proj.Include != include {
			return nil, apperr.BadRequest("projection cannot mix include and exclude modes")
		}
		proj.Fields[field] = true
	}
	return proj, nil
}

// # Helpers

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toInt converts the numeric representations produced by JSON decoding.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int(n), nil
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}
