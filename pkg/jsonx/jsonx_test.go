// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package jsonx_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/sigma/pkg/jsonx"
)

/*
TestGetPath covers dot-path resolution, including misses through non-object
segments.
*/
func TestGetPath(t *testing.T) {
	doc := map[string]any{
		"a": map[string]any{
			"b": map[string]any{"c": float64(1)},
		},
		"s": "leaf",
	}

	value, ok := jsonx.GetPath(doc, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, float64(1), value)

	value, ok = jsonx.GetPath(doc, "a.b")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"c": float64(1)}, value)

	_, ok = jsonx.GetPath(doc, "a.missing")
	assert.False(t, ok)

	_, ok = jsonx.GetPath(doc, "s.c")
	assert.False(t, ok, "cannot descend through a scalar")
}

/*
TestMerge verifies the shallow merge leaves both inputs untouched.
*/
func TestMerge(t *testing.T) {
	base := map[string]any{"a": float64(1), "b": "keep"}
	overlay := map[string]any{"a": float64(2), "c": true}

	out := jsonx.Merge(base, overlay)

	assert.Equal(t, map[string]any{"a": float64(2), "b": "keep", "c": true}, out)
	assert.Equal(t, float64(1), base["a"])
	assert.NotContains(t, base, "c")
}

/*
TestClone verifies the deep copy is detached from the original.
*/
func TestClone(t *testing.T) {
	original := map[string]any{
		"nested": map[string]any{"x": float64(1)},
		"list":   []any{float64(1), float64(2)},
	}

	copied := jsonx.Clone(original)
	copied["nested"].(map[string]any)["x"] = float64(99)
	copied["list"].([]any)[0] = float64(99)

	assert.Equal(t, float64(1), original["nested"].(map[string]any)["x"])
	assert.Equal(t, float64(1), original["list"].([]any)[0])
	assert.Nil(t, jsonx.Clone(nil))
}

/*
TestEqual covers the numeric-tolerant deep equality used by no-op detection.
*/
func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int_vs_float", 30, float64(30), true},
		{"json_number", json.Number("30"), int64(30), true},
		{"float_mismatch", float64(30), float64(30.5), false},
		{"strings", "a", "a", true},
		{"string_vs_number", "30", float64(30), false},
		{"nils", nil, nil, true},
		{"nil_vs_value", nil, "x", false},
		{"equal_objects", map[string]any{"a": 1}, map[string]any{"a": float64(1)}, true},
		{"object_extra_key", map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}, false},
		{"equal_lists", []any{1, "x"}, []any{float64(1), "x"}, true},
		{"list_order_matters", []any{1, 2}, []any{2, 1}, false},
		{"nested", map[string]any{"a": []any{map[string]any{"b": 1}}},
			map[string]any{"a": []any{map[string]any{"b": float64(1)}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonx.Equal(tt.a, tt.b))
		})
	}
}

/*
TestEqual_RoundTrip verifies a decoded-re-encoded document compares equal to
its source, which is what the write path relies on.
*/
func TestEqual_RoundTrip(t *testing.T) {
	doc := map[string]any{
		"name":  "shirt",
		"price": float64(10),
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"depth": float64(2)},
	}

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.True(t, jsonx.Equal(doc, decoded))
}

/*
TestIsNumber covers the numeric representation probe.
*/
func TestIsNumber(t *testing.T) {
	assert.True(t, jsonx.IsNumber(float64(1)))
	assert.True(t, jsonx.IsNumber(int64(1)))
	assert.True(t, jsonx.IsNumber(json.Number("1.5")))
	assert.False(t, jsonx.IsNumber("1"))
	assert.False(t, jsonx.IsNumber(nil))
}
