// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/sigma/pkg/jsonx"
)

/*
TestPrepareSubEntitiesForCreate verifies myId assignment on new elements and
the born-deleted rejection.
*/
func TestPrepareSubEntitiesForCreate(t *testing.T) {
	doc := map[string]any{
		"name": "order-1",
		"items": []any{
			map[string]any{"sku": "A"},
			map[string]any{"sku": "B", "myId": "keep-me"},
		},
	}

	require.NoError(t, prepareSubEntitiesForCreate(doc, []string{"items", "absent"}))

	items := doc["items"].([]any)
	first := items[0].(map[string]any)
	assert.NotEmpty(t, first["myId"], "new elements get a generated myId")
	assert.Equal(t, "keep-me", items[1].(map[string]any)["myId"])

	deleted := map[string]any{
		"items": []any{map[string]any{"sku": "A", "isDelete": true}},
	}
	assert.Error(t, prepareSubEntitiesForCreate(deleted, []string{"items"}))

	notArray := map[string]any{"items": "oops"}
	assert.Error(t, prepareSubEntitiesForCreate(notArray, []string{"items"}))
}

/*
TestMergeSubEntityArray_FieldMerge verifies that a known myId merges fields
into the existing element, keeping untouched fields and element order.
*/
func TestMergeSubEntityArray_FieldMerge(t *testing.T) {
	existing := []any{
		map[string]any{"myId": "a", "sku": "A", "qty": float64(1)},
		map[string]any{"myId": "b", "sku": "B", "qty": float64(5)},
	}
	incoming := []any{
		map[string]any{"myId": "a", "qty": float64(3)},
	}

	out, err := mergeSubEntityArray("items", existing, incoming)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0].(map[string]any)
	assert.Equal(t, "A", first["sku"], "unmentioned fields survive")
	assert.Equal(t, float64(3), first["qty"])
	assert.Equal(t, float64(5), out[1].(map[string]any)["qty"], "untouched elements keep state")
}

/*
TestMergeSubEntityArray_AppendNew verifies new elements append with a caller or
generated myId, and the isDelete key never persists.
*/
func TestMergeSubEntityArray_AppendNew(t *testing.T) {
	existing := []any{map[string]any{"myId": "a", "sku": "A"}}
	incoming := []any{
		map[string]any{"sku": "NEW", "isDelete": false},
		map[string]any{"myId": "chosen", "sku": "CHOSEN"},
	}

	out, err := mergeSubEntityArray("items", existing, incoming)
	require.NoError(t, err)
	require.Len(t, out, 3)

	appended := out[1].(map[string]any)
	assert.Equal(t, "NEW", appended["sku"])
	assert.NotEmpty(t, appended["myId"])
	assert.NotContains(t, appended, "isDelete")
	assert.Equal(t, "chosen", out[2].(map[string]any)["myId"])
}

/*
TestMergeSubEntityArray_Delete verifies logical element deletion and the strict
rejection of deleting an element that does not exist.
*/
func TestMergeSubEntityArray_Delete(t *testing.T) {
	existing := []any{map[string]any{"myId": "a", "sku": "A"}}

	out, err := mergeSubEntityArray("items", existing,
		[]any{map[string]any{"myId": "a", "isDelete": true}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, true, out[0].(map[string]any)["isDeleted"], "deletion is logical, the element stays")

	_, err = mergeSubEntityArray("items", existing,
		[]any{map[string]any{"myId": "ghost", "isDelete": true}})
	assert.Error(t, err)

	_, err = mergeSubEntityArray("items", existing,
		[]any{map[string]any{"isDelete": true}})
	assert.Error(t, err, "deletion without a myId is rejected")
}

/*
TestMergeSubEntityArray_DoesNotMutateInputs verifies the existing list is
cloned before merging.
*/
func TestMergeSubEntityArray_DoesNotMutateInputs(t *testing.T) {
	existing := []any{map[string]any{"myId": "a", "qty": float64(1)}}

	_, err := mergeSubEntityArray("items", existing,
		[]any{map[string]any{"myId": "a", "qty": float64(9)}})
	require.NoError(t, err)
	assert.Equal(t, float64(1), existing[0].(map[string]any)["qty"])
}

/*
TestApplySubEntityMerges verifies orchestration over a shallow-merged document:
mentioned arrays merge element-wise and omitted arrays are restored from the
existing document.
*/
func TestApplySubEntityMerges(t *testing.T) {
	existing := map[string]any{
		"items":     []any{map[string]any{"myId": "a", "sku": "A"}},
		"shipments": []any{map[string]any{"myId": "s1", "carrier": "DHL"}},
	}
	incoming := map[string]any{
		"items": []any{map[string]any{"myId": "a", "sku": "A2"}},
		"note":  "updated",
	}
	merged := jsonx.Merge(existing, incoming)

	require.NoError(t, applySubEntityMerges(existing, incoming, merged, []string{"items", "shipments"}))

	items := merged["items"].([]any)
	assert.Equal(t, "A2", items[0].(map[string]any)["sku"])

	shipments := merged["shipments"].([]any)
	require.Len(t, shipments, 1)
	assert.Equal(t, "DHL", shipments[0].(map[string]any)["carrier"])
	assert.Equal(t, "updated", merged["note"])
}
