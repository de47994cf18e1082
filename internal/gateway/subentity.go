// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/constants"
	"github.com/taibuivan/sigma/pkg/jsonx"
)

// Sub-entity semantics: a configured array path holds elements identified by a
// stable myId. Incoming elements are instructions, not state:
//
//   - no myId            → a new element; the gateway assigns its myId
//   - known myId         → field-level merge into the existing element
//   - isDelete: true     → logical deletion of an existing element
//
// Deletion is strict both ways: deleting an element that does not exist is an
// error, and so is creating an element that is born deleted.

// prepareSubEntitiesForCreate validates and stamps the sub-entity arrays of a
// brand-new document.
func prepareSubEntitiesForCreate(doc map[string]any, paths []string) error {
	for _, path := range paths {
		raw, ok := jsonx.GetPath(doc, path)
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			return apperr.ValidationError("Invalid sub-entities",
				fmt.Sprintf("Sub-entity field '%s' must be an array", path))
		}
		for i, item := range list {
			element, ok := item.(map[string]any)
			if !ok {
				return apperr.ValidationError("Invalid sub-entities",
					fmt.Sprintf("Sub-entity '%s' element %d must be an object", path, i))
			}
			if isDeleteRequested(element) {
				return apperr.ValidationError("Invalid sub-entities",
					fmt.Sprintf("Sub-entity '%s' element %d cannot be deleted on create", path, i))
			}
			if _, has := element[constants.FieldMyID]; !has {
				element[constants.FieldMyID] = newSubEntityID()
			}
		}
	}
	return nil
}

// applySubEntityMerges rewrites every configured array in merged by treating
// the incoming array as instructions against the existing one. Paths absent
// from the incoming document keep their existing state.
func applySubEntityMerges(existing, incoming, merged map[string]any, paths []string) error {
	for _, path := range paths {
		rawIncoming, ok := jsonx.GetPath(incoming, path)
		if !ok {
			// Shallow merge may have dropped the existing array when a nested
			// path's top segment was overwritten; restore it explicitly.
			if rawExisting, has := jsonx.GetPath(existing, path); has {
				setPath(merged, path, rawExisting)
			}
			continue
		}
		incomingList, ok := rawIncoming.([]any)
		if !ok {
			return apperr.ValidationError("Invalid sub-entities",
				fmt.Sprintf("Sub-entity field '%s' must be an array", path))
		}

		var existingList []any
		if rawExisting, has := jsonx.GetPath(existing, path); has {
			existingList, _ = rawExisting.([]any)
		}

		result, err := mergeSubEntityArray(path, existingList, incomingList)
		if err != nil {
			return err
		}
		setPath(merged, path, result)
	}
	return nil
}

// mergeSubEntityArray folds the incoming instruction list into the existing
// element list, preserving existing element order and appending new elements.
func mergeSubEntityArray(path string, existing, incoming []any) ([]any, error) {
	out := make([]any, 0, len(existing)+len(incoming))
	index := map[string]map[string]any{}
	for _, item := range existing {
		element, ok := item.(map[string]any)
		if !ok {
			continue
		}
		copied := jsonx.Clone(element)
		out = append(out, copied)
		if id, has := copied[constants.FieldMyID].(string); has {
			index[id] = copied
		}
	}

	for i, item := range incoming {
		element, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.ValidationError("Invalid sub-entities",
				fmt.Sprintf("Sub-entity '%s' element %d must be an object", path, i))
		}
		id, hasID := element[constants.FieldMyID].(string)
		target := index[id]

		if isDeleteRequested(element) {
			if !hasID || target == nil {
				return nil, apperr.ValidationError("Invalid sub-entities",
					fmt.Sprintf("Sub-entity '%s' element %d requests deletion of a non-existing element", path, i))
			}
			target[constants.FieldIsDeleted] = true
			continue
		}

		if target != nil {
			// Field-level merge; myId and isDeleted state survive.
			for k, v := range element {
				if k == constants.FieldIsDelete {
					continue
				}
				target[k] = v
			}
			continue
		}

		// New element, with a caller-chosen or assigned myId.
		created := jsonx.Clone(element)
		delete(created, constants.FieldIsDelete)
		if !hasID {
			created[constants.FieldMyID] = newSubEntityID()
		}
		out = append(out, created)
		if id, has := created[constants.FieldMyID].(string); has {
			index[id] = created
		}
	}
	return out, nil
}

// isDeleteRequested reads the client-side isDelete flag.
func isDeleteRequested(element map[string]any) bool {
	flag, _ := element[constants.FieldIsDelete].(bool)
	return flag
}

// newSubEntityID mints a time-ordered identifier for a new element.
func newSubEntityID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// setPath writes value at a dot path, creating intermediate objects as needed.
func setPath(doc map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}
