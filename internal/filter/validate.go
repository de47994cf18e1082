// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package filter

import (
	"fmt"

	"github.com/taibuivan/sigma/internal/platform/apperr"
)

// Validate traverses the tree against the endpoint's allowlist. Validation is
// exhaustive: every invalid field or operator contributes its own detail
// entry, and the error list length equals the number of violations.
//
// A nil node (empty filter) is always valid.
func Validate(node Node, cfg Config) error {
	if node == nil {
		return nil
	}

	var details []string
	collect(node, cfg, &details)

	if len(details) > 0 {
		// _id predicates are implicitly allowed, so a pure-_id filter passes
		// even with no allowlist configured. Anything else on an unconfigured
		// endpoint gets the blanket message rather than one detail per field.
		if !cfg.Enabled() {
			return apperr.ValidationError("Invalid filter",
				"Filtering is not enabled for this endpoint")
		}
		return apperr.ValidationError("Invalid filter", details...)
	}
	return nil
}

// collect appends one detail per violation, recursing through logical nodes.
func collect(node Node, cfg Config, details *[]string) {
	switch n := node.(type) {
	case FieldCond:
		if !cfg.AllowsField(n.Field) {
			*details = append(*details,
				fmt.Sprintf("Field '%s' is not allowed for filtering", n.Field))
			return
		}
		if !cfg.Allows(n.Field, n.Op) {
			*details = append(*details,
				fmt.Sprintf("Operator $%s is not allowed for field '%s'", n.Op, n.Field))
		}
	case Logical:
		for _, child := range n.Children {
			collect(child, cfg, details)
		}
	case Not:
		collect(n.Child, cfg, details)
	}
}

// ValidateSort checks that every sort field is readable under the allowlist.
// Sorting on a field requires that the field participates in filtering at all;
// no specific operator is required.
func ValidateSort(sort []SortField, cfg Config) error {
	if len(sort) == 0 {
		return nil
	}

	var details []string
	for _, s := range sort {
		if !cfg.AllowsField(s.Field) {
			details = append(details,
				fmt.Sprintf("Field '%s' is not allowed for sorting", s.Field))
		}
	}
	if len(details) > 0 {
		if !cfg.Enabled() {
			return apperr.ValidationError("Invalid sort",
				"Filtering is not enabled for this endpoint")
		}
		return apperr.ValidationError("Invalid sort", details...)
	}
	return nil
}
