// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// SpliceEnumRefs rewrites every enumRef marker in a schema document into a
// concrete enum keyword built from the catalog, and returns the rewritten
// document plus the instance field paths bound to each catalog.
//
// A marker naming an unknown catalog keeps the node unconstrained (the marker
// is dropped, no enum keyword is added) so documents keep flowing while the
// catalog source is incomplete; the binding is still recorded for enrichment.
func SpliceEnumRefs(source []byte, catalogs Catalog, log *slog.Logger) ([]byte, map[string]string, error) {
	var root any
	if err := json.Unmarshal(source, &root); err != nil {
		return nil, nil, fmt.Errorf("parsing schema document: %w", err)
	}

	enumFields := map[string]string{}
	spliced := spliceNode(root, nil, catalogs, enumFields, log)

	out, err := json.Marshal(spliced)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding spliced schema: %w", err)
	}
	return out, enumFields, nil
}

// spliceNode walks the schema tree. path tracks the instance location: it
// extends under "properties" keys and stays put under "items", so array
// element fields enrich the same as scalar ones.
func spliceNode(node any, path []string, catalogs Catalog, enumFields map[string]string, log *slog.Logger) any {
	switch n := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for key, value := range n {
			switch key {
			case enumRefKeyword:
				catalog, _ := value.(string)
				if catalog == "" {
					continue
				}
				if len(path) > 0 {
					enumFields[strings.Join(path, ".")] = catalog
				}
				codes := catalogs.Codes(catalog)
				if codes == nil {
					log.Warn("enumRef names an unknown catalog, leaving field unconstrained",
						slog.String("catalog", catalog))
					continue
				}
				enum := make([]any, len(codes))
				for i, code := range codes {
					enum[i] = code
				}
				out["enum"] = enum
			case "properties":
				props, ok := value.(map[string]any)
				if !ok {
					out[key] = value
					continue
				}
				rewritten := make(map[string]any, len(props))
				for name, sub := range props {
					child := make([]string, len(path)+1)
					copy(child, path)
					child[len(path)] = name
					rewritten[name] = spliceNode(sub, child, catalogs, enumFields, log)
				}
				out[key] = rewritten
			default:
				out[key] = spliceNode(value, path, catalogs, enumFields, log)
			}
		}
		return out

	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = spliceNode(item, path, catalogs, enumFields, log)
		}
		return out

	default:
		return node
	}
}

// enrichPath replaces a stored code with its {code, value} expansion at the
// given path, fanning out across array elements along the way.
func enrichPath(node any, segs []string, catalog string, catalogs Catalog) {
	if len(segs) == 0 {
		return
	}

	switch n := node.(type) {
	case []any:
		for _, item := range n {
			enrichPath(item, segs, catalog, catalogs)
		}

	case map[string]any:
		key := segs[0]
		value, ok := n[key]
		if !ok {
			return
		}
		if len(segs) > 1 {
			enrichPath(value, segs[1:], catalog, catalogs)
			return
		}

		switch leaf := value.(type) {
		case string:
			if entry, found := catalogs.Lookup(catalog, leaf); found {
				n[key] = map[string]any{"code": entry.Code, "value": entry.Value}
			}
		case []any:
			for i, item := range leaf {
				code, isString := item.(string)
				if !isString {
					continue
				}
				if entry, found := catalogs.Lookup(catalog, code); found {
					leaf[i] = map[string]any{"code": entry.Code, "value": entry.Value}
				}
			}
		}
	}
}
