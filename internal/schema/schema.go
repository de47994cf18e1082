// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package schema validates documents against JSON Schema definitions from the
configuration tree and manages the enumeration catalog those schemas draw from.

Architecture:

  - Enums: fetches the enumeration catalog over HTTP on a fixed-delay loop,
    swapping immutable snapshots; an optional Redis cache warm-starts the
    catalog when the source is down at boot.
  - Manager: compiles schema documents, splicing enumRef markers into concrete
    enum keywords from the current catalog. Compiled schemas are memoized per
    catalog generation, so a catalog refresh transparently recompiles.
  - Enrichment: every spliced enumRef remembers its field path, letting
    responses expand stored codes into {code, value} objects.
*/
package schema

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/taibuivan/sigma/internal/platform/apperr"
)

// enumRefKeyword marks a schema node whose enum values come from the catalog:
//
//	{"type": "string", "enumRef": "CURRENCY"}
const enumRefKeyword = "enumRef"

// compiledSchema pairs a compiled schema with the catalog generation it was
// built against and the enum field paths discovered during splicing.
type compiledSchema struct {
	schema     *jsonschema.Schema
	generation uint64
	enumFields map[string]string
}

// Manager compiles and caches the schemas named by endpoint definitions.
type Manager struct {
	enums *Enums
	log   *slog.Logger

	mu       sync.RWMutex
	sources  map[string][]byte
	compiled map[string]*compiledSchema
}

// NewManager builds an empty manager bound to an enum catalog.
func NewManager(enums *Enums, log *slog.Logger) *Manager {
	return &Manager{
		enums:    enums,
		log:      log,
		sources:  map[string][]byte{},
		compiled: map[string]*compiledSchema{},
	}
}

// SetSources replaces the schema documents, invalidating every compiled entry.
// Called whenever the configuration tree's schema subtree changes.
func (m *Manager) SetSources(sources map[string][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = sources
	m.compiled = map[string]*compiledSchema{}
}

// Has reports whether a schema document is registered under name.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sources[name]
	return ok
}

// Validate checks a document against the named schema. The returned error is a
// validation AppError whose details enumerate every violation.
func (m *Manager) Validate(name string, doc map[string]any) error {
	cs, err := m.get(name)
	if err != nil {
		return err
	}
	if err := m.checkEnumGate(cs); err != nil {
		return err
	}

	result := cs.schema.Validate(doc)
	if result.IsValid() {
		return nil
	}
	return apperr.ValidationError("Document validation failed", flattenResult(result.ToList(), "")...)
}

// ValidateBulk checks every document of a batch, prefixing each violation with
// the zero-based document index. All documents are checked; the batch fails as
// a whole when any fails.
func (m *Manager) ValidateBulk(name string, docs []map[string]any) error {
	cs, err := m.get(name)
	if err != nil {
		return err
	}
	if err := m.checkEnumGate(cs); err != nil {
		return err
	}

	var details []string
	for i, doc := range docs {
		result := cs.schema.Validate(doc)
		if !result.IsValid() {
			details = append(details, flattenResult(result.ToList(), fmt.Sprintf("document %d", i))...)
		}
	}
	if len(details) > 0 {
		return apperr.ValidationError("Document validation failed", details...)
	}
	return nil
}

// Enrich expands stored enum codes into {code, value} objects at every field
// the schema binds to a catalog. Unknown codes and absent fields pass through
// untouched. The input document is modified in place and returned.
func (m *Manager) Enrich(name string, doc map[string]any) map[string]any {
	cs, err := m.get(name)
	if err != nil || len(cs.enumFields) == 0 {
		return doc
	}
	catalogs, _ := m.enums.Snapshot()

	for path, catalog := range cs.enumFields {
		enrichPath(doc, strings.Split(path, "."), catalog, catalogs)
	}
	return doc
}

// checkEnumGate refuses enum-validated writes while the catalog source is
// failing and FailOnEnumLoadFailure is set. Schemas without enum bindings are
// never gated.
func (m *Manager) checkEnumGate(cs *compiledSchema) error {
	if len(cs.enumFields) == 0 || !m.enums.WritesBlocked() {
		return nil
	}
	return apperr.Upstream("enum catalog",
		fmt.Errorf("schema: enum catalog refresh is failing, enum-validated writes are suspended"))
}

// get returns the compiled schema, recompiling when the source is new or the
// enum catalog advanced since the last compile.
func (m *Manager) get(name string) (*compiledSchema, error) {
	_, generation := m.enums.Snapshot()

	m.mu.RLock()
	cs, ok := m.compiled[name]
	m.mu.RUnlock()
	if ok && cs.generation == generation {
		return cs, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock.
	if cs, ok := m.compiled[name]; ok && cs.generation == generation {
		return cs, nil
	}

	source, ok := m.sources[name]
	if !ok {
		return nil, apperr.Internal(fmt.Errorf("schema: %q is not registered", name))
	}

	cs, err := m.compile(name, source, generation)
	if err != nil {
		return nil, err
	}
	m.compiled[name] = cs
	return cs, nil
}

// compile splices enumRef markers and compiles the result.
func (m *Manager) compile(name string, source []byte, generation uint64) (*compiledSchema, error) {
	catalogs, _ := m.enums.Snapshot()

	spliced, enumFields, err := SpliceEnumRefs(source, catalogs, m.log)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("schema %q: %w", name, err))
	}

	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(spliced)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("schema %q: compiling: %w", name, err))
	}

	return &compiledSchema{
		schema:     compiled,
		generation: generation,
		enumFields: enumFields,
	}, nil
}

// # Violation Flattening

// flattenResult collects every leaf error into "location: message" details,
// in deterministic order.
func flattenResult(list *jsonschema.List, prefix string) []string {
	var details []string
	walkList(list, prefix, &details)
	sort.Strings(details)
	return details
}

func walkList(list *jsonschema.List, prefix string, details *[]string) {
	if list == nil {
		return
	}
	for _, msg := range list.Errors {
		location := strings.TrimPrefix(list.InstanceLocation, "/")
		location = strings.ReplaceAll(location, "/", ".")
		var detail string
		switch {
		case location != "" && prefix != "":
			detail = fmt.Sprintf("%s: %s: %s", prefix, location, msg)
		case location != "":
			detail = fmt.Sprintf("%s: %s", location, msg)
		case prefix != "":
			detail = fmt.Sprintf("%s: %s", prefix, msg)
		default:
			detail = msg
		}
		*details = append(*details, detail)
	}
	for i := range list.Details {
		walkList(&list.Details[i], prefix, details)
	}
}
