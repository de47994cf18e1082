// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package endpoint materializes REST endpoints from the configuration tree.

Architecture:

  - Definition: the raw JSON stored in one endpoints/ node.
  - Endpoint: the validated, immutable descriptor the gateway routes on.
  - Registry: an atomically swapped snapshot of all endpoints plus the schema
    sources, rebuilt whenever the configuration subtree changes.

A malformed definition never takes the service down: it is logged with its node
name and skipped, and every other endpoint keeps serving.
*/
package endpoint

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/taibuivan/sigma/internal/configstore"
	"github.com/taibuivan/sigma/internal/filter"
	"github.com/taibuivan/sigma/internal/platform/constants"
)

// Endpoint kinds. GraphQL-typed definitions are materialized like REST ones
// and served over the same REST surface; the kind is retained for routing
// metadata only.
const (
	KindREST    = "REST"
	KindGraphQL = "GRAPHQL"
)

// Definition is the JSON shape of one endpoints/ configuration node.
type Definition struct {
	Path               string              `json:"path"`
	HTTPMethod         string              `json:"httpMethod"`
	DatabaseCollection string              `json:"databaseCollection"`
	WriteMethods       []string            `json:"writeMethods"`
	Type               string              `json:"type"`
	SequenceEnabled    bool                `json:"sequenceEnabled"`
	DefaultBulkSize    int                 `json:"defaultBulkSize"`
	Schema             string              `json:"schema"`
	SubEntities        []string            `json:"subEntities"`
	FatherDocument     string              `json:"fatherDocument"`
	ReadFilter         map[string][]string `json:"readFilter"`
	WriteFilter        map[string][]string `json:"writeFilter"`
}

// Endpoint is a fully validated, immutable endpoint descriptor.
type Endpoint struct {
	// Name is the configuration node name, used in logs only.
	Name string

	// Path is the full request path including the service apiPrefix.
	Path string

	// Kind is REST or GRAPHQL.
	Kind string

	// Collection is the logical table_name partition in dynamic_documents.
	Collection string

	// Methods is the set of HTTP methods this endpoint accepts, reads and
	// writes combined; the registry routes on it.
	Methods map[string]bool

	// WriteMethods is the subset of Methods permitted to mutate documents. A
	// POST outside this set still routes, but only for body-filter reads.
	WriteMethods map[string]bool

	// SequenceEnabled exposes the change feed via the sequence query parameter.
	SequenceEnabled bool

	// BulkSize is the sequence feed batch size.
	BulkSize int

	// SchemaName names the validation schema; empty means no validation.
	SchemaName string

	// SchemaRequired rejects writes when the named schema is not registered.
	// When false, a missing schema degrades to no validation.
	SchemaRequired bool

	// SubEntities lists the document array paths managed with myId/isDelete
	// element semantics.
	SubEntities []string

	// FatherPath points at the array expanded by nested (father document)
	// queries; empty disables them.
	FatherPath string

	// ReadFilter and WriteFilter are the operator allowlists for queries and
	// for write predicates respectively.
	ReadFilter  filter.Config
	WriteFilter filter.Config
}

// IsWrite reports whether method is allowed to mutate state on this endpoint.
func (e *Endpoint) IsWrite(method string) bool {
	return e.WriteMethods[method]
}

var knownMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Materialize parses and validates one JSON definition node into an endpoint.
func Materialize(name string, raw []byte, apiPrefix string) (*Endpoint, error) {
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("endpoint %q: parsing definition: %w", name, err)
	}
	return materializeDefinition(name, def, apiPrefix)
}

// MaterializeTree builds an endpoint from the hierarchical configuration
// layout, where every definition property is its own child node under
// endpoints/{name} and filter allowlists are "$op1,$op2" strings under
// readFilter/{field} and writeFilter/{field}.
func MaterializeTree(name string, snap configstore.Snapshot, root, apiPrefix string) (*Endpoint, error) {
	def := Definition{
		Path:               snap.GetOr(root+"/path", ""),
		HTTPMethod:         snap.GetOr(root+"/httpMethod", ""),
		DatabaseCollection: snap.GetOr(root+"/databaseCollection", ""),
		Type:               snap.GetOr(root+"/type", ""),
		Schema:             snap.GetOr(root+"/schema", ""),
		FatherDocument:     snap.GetOr(root+"/fatherDocument", ""),
		WriteMethods:       splitList(snap.GetOr(root+"/writeMethods", "")),
		SubEntities:        splitList(snap.GetOr(root+"/subEntities", "")),
		SequenceEnabled:    strings.EqualFold(snap.GetOr(root+"/sequenceEnabled", ""), "true"),
	}

	if raw := snap.GetOr(root+"/defaultBulkSize", ""); raw != "" {
		size, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: defaultBulkSize %q is not an integer", name, raw)
		}
		def.DefaultBulkSize = size
	}

	def.ReadFilter = filterFromTree(snap, root+"/readFilter")
	def.WriteFilter = filterFromTree(snap, root+"/writeFilter")

	return materializeDefinition(name, def, apiPrefix)
}

// filterFromTree collects the allowlist child nodes of one filter subtree.
func filterFromTree(snap configstore.Snapshot, root string) map[string][]string {
	fields := snap.ChildNames(root)
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string][]string, len(fields))
	for _, field := range fields {
		out[field] = splitList(snap.GetOr(root+"/"+field, ""))
	}
	return out
}

// splitList splits a comma-separated configuration value, dropping blanks.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func materializeDefinition(name string, def Definition, apiPrefix string) (*Endpoint, error) {
	// 1. Required fields.
	if def.Path == "" {
		return nil, fmt.Errorf("endpoint %q: path is required", name)
	}
	if def.HTTPMethod == "" {
		return nil, fmt.Errorf("endpoint %q: httpMethod is required", name)
	}
	if def.DatabaseCollection == "" {
		return nil, fmt.Errorf("endpoint %q: databaseCollection is required", name)
	}

	// 2. Methods. The write set starts from writeMethods; a PUT, PATCH, or
	// DELETE primary method is a write by its nature. GET never writes, and
	// POST writes only when listed explicitly, since a POST primary can mean
	// body-filter reads.
	methods := map[string]bool{}
	writeMethods := map[string]bool{}
	primary := strings.ToUpper(strings.TrimSpace(def.HTTPMethod))
	if !knownMethods[primary] {
		return nil, fmt.Errorf("endpoint %q: unknown httpMethod %q", name, def.HTTPMethod)
	}
	methods[primary] = true
	switch primary {
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
		writeMethods[primary] = true
	}
	for _, m := range def.WriteMethods {
		method := strings.ToUpper(strings.TrimSpace(m))
		if !knownMethods[method] || method == http.MethodGet {
			return nil, fmt.Errorf("endpoint %q: invalid write method %q", name, m)
		}
		methods[method] = true
		writeMethods[method] = true
	}

	// 3. Kind.
	kind := strings.ToUpper(strings.TrimSpace(def.Type))
	switch kind {
	case "":
		kind = KindREST
	case KindREST, KindGraphQL:
	default:
		return nil, fmt.Errorf("endpoint %q: unknown type %q", name, def.Type)
	}

	// 4. Schema binding: "name" or "name:required".
	schemaName, schemaRequired := parseSchemaBinding(def.Schema)

	// 5. Filter allowlists. Unknown operator tokens poison the whole endpoint;
	// silently dropping them would widen what the operator intended to narrow.
	readCfg, err := buildFilterConfig(def.ReadFilter)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: readFilter: %w", name, err)
	}
	writeCfg, err := buildFilterConfig(def.WriteFilter)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: writeFilter: %w", name, err)
	}

	bulk := def.DefaultBulkSize
	if bulk <= 0 {
		bulk = constants.DefaultBulkSize
	}
	if bulk > constants.MaxBulkSize {
		bulk = constants.MaxBulkSize
	}

	return &Endpoint{
		Name:            name,
		Path:            joinPath(apiPrefix, def.Path),
		Kind:            kind,
		Collection:      def.DatabaseCollection,
		Methods:         methods,
		WriteMethods:    writeMethods,
		SequenceEnabled: def.SequenceEnabled,
		BulkSize:        bulk,
		SchemaName:      schemaName,
		SchemaRequired:  schemaRequired,
		SubEntities:     def.SubEntities,
		FatherPath:      def.FatherDocument,
		ReadFilter:      readCfg,
		WriteFilter:     writeCfg,
	}, nil
}

// parseSchemaBinding splits "name[:required]".
func parseSchemaBinding(binding string) (name string, required bool) {
	binding = strings.TrimSpace(binding)
	if binding == "" {
		return "", false
	}
	name, modifier, found := strings.Cut(binding, ":")
	if found && strings.EqualFold(strings.TrimSpace(modifier), "required") {
		return strings.TrimSpace(name), true
	}
	return strings.TrimSpace(name), false
}

// buildFilterConfig normalizes an allowlist, rejecting unknown operators.
func buildFilterConfig(raw map[string][]string) (filter.Config, error) {
	if len(raw) == 0 {
		return filter.Config{}, nil
	}
	fields := make(map[string]map[string]bool, len(raw))
	for field, tokens := range raw {
		ops := map[string]bool{}
		for _, token := range tokens {
			if !filter.KnownOperator(token) {
				return filter.Config{}, fmt.Errorf("unknown operator %q for field %q", token, field)
			}
			ops[filter.NormalizeToken(token)] = true
		}
		fields[field] = ops
	}
	return filter.Config{Fields: fields}, nil
}

// joinPath concatenates the apiPrefix and endpoint path with single slashes.
func joinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if prefix == "" {
		return path
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix + path
}
