// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package endpoint

import (
	"bytes"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/taibuivan/sigma/internal/configstore"
	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/constants"
)

// registrySnapshot is the immutable routing table swapped on each rebuild.
type registrySnapshot struct {
	apiPrefix string
	byPath    map[string][]*Endpoint
	count     int
}

// Registry holds the current endpoint set. Lookups are lock-free reads of an
// atomically swapped snapshot; rebuilds replace the whole table at once so a
// request never observes a half-applied configuration change.
type Registry struct {
	log  *slog.Logger
	snap atomic.Pointer[registrySnapshot]
}

// NewRegistry returns an empty registry; every lookup misses until the first
// Rebuild.
func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{log: log}
	r.snap.Store(&registrySnapshot{byPath: map[string][]*Endpoint{}})
	return r
}

// Rebuild materializes the endpoint table from a configuration snapshot rooted
// at serviceRoot (/{env}/{service}) and swaps it in. It returns the schema
// sources found alongside the endpoints so the caller can refresh the schema
// manager from the same consistent snapshot.
func (r *Registry) Rebuild(snap configstore.Snapshot, serviceRoot string) map[string][]byte {
	serviceRoot = strings.TrimSuffix(serviceRoot, "/")
	apiPrefix := snap.GetOr(serviceRoot+"/"+constants.NodeAPIPrefix, "")

	endpointsRoot := serviceRoot + "/" + constants.NodeEndpoints
	byPath := map[string][]*Endpoint{}
	count := 0
	for _, name := range snap.ChildNames(endpointsRoot) {
		nodeRoot := endpointsRoot + "/" + name

		// Two definition shapes coexist: the node either holds the whole
		// definition as one JSON blob, or spreads each property over its own
		// child node.
		var ep *Endpoint
		var err error
		if raw := bytes.TrimSpace(snap[nodeRoot]); len(raw) > 0 && raw[0] == '{' {
			ep, err = Materialize(name, raw, apiPrefix)
		} else {
			ep, err = MaterializeTree(name, snap, nodeRoot, apiPrefix)
		}
		if err != nil {
			// One bad node must not take down the rest of the table.
			r.log.Error("skipping malformed endpoint definition",
				slog.String("endpoint", name),
				slog.String("error", err.Error()))
			continue
		}
		byPath[ep.Path] = append(byPath[ep.Path], ep)
		count++
	}

	r.snap.Store(&registrySnapshot{apiPrefix: apiPrefix, byPath: byPath, count: count})
	r.log.Info("endpoint registry rebuilt",
		slog.String("api_prefix", apiPrefix),
		slog.Int("endpoints", count))

	// Schema sources live in the same subtree and must stay consistent with
	// the endpoint table that references them.
	schemasRoot := serviceRoot + "/" + constants.NodeSchemas
	schemas := map[string][]byte{}
	for _, name := range snap.ChildNames(schemasRoot) {
		if raw, ok := snap[schemasRoot+"/"+name]; ok && len(raw) > 0 {
			schemas[name] = raw
		}
	}
	return schemas
}

// Lookup resolves a request to its endpoint. An unknown path is a not-found;
// a known path without the method is a method-not-allowed.
func (r *Registry) Lookup(method, path string) (*Endpoint, error) {
	snap := r.snap.Load()
	candidates, ok := snap.byPath[normalizePath(path)]
	if !ok || len(candidates) == 0 {
		return nil, apperr.NotFound("endpoint")
	}
	for _, ep := range candidates {
		if ep.Methods[method] {
			return ep, nil
		}
	}
	return nil, apperr.MethodNotAllowed(method, path)
}

// Count returns the number of materialized endpoints, for health reporting.
func (r *Registry) Count() int {
	return r.snap.Load().count
}

// normalizePath strips a trailing slash so /products/ and /products route the
// same.
func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
