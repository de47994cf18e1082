// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package gateway is the request engine: it resolves a request to a materialized
endpoint and executes the operation variant against the document store.

Architecture:

  - Request parser: classifies the HTTP request into read, sequence read,
    create, update, upsert, or delete, extracting predicate, options, payload,
    and the optimistic If-Match guard.
  - Query executor: root, nested (father document), and sequence feed reads.
  - Write orchestrator: sanitize → validate → sub-entity merge → no-op
    detection → persist, all inside a single transaction per request.
  - Response builder: enum enrichment, time formatting, projection, and the
    operation-specific envelopes.
*/
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/taibuivan/sigma/internal/dialect"
	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/platform/respond"
	"github.com/taibuivan/sigma/internal/repository"
	"github.com/taibuivan/sigma/internal/schema"
)

// Service executes gateway requests against materialized endpoints.
type Service struct {
	registry *endpoint.Registry
	store    repository.Store
	schemas  *schema.Manager
	d        dialect.Dialect
	log      *slog.Logger
}

// NewService wires the request engine.
func NewService(registry *endpoint.Registry, store repository.Store, schemas *schema.Manager, d dialect.Dialect, log *slog.Logger) *Service {
	return &Service{registry: registry, store: store, schemas: schemas, d: d, log: log}
}

// Handler serves every configured endpoint: the router mounts it as the
// catch-all under the API surface, and routing happens against the registry
// snapshot rather than static routes so configuration changes apply without
// re-mounting.
func (s *Service) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ep, err := s.registry.Lookup(r.Method, r.URL.Path)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		req, err := ParseRequest(r, ep)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		ctx := r.Context()
		switch req.Operation {
		case OpRead:
			docs, err := s.Read(ctx, req)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			if docs == nil {
				docs = []map[string]any{}
			}
			respond.OK(w, docs)

		case OpSequence:
			page, err := s.ReadSequence(ctx, req)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			respond.OK(w, page)

		default:
			result, err := s.Write(ctx, req)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			// Inserts respond 201 whether they came from a create or an
			// upsert that found no match.
			inserted := req.Operation == OpCreate ||
				(result.WasInserted != nil && *result.WasInserted)
			if inserted {
				respond.Created(w, result)
				return
			}
			respond.OK(w, result)
		}
	}
}
