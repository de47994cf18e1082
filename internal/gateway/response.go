// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"time"

	"github.com/taibuivan/sigma/internal/document"
	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/filter"
	"github.com/taibuivan/sigma/pkg/timeformat"
)

// WriteResult is the envelope returned by every mutating operation. The
// operation-specific fields are pointers so each operation serializes only its
// own: matched/modified must render zero explicitly, while absent fields stay
// off the wire.
type WriteResult struct {
	Type          string `json:"type"`
	Success       bool   `json:"success"`
	AffectedCount int64  `json:"affectedCount"`

	// Create.
	InsertedIDs []int64 `json:"insertedIds,omitempty"`

	// Update. Message explains a matched-but-unmodified no-op.
	Matched  *int64 `json:"matched,omitempty"`
	Modified *int64 `json:"modified,omitempty"`
	Message  string `json:"message,omitempty"`

	// Delete.
	DeletedCount *int64 `json:"deletedCount,omitempty"`

	// Upsert.
	WasInserted *bool  `json:"wasInserted,omitempty"`
	DocumentID  *int64 `json:"documentId,omitempty"`

	Data []map[string]any `json:"data,omitempty"`
}

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

// SequenceResult is the change feed page envelope.
type SequenceResult struct {
	Data         []document.ChangeEvent `json:"data"`
	NextSequence int64                  `json:"nextSequence"`
	HasMore      bool                   `json:"hasMore"`
}

// renderDocuments converts rows into wire documents: enum enrichment, time
// formatting, and post-fetch projection, in that order.
func (s *Service) renderDocuments(ep *endpoint.Endpoint, docs []*document.Document, req *Request) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, s.renderDocument(ep, doc.Render(), req))
	}
	return out
}

// renderDocument applies the response transformations to one wire document.
func (s *Service) renderDocument(ep *endpoint.Endpoint, rendered map[string]any, req *Request) map[string]any {
	if ep.SchemaName != "" && s.schemas.Has(ep.SchemaName) {
		rendered = s.schemas.Enrich(ep.SchemaName, rendered)
	}
	renderTimes(rendered, req.TimeFormat)
	return applyProjection(rendered, req.Options.Projection)
}

// renderTimes rewrites time.Time values (the system timestamp fields) per the
// requested format.
func renderTimes(doc map[string]any, format timeformat.Format) {
	for key, value := range doc {
		if t, ok := value.(time.Time); ok {
			doc[key] = format.Render(t)
		}
	}
}

// applyProjection keeps or drops fields post-fetch. The _id field always
// survives include mode, mirroring the query semantics clients expect.
func applyProjection(doc map[string]any, proj *filter.Projection) map[string]any {
	if proj == nil || len(proj.Fields) == 0 {
		return doc
	}

	if proj.Include {
		out := make(map[string]any, len(proj.Fields)+1)
		if id, ok := doc[document.FieldID]; ok {
			out[document.FieldID] = id
		}
		for field := range proj.Fields {
			if value, ok := doc[field]; ok {
				out[field] = value
			}
		}
		return out
	}

	for field := range proj.Fields {
		delete(doc, field)
	}
	return doc
}
