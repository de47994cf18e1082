// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"context"
	"log/slog"

	"github.com/taibuivan/sigma/internal/filter"
)

// Read executes the read variant: a nested (father document) query when the
// endpoint configures one, a root document query otherwise.
func (s *Service) Read(ctx context.Context, req *Request) ([]map[string]any, error) {
	ep := req.Endpoint

	// 1. Allowlist validation, exhaustive across the whole tree.
	if err := filter.Validate(req.Filter, ep.ReadFilter); err != nil {
		return nil, err
	}
	if err := filter.ValidateSort(req.Options.Sort, ep.ReadFilter); err != nil {
		return nil, err
	}

	// 2. Nested queries predicate over the expanded array element, not the
	// root document.
	if ep.FatherPath != "" {
		res, err := filter.TranslateOver(req.Filter, req.Options, s.d, s.d.ArrayElement("item"))
		if err != nil {
			return nil, err
		}
		elements, err := s.store.FindNested(ctx, ep.Collection, ep.FatherPath, res)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(elements))
		for _, element := range elements {
			out = append(out, s.renderDocument(ep, element, req))
		}
		return out, nil
	}

	// 3. Root query.
	res, err := filter.Translate(req.Filter, req.Options, s.d)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Find(ctx, ep.Collection, res)
	if err != nil {
		return nil, err
	}
	return s.renderDocuments(ep, docs, req), nil
}

// ReadSequence serves one change feed page and advances the stored checkpoint.
func (s *Service) ReadSequence(ctx context.Context, req *Request) (*SequenceResult, error) {
	ep := req.Endpoint

	start := req.StartSequence
	if start < 0 {
		// No explicit cursor: resume where the last consumer left off.
		cp, err := s.store.LoadCheckpoint(ctx, ep.Collection)
		if err != nil {
			return nil, err
		}
		start = 0
		if cp != nil {
			start = cp.Sequence
		}
	}

	events, next, hasMore, err := s.store.NextPageBySequence(ctx, ep.Collection, start, req.BulkSize)
	if err != nil {
		return nil, err
	}

	for i := range events {
		events[i].Doc = s.renderDocument(ep, events[i].Doc, req)
	}

	// Checkpoint persistence is best-effort: a failed save must not fail a
	// successfully served page.
	if len(events) > 0 {
		if err := s.store.SaveCheckpoint(ctx, ep.Collection, next, ""); err != nil {
			s.log.Warn("sequence checkpoint save failed",
				slog.String("collection", ep.Collection),
				slog.String("error", err.Error()))
		}
	}

	return &SequenceResult{Data: events, NextSequence: next, HasMore: hasMore}, nil
}
