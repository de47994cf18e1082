// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/taibuivan/sigma/internal/document"
	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/filter"
	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/ctxutil"
	"github.com/taibuivan/sigma/internal/repository"
	"github.com/taibuivan/sigma/pkg/jsonx"
)

// systemFields are stripped from every incoming payload; clients can never
// set them directly.
var systemFields = []string{
	document.FieldID, document.FieldVersion, document.FieldIsDeleted,
	document.FieldCreatedAt, document.FieldCreatedBy,
	document.FieldLastModifiedAt, document.FieldLastModifiedBy,
	document.FieldRequestID,
}

// Write orchestrates a mutating request. Every variant runs in exactly one
// transaction: validation and sub-entity work happen against rows read inside
// it, so the version guard closes the race between read and write.
func (s *Service) Write(ctx context.Context, req *Request) (*WriteResult, error) {
	ep := req.Endpoint

	// 1. Sanitize payloads.
	for _, doc := range req.Documents {
		stripSystemFields(doc)
	}

	// 2. Structural guards.
	if req.Multi && len(ep.SubEntities) > 0 {
		return nil, apperr.ValidationError("Invalid write",
			"Multi-document writes are not allowed on endpoints with sub-entities")
	}
	if req.Multi && req.ExpectedVersion != NoExpectedVersion {
		return nil, apperr.BadRequest("If-Match cannot be combined with a multi-document write")
	}

	// 3. Predicate allowlist (write filters are stricter than read filters).
	if err := filter.Validate(req.Filter, ep.WriteFilter); err != nil {
		return nil, err
	}

	audit := ctxutil.GetAudit(ctx)

	var result *WriteResult
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var txErr error
		switch req.Operation {
		case OpCreate:
			result, txErr = s.create(ctx, tx, req, audit)
		case OpUpdate:
			result, txErr = s.update(ctx, tx, req, audit)
		case OpUpsert:
			result, txErr = s.upsert(ctx, tx, req, audit)
		case OpDelete:
			result, txErr = s.remove(ctx, tx, req, audit)
		default:
			txErr = apperr.Internal(fmt.Errorf("gateway: unknown write operation %q", req.Operation))
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// # Create

func (s *Service) create(ctx context.Context, tx repository.Store, req *Request, audit document.AuditContext) (*WriteResult, error) {
	ep := req.Endpoint

	for _, doc := range req.Documents {
		if err := prepareSubEntitiesForCreate(doc, ep.SubEntities); err != nil {
			return nil, err
		}
	}
	if err := s.validateDocs(ep, req.Documents); err != nil {
		return nil, err
	}

	ids, err := tx.InsertMany(ctx, ep.Collection, req.Documents, audit)
	if err != nil {
		return nil, err
	}

	created, err := tx.FindByIDs(ctx, ep.Collection, ids)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Type:          OpCreate.EnvelopeType(),
		Success:       true,
		AffectedCount: int64(len(ids)),
		InsertedIDs:   ids,
		Data:          s.renderDocuments(ep, created, req),
	}, nil
}

// # Update

func (s *Service) update(ctx context.Context, tx repository.Store, req *Request, audit document.AuditContext) (*WriteResult, error) {
	ep := req.Endpoint
	updates := req.Documents[0]

	matches, err := s.findTargets(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(req, matches); err != nil {
		return nil, err
	}

	var affected int64
	touched := make([]int64, 0, len(matches))
	for _, match := range matches {
		merged := jsonx.Merge(match.Data, updates)
		if err := applySubEntityMerges(match.Data, updates, merged, ep.SubEntities); err != nil {
			return nil, err
		}
		if err := s.validateDocs(ep, []map[string]any{merged}); err != nil {
			return nil, err
		}

		// No-op detection: an update that changes nothing must not advance
		// the version or touch audit columns.
		if jsonx.Equal(merged, match.Data) {
			continue
		}

		n, err := tx.UpdateByID(ctx, ep.Collection, match.ID, match.Version, merged, audit)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperr.ConflictMsg("Document was modified concurrently")
		}
		affected += n
		touched = append(touched, match.ID)
	}

	updated, err := tx.FindByIDs(ctx, ep.Collection, touched)
	if err != nil {
		return nil, err
	}

	result := &WriteResult{
		Type:          OpUpdate.EnvelopeType(),
		Success:       true,
		AffectedCount: affected,
		Matched:       int64Ptr(int64(len(matches))),
		Modified:      int64Ptr(affected),
		Data:          s.renderDocuments(ep, updated, req),
	}
	if affected == 0 {
		// Matched rows that needed no change are still a success; the message
		// distinguishes this from "nothing matched" (which is a 404 above).
		result.Message = "No changes detected; matched documents were left untouched"
	}
	return result, nil
}

// # Upsert

func (s *Service) upsert(ctx context.Context, tx repository.Store, req *Request, audit document.AuditContext) (*WriteResult, error) {
	ep := req.Endpoint
	doc := req.Documents[0]

	// The plain case delegates to the repository's atomic read-then-write.
	if len(ep.SubEntities) == 0 && req.ExpectedVersion == NoExpectedVersion {
		if err := s.validateDocs(ep, req.Documents); err != nil {
			return nil, err
		}
		res, err := filter.Translate(req.Filter, filter.Options{}, s.d)
		if err != nil {
			return nil, err
		}
		outcome, err := tx.Upsert(ctx, ep.Collection, res.Where, res.Params, doc, audit)
		if err != nil {
			return nil, err
		}
		return s.upsertResult(ctx, tx, req, outcome)
	}

	// Sub-entities or an If-Match guard need the existing row first.
	res, err := filter.Translate(req.Filter, filter.Options{Limit: 2}, s.d)
	if err != nil {
		return nil, err
	}
	matches, err := tx.Find(ctx, ep.Collection, res)
	if err != nil {
		return nil, err
	}
	if len(matches) > 1 {
		return nil, apperr.ConflictMsg("Upsert predicate matched more than one document")
	}

	if len(matches) == 0 {
		if req.ExpectedVersion != NoExpectedVersion {
			return nil, apperr.ConflictMsg("If-Match given but no document matched")
		}
		if err := prepareSubEntitiesForCreate(doc, ep.SubEntities); err != nil {
			return nil, err
		}
		if err := s.validateDocs(ep, req.Documents); err != nil {
			return nil, err
		}
		id, err := tx.InsertOne(ctx, ep.Collection, doc, audit)
		if err != nil {
			return nil, err
		}
		return s.upsertResult(ctx, tx, req, &repository.UpsertOutcome{Inserted: true, ID: id})
	}

	match := matches[0]
	if err := checkExpectedVersion(req, matches); err != nil {
		return nil, err
	}

	// Upsert replaces the document, but configured sub-entity arrays still
	// merge element-wise against the stored state.
	merged := jsonx.Clone(doc)
	if err := applySubEntityMerges(match.Data, doc, merged, ep.SubEntities); err != nil {
		return nil, err
	}
	if err := s.validateDocs(ep, []map[string]any{merged}); err != nil {
		return nil, err
	}

	if jsonx.Equal(merged, match.Data) {
		return s.upsertResult(ctx, tx, req, &repository.UpsertOutcome{ID: match.ID, Matched: 1})
	}

	n, err := tx.UpdateByID(ctx, ep.Collection, match.ID, match.Version, merged, audit)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.ConflictMsg("Document was modified concurrently")
	}
	return s.upsertResult(ctx, tx, req, &repository.UpsertOutcome{ID: match.ID, Matched: 1, Modified: n})
}

func (s *Service) upsertResult(ctx context.Context, tx repository.Store, req *Request, outcome *repository.UpsertOutcome) (*WriteResult, error) {
	docs, err := tx.FindByIDs(ctx, req.Endpoint.Collection, []int64{outcome.ID})
	if err != nil {
		return nil, err
	}
	affected := outcome.Modified
	if outcome.Inserted {
		affected = 1
	}
	return &WriteResult{
		Type:          OpUpsert.EnvelopeType(),
		Success:       true,
		AffectedCount: affected,
		WasInserted:   boolPtr(outcome.Inserted),
		DocumentID:    int64Ptr(outcome.ID),
		Data:          s.renderDocuments(req.Endpoint, docs, req),
	}, nil
}

// # Delete

func (s *Service) remove(ctx context.Context, tx repository.Store, req *Request, audit document.AuditContext) (*WriteResult, error) {
	ep := req.Endpoint

	matches, err := s.findTargets(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(req, matches); err != nil {
		return nil, err
	}

	var affected int64
	ids := make([]int64, 0, len(matches))
	for _, match := range matches {
		n, err := tx.SoftDeleteByID(ctx, ep.Collection, match.ID, audit)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperr.ConflictMsg("Document was modified concurrently")
		}
		affected += n
		ids = append(ids, match.ID)
	}

	// The normal read path hides deleted rows; the delete response is the one
	// place the tombstoned state is returned.
	deleted, err := findRawByIDs(ctx, tx, ep.Collection, ids)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Type:          OpDelete.EnvelopeType(),
		Success:       true,
		AffectedCount: affected,
		DeletedCount:  int64Ptr(affected),
		Data:          s.renderDocuments(ep, deleted, req),
	}, nil
}

// # Shared Steps

// findTargets resolves the write predicate to its target rows: all matches for
// multi, the first match (by id order) otherwise.
func (s *Service) findTargets(ctx context.Context, tx repository.Store, req *Request) ([]*document.Document, error) {
	res, err := filter.Translate(req.Filter, filter.Options{}, s.d)
	if err != nil {
		return nil, err
	}
	matches, err := tx.Find(ctx, req.Endpoint.Collection, res)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apperr.NotFound("Document")
	}
	if !req.Multi && len(matches) > 1 {
		matches = matches[:1]
	}
	return matches, nil
}

// checkExpectedVersion enforces the If-Match guard against the single target.
func checkExpectedVersion(req *Request, matches []*document.Document) error {
	if req.ExpectedVersion == NoExpectedVersion || len(matches) == 0 {
		return nil
	}
	if current := matches[0].Version; current != req.ExpectedVersion {
		return apperr.Conflict(req.ExpectedVersion, current)
	}
	return nil
}

// validateDocs runs schema validation when the endpoint binds a schema. A
// required schema that is not registered fails the write; an optional one
// degrades to no validation.
func (s *Service) validateDocs(ep *endpoint.Endpoint, docs []map[string]any) error {
	if ep.SchemaName == "" {
		return nil
	}
	if !s.schemas.Has(ep.SchemaName) {
		if ep.SchemaRequired {
			return apperr.Internal(fmt.Errorf("gateway: required schema %q is not registered", ep.SchemaName))
		}
		return nil
	}
	if len(docs) == 1 {
		return s.schemas.Validate(ep.SchemaName, docs[0])
	}
	return s.schemas.ValidateBulk(ep.SchemaName, docs)
}

// findRawByIDs reads rows bypassing the soft-delete predicate.
func findRawByIDs(ctx context.Context, tx repository.Store, collection string, ids []int64) ([]*document.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	params := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		params[i] = id
	}
	where := fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", "))
	return tx.FindRaw(ctx, collection, where, params)
}

// stripSystemFields removes the reserved underscore fields from a payload.
func stripSystemFields(doc map[string]any) {
	for _, field := range systemFields {
		delete(doc, field)
	}
}
