// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway_test

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/sigma/internal/dialect"
	"github.com/taibuivan/sigma/internal/document"
	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/filter"
	"github.com/taibuivan/sigma/internal/gateway"
	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/ctxutil"
	"github.com/taibuivan/sigma/internal/repository"
	"github.com/taibuivan/sigma/internal/schema"
	"github.com/taibuivan/sigma/pkg/jsonx"
)

// fakeStore is an in-memory Store for orchestration tests. It ignores SQL
// predicates: Find returns every live document, so tests seed exactly the rows
// the predicate would match.
type fakeStore struct {
	nextID int64
	seq    int64
	docs   map[int64]*document.Document
	cps    map[string]*document.Checkpoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[int64]*document.Document{}, cps: map[string]*document.Checkpoint{}}
}

func (f *fakeStore) seed(collection string, data map[string]any) int64 {
	id, _ := f.InsertOne(context.Background(), collection, data, document.AuditContext{Now: time.Now()})
	return id
}

func (f *fakeStore) live(collection string) []*document.Document {
	var out []*document.Document
	for _, doc := range f.docs {
		if doc.TableName == collection && !doc.IsDeleted {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) FindAll(_ context.Context, collection string) ([]*document.Document, error) {
	return f.live(collection), nil
}

func (f *fakeStore) Find(_ context.Context, collection string, _ *filter.Result) ([]*document.Document, error) {
	return f.live(collection), nil
}

func (f *fakeStore) FindByIDs(_ context.Context, collection string, ids []int64) ([]*document.Document, error) {
	var out []*document.Document
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok && doc.TableName == collection && !doc.IsDeleted {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeStore) FindNested(_ context.Context, collection, fatherPath string, _ *filter.Result) ([]map[string]any, error) {
	var out []map[string]any
	for _, doc := range f.live(collection) {
		if raw, ok := jsonx.GetPath(doc.Data, fatherPath); ok {
			if list, ok := raw.([]any); ok {
				for _, item := range list {
					if element, ok := item.(map[string]any); ok {
						out = append(out, element)
					}
				}
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FindRaw(_ context.Context, collection, _ string, params []any) ([]*document.Document, error) {
	var out []*document.Document
	for _, p := range params {
		if id, ok := p.(int64); ok {
			if doc, ok := f.docs[id]; ok && doc.TableName == collection {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) InsertOne(_ context.Context, collection string, data map[string]any, audit document.AuditContext) (int64, error) {
	f.nextID++
	f.seq++
	f.docs[f.nextID] = &document.Document{
		ID:             f.nextID,
		TableName:      collection,
		Data:           jsonx.Clone(data),
		CreatedAt:      audit.Now,
		LastModifiedAt: audit.Now,
		SequenceNumber: f.seq,
	}
	return f.nextID, nil
}

func (f *fakeStore) InsertMany(ctx context.Context, collection string, docs []map[string]any, audit document.AuditContext) ([]int64, error) {
	ids := make([]int64, 0, len(docs))
	for _, data := range docs {
		id, err := f.InsertOne(ctx, collection, data, audit)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) UpdateByID(_ context.Context, collection string, id, expectedVersion int64, data map[string]any, audit document.AuditContext) (int64, error) {
	doc, ok := f.docs[id]
	if !ok || doc.TableName != collection || doc.IsDeleted || doc.Version != expectedVersion {
		return 0, nil
	}
	f.seq++
	doc.Data = jsonx.Clone(data)
	doc.Version++
	doc.LastModifiedAt = audit.Now
	doc.SequenceNumber = f.seq
	return 1, nil
}

func (f *fakeStore) Upsert(ctx context.Context, collection, _ string, _ []any, data map[string]any, audit document.AuditContext) (*repository.UpsertOutcome, error) {
	matches := f.live(collection)
	switch len(matches) {
	case 0:
		id, err := f.InsertOne(ctx, collection, data, audit)
		if err != nil {
			return nil, err
		}
		return &repository.UpsertOutcome{Inserted: true, ID: id}, nil
	case 1:
		match := matches[0]
		if jsonx.Equal(match.Data, data) {
			return &repository.UpsertOutcome{ID: match.ID, Matched: 1}, nil
		}
		n, err := f.UpdateByID(ctx, collection, match.ID, match.Version, data, audit)
		if err != nil {
			return nil, err
		}
		return &repository.UpsertOutcome{ID: match.ID, Matched: 1, Modified: n}, nil
	default:
		return nil, apperr.ConflictMsg("Upsert predicate matched more than one document")
	}
}

func (f *fakeStore) SoftDeleteByID(_ context.Context, collection string, id int64, audit document.AuditContext) (int64, error) {
	doc, ok := f.docs[id]
	if !ok || doc.TableName != collection || doc.IsDeleted {
		return 0, nil
	}
	f.seq++
	doc.IsDeleted = true
	doc.Version++
	doc.LastModifiedAt = audit.Now
	doc.SequenceNumber = f.seq
	return 1, nil
}

func (f *fakeStore) NextPageBySequence(_ context.Context, collection string, startSequence int64, batchSize int) ([]document.ChangeEvent, int64, bool, error) {
	var page []*document.Document
	for _, doc := range f.docs {
		if doc.TableName == collection && doc.SequenceNumber > startSequence {
			page = append(page, doc)
		}
	}
	sort.Slice(page, func(i, j int) bool { return page[i].SequenceNumber < page[j].SequenceNumber })

	hasMore := len(page) > batchSize
	if hasMore {
		page = page[:batchSize]
	}

	events := make([]document.ChangeEvent, 0, len(page))
	next := startSequence
	for _, doc := range page {
		op := document.OpUpdate
		switch {
		case doc.IsDeleted:
			op = document.OpDelete
		case doc.Version == 0:
			op = document.OpCreate
		}
		events = append(events, document.ChangeEvent{Op: op, Key: doc.ID, Doc: doc.Render(), Sequence: doc.SequenceNumber})
		next = doc.SequenceNumber
	}
	return events, next, hasMore, nil
}

func (f *fakeStore) LoadCheckpoint(_ context.Context, collection string) (*document.Checkpoint, error) {
	return f.cps[collection], nil
}

func (f *fakeStore) SaveCheckpoint(_ context.Context, collection string, sequence int64, resumeToken string) error {
	f.cps[collection] = &document.Checkpoint{Collection: collection, Sequence: sequence}
	return nil
}

func (f *fakeStore) WithTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(f)
}

// # Harness

type harness struct {
	store   *fakeStore
	service *gateway.Service
	schemas *schema.Manager
}

func newHarness(t *testing.T, sources map[string][]byte) *harness {
	t.Helper()

	d, err := dialect.New(dialect.SQLite)
	require.NoError(t, err)

	enums := schema.NewEnums(schema.EnumConfig{}, nil, slog.Default())
	schemas := schema.NewManager(enums, slog.Default())
	if sources != nil {
		schemas.SetSources(sources)
	}

	store := newFakeStore()
	service := gateway.NewService(endpoint.NewRegistry(slog.Default()), store, schemas, d, slog.Default())
	return &harness{store: store, service: service, schemas: schemas}
}

func testCtx() context.Context {
	return ctxutil.WithAudit(context.Background(), document.AuditContext{
		Auditor:   "tester",
		RequestID: "req-1",
		Now:       time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	})
}

func mustEndpoint(t *testing.T, def string) *endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Materialize("test", []byte(def), "")
	require.NoError(t, err)
	return ep
}

const plainEndpoint = `{
	"path": "/products",
	"httpMethod": "GET",
	"writeMethods": ["POST", "PUT", "PATCH", "DELETE"],
	"databaseCollection": "products"
}`

const subEntityEndpoint = `{
	"path": "/orders",
	"httpMethod": "GET",
	"writeMethods": ["POST", "PUT", "PATCH", "DELETE"],
	"databaseCollection": "orders",
	"subEntities": ["items"]
}`

func idFilter(t *testing.T, id int64) filter.Node {
	t.Helper()
	node, err := filter.Parse(map[string]any{"_id": float64(id)})
	require.NoError(t, err)
	return node
}

/*
TestWrite_Create verifies single create: system fields are stripped from the
payload and the response carries the persisted document.
*/
func TestWrite_Create(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)

	result, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpCreate,
		Documents:       []map[string]any{{"name": "shirt", "_version": float64(99), "_id": float64(5)}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)

	assert.Equal(t, "CREATE", result.Type)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), result.AffectedCount)
	assert.Equal(t, []int64{1}, result.InsertedIDs)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "shirt", result.Data[0]["name"])
	assert.Equal(t, int64(1), result.Data[0]["_id"])
	assert.Equal(t, int64(0), result.Data[0]["_version"], "client-supplied system fields are stripped")
}

/*
TestWrite_UpdateMergesAndBumpsVersion verifies the field merge and the version
increment on an effective update.
*/
func TestWrite_UpdateMergesAndBumpsVersion(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)
	id := h.store.seed("products", map[string]any{"name": "shirt", "price": float64(10)})

	result, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpdate,
		Filter:          idFilter(t, id),
		Documents:       []map[string]any{{"price": float64(25)}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.AffectedCount)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "shirt", result.Data[0]["name"], "unmentioned fields survive the merge")
	assert.Equal(t, float64(25), result.Data[0]["price"])
	assert.Equal(t, int64(1), result.Data[0]["_version"])
}

/*
TestWrite_UpdateNoOp verifies that an update changing nothing affects zero
documents and leaves the version alone.
*/
func TestWrite_UpdateNoOp(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)
	id := h.store.seed("products", map[string]any{"name": "shirt"})

	result, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpdate,
		Filter:          idFilter(t, id),
		Documents:       []map[string]any{{"name": "shirt"}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)

	assert.Zero(t, result.AffectedCount)
	assert.Zero(t, h.store.docs[id].Version)

	// The envelope still reports the match so the caller can tell "nothing
	// matched" from "matched but unchanged".
	assert.Equal(t, "UPDATE", result.Type)
	require.NotNil(t, result.Matched)
	assert.Equal(t, int64(1), *result.Matched)
	require.NotNil(t, result.Modified)
	assert.Zero(t, *result.Modified)
	assert.Equal(t, "No changes detected; matched documents were left untouched", result.Message)
}

/*
TestWrite_UpdateMissing verifies a predicate matching nothing is a 404.
*/
func TestWrite_UpdateMissing(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)

	_, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpdate,
		Filter:          idFilter(t, 99),
		Documents:       []map[string]any{{"name": "x"}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperr.As(err).HTTPStatus)
}

/*
TestWrite_IfMatchConflict verifies the optimistic guard surfaces both versions.
*/
func TestWrite_IfMatchConflict(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)
	id := h.store.seed("products", map[string]any{"name": "shirt"})

	_, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpdate,
		Filter:          idFilter(t, id),
		Documents:       []map[string]any{{"name": "hat"}},
		ExpectedVersion: 3,
	})
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, http.StatusConflict, ae.HTTPStatus)
	assert.Equal(t, "Version conflict: expected 3, current 0", ae.Message)
}

/*
TestWrite_MultiGuards verifies the structural rejections of multi-document
writes.
*/
func TestWrite_MultiGuards(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        mustEndpoint(t, subEntityEndpoint),
		Operation:       gateway.OpUpdate,
		Multi:           true,
		Documents:       []map[string]any{{"x": float64(1)}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

	_, err = h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        mustEndpoint(t, plainEndpoint),
		Operation:       gateway.OpUpdate,
		Multi:           true,
		Documents:       []map[string]any{{"x": float64(1)}},
		ExpectedVersion: 2,
	})
	require.Error(t, err)
	assert.Equal(t, "BAD_REQUEST", apperr.As(err).Code)
}

/*
TestWrite_SubEntityUpdate verifies the element-wise merge path through a full
update: merge, append, and strict deletion.
*/
func TestWrite_SubEntityUpdate(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, subEntityEndpoint)
	id := h.store.seed("orders", map[string]any{
		"customer": "acme",
		"items": []any{
			map[string]any{"myId": "a", "sku": "A", "qty": float64(1)},
			map[string]any{"myId": "b", "sku": "B", "qty": float64(2)},
		},
	})

	result, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:  ep,
		Operation: gateway.OpUpdate,
		Filter:    idFilter(t, id),
		Documents: []map[string]any{{
			"items": []any{
				map[string]any{"myId": "a", "qty": float64(7)},
				map[string]any{"myId": "b", "isDelete": true},
				map[string]any{"sku": "C"},
			},
		}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)

	require.Len(t, result.Data, 1)
	items := result.Data[0]["items"].([]any)
	require.Len(t, items, 3)

	merged := items[0].(map[string]any)
	assert.Equal(t, "A", merged["sku"])
	assert.Equal(t, float64(7), merged["qty"])

	deleted := items[1].(map[string]any)
	assert.Equal(t, true, deleted["isDeleted"])

	appended := items[2].(map[string]any)
	assert.Equal(t, "C", appended["sku"])
	assert.NotEmpty(t, appended["myId"])

	// Deleting a ghost element fails the whole write.
	_, err = h.service.Write(testCtx(), &gateway.Request{
		Endpoint:  ep,
		Operation: gateway.OpUpdate,
		Filter:    idFilter(t, id),
		Documents: []map[string]any{{
			"items": []any{map[string]any{"myId": "ghost", "isDelete": true}},
		}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

/*
TestWrite_Upsert verifies both arms of the plain upsert and the no-op replace.
*/
func TestWrite_Upsert(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)

	// No match: insert.
	result, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpsert,
		Filter:          idFilter(t, 1),
		Documents:       []map[string]any{{"sku": "X1", "name": "new"}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, "UPSERT", result.Type)
	assert.Equal(t, int64(1), result.AffectedCount)
	require.NotNil(t, result.WasInserted)
	assert.True(t, *result.WasInserted)
	require.NotNil(t, result.DocumentID)
	assert.Equal(t, int64(1), *result.DocumentID)

	// Match with different content: replace.
	result, err = h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpsert,
		Filter:          idFilter(t, 1),
		Documents:       []map[string]any{{"sku": "X1", "name": "renamed"}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AffectedCount)
	require.NotNil(t, result.WasInserted)
	assert.False(t, *result.WasInserted)
	assert.Equal(t, "renamed", result.Data[0]["name"])

	// Match with identical content: no-op, version untouched.
	result, err = h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpUpsert,
		Filter:          idFilter(t, 1),
		Documents:       []map[string]any{{"sku": "X1", "name": "renamed"}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)
	assert.Zero(t, result.AffectedCount)
	assert.Equal(t, int64(1), h.store.docs[1].Version)
}

/*
TestWrite_DeleteReturnsTombstone verifies the soft delete and the tombstoned
response document.
*/
func TestWrite_DeleteReturnsTombstone(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)
	id := h.store.seed("products", map[string]any{"name": "shirt"})

	result, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpDelete,
		Filter:          idFilter(t, id),
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)

	assert.Equal(t, "DELETE", result.Type)
	assert.Equal(t, int64(1), result.AffectedCount)
	require.NotNil(t, result.DeletedCount)
	assert.Equal(t, int64(1), *result.DeletedCount)
	require.Len(t, result.Data, 1)
	assert.Equal(t, true, result.Data[0]["_isDeleted"])
	assert.True(t, h.store.docs[id].IsDeleted)

	// The normal read path no longer sees the row.
	docs, err := h.service.Read(testCtx(), &gateway.Request{
		Endpoint: ep, Operation: gateway.OpRead, ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

/*
TestWrite_RequiredSchema verifies schema enforcement: a registered schema
rejects invalid documents, and a required-but-missing schema fails the write.
*/
func TestWrite_RequiredSchema(t *testing.T) {
	sources := map[string][]byte{"product": []byte(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)}
	h := newHarness(t, sources)

	ep := mustEndpoint(t, `{
		"path": "/products", "httpMethod": "POST",
		"databaseCollection": "products", "schema": "product:required"
	}`)

	_, err := h.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpCreate,
		Documents:       []map[string]any{{"price": float64(1)}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

	missing := newHarness(t, nil)
	_, err = missing.service.Write(testCtx(), &gateway.Request{
		Endpoint:        ep,
		Operation:       gateway.OpCreate,
		Documents:       []map[string]any{{"name": "ok"}},
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperr.As(err).HTTPStatus)
}

/*
TestRead_FilterAllowlist verifies that reads enforce the endpoint's read
allowlist before touching the store.
*/
func TestRead_FilterAllowlist(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, plainEndpoint)

	node, err := filter.Parse(map[string]any{"secret": "x"})
	require.NoError(t, err)

	_, err = h.service.Read(testCtx(), &gateway.Request{
		Endpoint: ep, Operation: gateway.OpRead, Filter: node,
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.Error(t, err)
	assert.Contains(t, apperr.As(err).Details, "Filtering is not enabled for this endpoint")
}

/*
TestReadSequence verifies cursor paging, has-more, and checkpoint resume.
*/
func TestReadSequence(t *testing.T) {
	h := newHarness(t, nil)
	ep := mustEndpoint(t, `{
		"path": "/products", "httpMethod": "GET",
		"databaseCollection": "products",
		"sequenceEnabled": true, "defaultBulkSize": 2
	}`)

	h.store.seed("products", map[string]any{"n": float64(1)})
	h.store.seed("products", map[string]any{"n": float64(2)})
	h.store.seed("products", map[string]any{"n": float64(3)})

	page, err := h.service.ReadSequence(testCtx(), &gateway.Request{
		Endpoint: ep, Operation: gateway.OpSequence,
		StartSequence: 0, BulkSize: 2,
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)

	require.Len(t, page.Data, 2)
	assert.Equal(t, document.OpCreate, page.Data[0].Op)
	assert.Equal(t, int64(2), page.NextSequence)
	assert.True(t, page.HasMore)

	// The served page advanced the checkpoint; a cursor-less request resumes.
	require.NotNil(t, h.store.cps["products"])
	assert.Equal(t, int64(2), h.store.cps["products"].Sequence)

	page, err = h.service.ReadSequence(testCtx(), &gateway.Request{
		Endpoint: ep, Operation: gateway.OpSequence,
		StartSequence: -1, BulkSize: 2,
		ExpectedVersion: gateway.NoExpectedVersion,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(3), page.NextSequence)
	assert.False(t, page.HasMore)
}
