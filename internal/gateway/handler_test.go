// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/sigma/internal/configstore"
	"github.com/taibuivan/sigma/internal/dialect"
	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/gateway"
	"github.com/taibuivan/sigma/internal/schema"
)

// newHandler materializes a registry from a config snapshot and serves it over
// the fake store.
func newHandler(t *testing.T) (http.HandlerFunc, *fakeStore) {
	t.Helper()

	snapshot := configstore.Snapshot{
		"/dev/sigma/apiPrefix": []byte("/api/v1"),
		"/dev/sigma/endpoints/products": []byte(`{
			"path": "/products",
			"httpMethod": "GET",
			"writeMethods": ["POST", "PATCH", "DELETE"],
			"databaseCollection": "products",
			"readFilter": {"name": ["$eq"], "price": ["$gte", "$lte"]}
		}`),

		// The orders endpoint uses the hierarchical layout: one child node per
		// definition property, comma-separated lists, and readFilter/{field}
		// operator strings.
		"/dev/sigma/endpoints/orders/path":               []byte("/orders"),
		"/dev/sigma/endpoints/orders/httpMethod":         []byte("GET"),
		"/dev/sigma/endpoints/orders/writeMethods":       []byte("POST,PUT,PATCH,DELETE"),
		"/dev/sigma/endpoints/orders/databaseCollection": []byte("orders"),
		"/dev/sigma/endpoints/orders/readFilter/sku":     []byte("$eq,$in"),

		// POST here means body-filter reads only: no write methods configured.
		"/dev/sigma/endpoints/reports": []byte(`{
			"path": "/reports",
			"httpMethod": "POST",
			"databaseCollection": "reports",
			"readFilter": {"name": ["$eq"]}
		}`),
	}

	registry := endpoint.NewRegistry(slog.Default())
	registry.Rebuild(snapshot, "/dev/sigma")

	d, err := dialect.New(dialect.SQLite)
	require.NoError(t, err)

	enums := schema.NewEnums(schema.EnumConfig{}, nil, slog.Default())
	schemas := schema.NewManager(enums, slog.Default())

	store := newFakeStore()
	service := gateway.NewService(registry, store, schemas, d, slog.Default())
	return service.Handler(), store
}

/*
TestHandler_CreateThenRead walks the primary round trip: POST persists the
document and GET returns it as a bare JSON array.
*/
func TestHandler_CreateThenRead(t *testing.T) {
	handler, _ := newHandler(t)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products",
		strings.NewReader(`{"name": "shirt", "price": 10}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var created gateway.WriteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "CREATE", created.Type)
	assert.True(t, created.Success)
	assert.Equal(t, int64(1), created.AffectedCount)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?name=shirt", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "shirt", docs[0]["name"])
	assert.Equal(t, float64(1), docs[0]["_id"])
}

/*
TestHandler_EmptyReadIsEmptyArray verifies the empty result renders as [],
never null.
*/
func TestHandler_EmptyReadIsEmptyArray(t *testing.T) {
	handler, _ := newHandler(t)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

/*
TestHandler_ErrorEnvelopes verifies the error envelope across the miss
variants: unknown path, wrong method, and a disallowed filter.
*/
func TestHandler_ErrorEnvelopes(t *testing.T) {
	handler, _ := newHandler(t)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var envelope struct {
		Error   string   `json:"error"`
		Code    string   `json:"code"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "NOT_FOUND", envelope.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPut, "/api/v1/products",
		strings.NewReader(`{"filter": {"name": "x"}, "name": "y"}`)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?secret=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Code)
	assert.Contains(t, envelope.Details, "Field 'secret' is not allowed for filtering")
}

/*
TestHandler_DeleteByFilter verifies the delete round trip over HTTP, including
the write-filter rejection when the predicate uses a non-allowlisted field.
*/
func TestHandler_DeleteByFilter(t *testing.T) {
	handler, store := newHandler(t)
	store.seed("products", map[string]any{"name": "shirt"})

	// No writeFilter is configured, so only _id predicates pass.
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/products?name=shirt", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/products?_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result gateway.WriteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "DELETE", result.Type)
	assert.Equal(t, int64(1), result.AffectedCount)
	require.Len(t, result.Data, 1)
	assert.Equal(t, true, result.Data[0]["_isDeleted"])
}

/*
TestHandler_UpsertStatusCodes verifies the upsert status split: the inserting
arm is a 201 like a create, the replacing arm a plain 200. The orders endpoint
comes from the hierarchical configuration layout, so the round trip also covers
per-property child nodes.
*/
func TestHandler_UpsertStatusCodes(t *testing.T) {
	handler, _ := newHandler(t)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPut, "/api/v1/orders?_id=1",
		strings.NewReader(`{"customer": "acme"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var result gateway.WriteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "UPSERT", result.Type)
	require.NotNil(t, result.WasInserted)
	assert.True(t, *result.WasInserted)
	require.NotNil(t, result.DocumentID)
	assert.Equal(t, int64(1), *result.DocumentID)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPut, "/api/v1/orders?_id=1",
		strings.NewReader(`{"customer": "acme", "priority": true}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.WasInserted)
	assert.False(t, *result.WasInserted)
}

/*
TestHandler_PostReadOnlyEndpoint verifies the write-method gate on a POST-primary
endpoint without write methods: body-filter queries pass, creates are 405.
*/
func TestHandler_PostReadOnlyEndpoint(t *testing.T) {
	handler, _ := newHandler(t)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reports",
		strings.NewReader(`{"filter": {"name": "monthly"}}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reports",
		strings.NewReader(`{"name": "monthly"}`)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
