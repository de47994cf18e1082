// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package repository implements persistence for the dynamic_documents table.

It executes parameterized SQL assembled from dialect fragments and filter
translation results. The repository owns no in-memory document state; all
caching and snapshotting lives in the registry and schema layers.

Architecture:

  - Store: the persistence contract consumed by the query executor and the
    write orchestrator.
  - SQLStore: the sqlx-backed implementation, usable either on the shared pool
    or bound to a transaction via WithTx.
  - Soft delete: every read predicate excludes deleted rows except FindRaw,
    which exists solely for post-delete response enrichment.
*/
package repository

import (
	"context"

	"github.com/taibuivan/sigma/internal/document"
	"github.com/taibuivan/sigma/internal/filter"
)

// UpsertOutcome reports what an upsert did.
type UpsertOutcome struct {
	Inserted bool
	ID       int64
	Matched  int64
	Modified int64
}

// Store is the persistence contract over dynamic_documents and
// sequence_checkpoints.
//
// All write methods must be called on a transaction-bound store obtained from
// [Store.WithTx]; the write orchestrator opens exactly one transaction per
// request.
type Store interface {
	// # Reads (soft-delete filtered)

	// FindAll returns every live document of a collection.
	FindAll(ctx context.Context, collection string) ([]*document.Document, error)

	// Find returns the live documents matching a translated filter.
	Find(ctx context.Context, collection string, res *filter.Result) ([]*document.Document, error)

	// FindByIDs returns the live documents with the given row keys.
	FindByIDs(ctx context.Context, collection string, ids []int64) ([]*document.Document, error)

	// FindNested expands the father-document array and returns matching
	// elements. The soft-delete predicate applies to the parent row.
	FindNested(ctx context.Context, collection, fatherPath string, res *filter.Result) ([]map[string]any, error)

	// FindRaw bypasses the soft-delete predicate. Its only sanctioned caller
	// is delete-response enrichment.
	FindRaw(ctx context.Context, collection, where string, params []any) ([]*document.Document, error)

	// # Writes

	// InsertOne persists a new document and returns its assigned id.
	InsertOne(ctx context.Context, collection string, data map[string]any, audit document.AuditContext) (int64, error)

	// InsertMany persists a batch atomically within the ambient transaction.
	InsertMany(ctx context.Context, collection string, docs []map[string]any, audit document.AuditContext) ([]int64, error)

	// UpdateByID replaces a row's data under the optimistic version guard.
	// It returns the number of affected rows: zero means the version moved.
	UpdateByID(ctx context.Context, collection string, id, expectedVersion int64, data map[string]any, audit document.AuditContext) (int64, error)

	// Upsert inserts the document when the predicate matches nothing, updates
	// the single match otherwise. More than one match is a conflict.
	Upsert(ctx context.Context, collection, where string, params []any, data map[string]any, audit document.AuditContext) (*UpsertOutcome, error)

	// SoftDeleteByID marks a row deleted, bumping version and audit columns.
	SoftDeleteByID(ctx context.Context, collection string, id int64, audit document.AuditContext) (int64, error)

	// # Change Feed

	// NextPageBySequence returns events with sequence_number > startSequence
	// in commit order, at most batchSize of them, plus the next cursor and a
	// has-more flag.
	NextPageBySequence(ctx context.Context, collection string, startSequence int64, batchSize int) ([]document.ChangeEvent, int64, bool, error)

	// LoadCheckpoint returns the stored feed position, or nil when absent.
	LoadCheckpoint(ctx context.Context, collection string) (*document.Checkpoint, error)

	// SaveCheckpoint persists the feed position for a collection.
	SaveCheckpoint(ctx context.Context, collection string, sequence int64, resumeToken string) error

	// # Transactions

	// WithTx runs fn against a transaction-bound store. The transaction is
	// committed when fn returns nil and rolled back otherwise. Calls on an
	// already transaction-bound store reuse the open transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
