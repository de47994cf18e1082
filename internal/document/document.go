// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package document defines the persistent data model of the gateway.

All user data lives in a single logical table, dynamic_documents. A row pairs a
schemaless JSON payload with system-managed audit and versioning columns. The
package also defines the audit context computed per request and the change feed
event emitted by the sequence-based feed.
*/
package document

import "time"

// # System Columns

// System-managed field names inside a rendered document. Clients may never set
// these directly; the write orchestrator strips them from incoming payloads.
const (
	FieldID             = "_id"
	FieldVersion        = "_version"
	FieldIsDeleted      = "_isDeleted"
	FieldCreatedAt      = "_createdAt"
	FieldCreatedBy      = "_createdBy"
	FieldLastModifiedAt = "_lastModifiedAt"
	FieldLastModifiedBy = "_lastModifiedBy"
	FieldRequestID      = "_latestRequestId"
)

// Document is one row of dynamic_documents.
//
// # Invariants
//
//   - Data is never nil; its root is always a JSON object.
//   - Version starts at 0 and increases by exactly 1 on each effective mutation.
//   - CreatedAt is immutable after the first write.
//   - SequenceNumber is assigned by the database on every persisted mutation.
type Document struct {
	ID              int64          `db:"id"`
	TableName       string         `db:"table_name"`
	Data            map[string]any `db:"-"`
	Version         int64          `db:"version"`
	IsDeleted       bool           `db:"is_deleted"`
	LatestRequestID *string        `db:"latest_request_id"`
	CreatedBy       *string        `db:"created_by"`
	LastModifiedBy  *string        `db:"last_modified_by"`
	CreatedAt       time.Time      `db:"created_at"`
	LastModifiedAt  time.Time      `db:"last_modified_at"`
	SequenceNumber  int64          `db:"sequence_number"`
}

// Render flattens the row into the wire representation: the user payload plus
// the system columns under reserved underscore-prefixed keys.
func (d *Document) Render() map[string]any {
	out := make(map[string]any, len(d.Data)+8)
	for k, v := range d.Data {
		out[k] = v
	}
	out[FieldID] = d.ID
	out[FieldVersion] = d.Version
	out[FieldCreatedAt] = d.CreatedAt
	out[FieldLastModifiedAt] = d.LastModifiedAt
	if d.IsDeleted {
		out[FieldIsDeleted] = true
	}
	if d.CreatedBy != nil {
		out[FieldCreatedBy] = *d.CreatedBy
	}
	if d.LastModifiedBy != nil {
		out[FieldLastModifiedBy] = *d.LastModifiedBy
	}
	if d.LatestRequestID != nil {
		out[FieldRequestID] = *d.LatestRequestID
	}
	return out
}

// # Audit

// AuditContext carries the identity and trace information applied to every
// mutation. It is computed once per request by the HTTP layer and applied at
// the repository layer, never by callers.
type AuditContext struct {
	// Auditor is the opaque identity recorded as created_by/last_modified_by.
	Auditor string
	// RequestID is the X-Request-ID header (or a generated UUID).
	RequestID string
	// Now is the single timestamp used for every column touched by the request.
	Now time.Time
}

// # Change Feed

// ChangeOp classifies a change feed event.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is one entry of the sequence-based change feed.
type ChangeEvent struct {
	Op       ChangeOp       `json:"op"`
	Key      int64          `json:"key"`
	Doc      map[string]any `json:"doc"`
	Sequence int64          `json:"sequence"`
}

// Checkpoint records a consumer's position in a collection's change feed.
// ResumeToken is retained for compatibility with CDC-style feeds but carries
// no meaning for trigger-based sequencing.
type Checkpoint struct {
	Collection  string    `db:"collection"`
	Sequence    int64     `db:"sequence"`
	ResumeToken *string   `db:"resume_token"`
	UpdatedAt   time.Time `db:"last_updated"`
}
