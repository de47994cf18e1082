// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taibuivan/sigma/internal/dialect"
	"github.com/taibuivan/sigma/internal/document"
	"github.com/taibuivan/sigma/internal/filter"
	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/constants"
	"github.com/taibuivan/sigma/internal/platform/dberr"
	"github.com/taibuivan/sigma/pkg/jsonx"
)

const documentColumns = "id, table_name, data, version, is_deleted, latest_request_id, " +
	"created_by, last_modified_by, created_at, last_modified_at, sequence_number"

// SQLStore implements Store over a sqlx pool or transaction.
type SQLStore struct {
	q   sqlx.ExtContext
	d   dialect.Dialect
	log *slog.Logger

	// db is set only on the pool-bound store; transaction-bound copies carry
	// the open transaction in q instead.
	db *sqlx.DB
}

// NewSQLStore returns a pool-bound store.
func NewSQLStore(db *sqlx.DB, d dialect.Dialect, log *slog.Logger) *SQLStore {
	return &SQLStore{q: db, d: d, db: db, log: log}
}

// rebind converts '?' placeholders to the dialect's native style.
func (s *SQLStore) rebind(query string) string {
	return sqlx.Rebind(s.d.BindType(), query)
}

// # Reads

func (s *SQLStore) FindAll(ctx context.Context, collection string) ([]*document.Document, error) {
	query := fmt.Sprintf("SELECT %s FROM dynamic_documents WHERE table_name = ? AND %s ORDER BY id ASC",
		documentColumns, s.d.BoolColumnEq("is_deleted", false))
	return s.queryDocuments(ctx, query, collection)
}

func (s *SQLStore) Find(ctx context.Context, collection string, res *filter.Result) ([]*document.Document, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM dynamic_documents WHERE table_name = ? AND %s",
		documentColumns, s.d.BoolColumnEq("is_deleted", false))

	params := []any{collection}
	if res != nil && res.Where != "" {
		b.WriteString(" AND (")
		b.WriteString(res.Where)
		b.WriteString(")")
		params = append(params, res.Params...)
	}
	if res != nil && res.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(res.OrderBy)
	} else {
		b.WriteString(" ORDER BY id ASC")
	}
	if res != nil {
		b.WriteString(s.d.PaginationClause(res.Limit, res.Skip))
	}

	return s.queryDocuments(ctx, b.String(), params...)
}

func (s *SQLStore) FindByIDs(ctx context.Context, collection string, ids []int64) ([]*document.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	params := make([]any, 0, len(ids)+1)
	params = append(params, collection)
	for i, id := range ids {
		placeholders[i] = "?"
		params = append(params, id)
	}
	query := fmt.Sprintf("SELECT %s FROM dynamic_documents WHERE table_name = ? AND %s AND id IN (%s) ORDER BY id ASC",
		documentColumns, s.d.BoolColumnEq("is_deleted", false), strings.Join(placeholders, ", "))
	return s.queryDocuments(ctx, query, params...)
}

func (s *SQLStore) FindNested(ctx context.Context, collection, fatherPath string, res *filter.Result) ([]map[string]any, error) {
	element := s.d.ArrayElement("item")

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM dynamic_documents d%s WHERE d.table_name = ? AND %s",
		element, s.d.JSONArrayExpand("d.data", fatherPath, "item"), s.d.BoolColumnEq("d.is_deleted", false))

	params := []any{collection}
	if res != nil && res.Where != "" {
		b.WriteString(" AND (")
		b.WriteString(res.Where)
		b.WriteString(")")
		params = append(params, res.Params...)
	}
	if res != nil && res.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(res.OrderBy)
	}
	if res != nil {
		b.WriteString(s.d.PaginationClause(res.Limit, res.Skip))
	}

	rows, err := s.q.QueryxContext(ctx, s.rebind(b.String()), params...)
	if err != nil {
		return nil, dberr.Wrap(err, "finding nested elements")
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dberr.Wrap(err, "scanning nested element")
		}
		var elem map[string]any
		if err := json.Unmarshal(raw, &elem); err != nil {
			return nil, apperr.Internal(fmt.Errorf("repository: decoding nested element: %w", err))
		}
		out = append(out, elem)
	}
	return out, rows.Err()
}

func (s *SQLStore) FindRaw(ctx context.Context, collection, where string, params []any) ([]*document.Document, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM dynamic_documents WHERE table_name = ?", documentColumns)
	all := []any{collection}
	if where != "" {
		b.WriteString(" AND (")
		b.WriteString(where)
		b.WriteString(")")
		all = append(all, params...)
	}
	b.WriteString(" ORDER BY id ASC")
	return s.queryDocuments(ctx, b.String(), all...)
}

// # Writes

func (s *SQLStore) InsertOne(ctx context.Context, collection string, data map[string]any, audit document.AuditContext) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("repository: encoding document: %w", err))
	}

	insert := fmt.Sprintf(
		"INSERT INTO dynamic_documents (table_name, data, version, is_deleted, latest_request_id, created_by, last_modified_by, created_at, last_modified_at) "+
			"VALUES (?, %s, 0, %s, ?, ?, ?, ?, ?)",
		s.d.JSONBind("?"), s.d.BoolLiteral(false))
	params := []any{collection, string(payload), audit.RequestID, audit.Auditor, audit.Auditor, audit.Now, audit.Now}

	if s.d.InsertReturningID() {
		var id int64
		row := s.q.QueryRowxContext(ctx, s.rebind(insert+" RETURNING id"), params...)
		if err := row.Scan(&id); err != nil {
			return 0, dberr.Wrap(err, "inserting document")
		}
		return id, nil
	}

	if _, err := s.q.ExecContext(ctx, s.rebind(insert), params...); err != nil {
		return 0, dberr.Wrap(err, "inserting document")
	}
	var id int64
	if err := s.q.QueryRowxContext(ctx, s.d.LastInsertIDSQL()).Scan(&id); err != nil {
		return 0, dberr.Wrap(err, "reading inserted id")
	}
	return id, nil
}

func (s *SQLStore) InsertMany(ctx context.Context, collection string, docs []map[string]any, audit document.AuditContext) ([]int64, error) {
	ids := make([]int64, 0, len(docs))
	for _, data := range docs {
		id, err := s.InsertOne(ctx, collection, data, audit)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SQLStore) UpdateByID(ctx context.Context, collection string, id, expectedVersion int64, data map[string]any, audit document.AuditContext) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("repository: encoding document: %w", err))
	}

	// The version predicate is the optimistic guard: zero affected rows means
	// a concurrent writer advanced the row first.
	query := fmt.Sprintf(
		"UPDATE dynamic_documents SET data = %s, version = version + 1, latest_request_id = ?, last_modified_by = ?, last_modified_at = ? "+
			"WHERE id = ? AND table_name = ? AND version = ? AND %s",
		s.d.JSONBind("?"), s.d.BoolColumnEq("is_deleted", false))

	result, err := s.q.ExecContext(ctx, s.rebind(query),
		string(payload), audit.RequestID, audit.Auditor, audit.Now, id, collection, expectedVersion)
	if err != nil {
		return 0, dberr.Wrap(err, "updating document")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, dberr.Wrap(err, "updating document")
	}
	return affected, nil
}

func (s *SQLStore) Upsert(ctx context.Context, collection, where string, params []any, data map[string]any, audit document.AuditContext) (*UpsertOutcome, error) {
	matches, err := s.Find(ctx, collection, &filter.Result{Where: where, Params: params, Limit: 2})
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		id, err := s.InsertOne(ctx, collection, data, audit)
		if err != nil {
			return nil, err
		}
		return &UpsertOutcome{Inserted: true, ID: id}, nil
	case 1:
		match := matches[0]
		if jsonx.Equal(match.Data, data) {
			// Replacing a document with itself is a no-op; the version must
			// not advance.
			return &UpsertOutcome{ID: match.ID, Matched: 1}, nil
		}
		affected, err := s.UpdateByID(ctx, collection, match.ID, match.Version, data, audit)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, apperr.ConflictMsg("Document was modified concurrently")
		}
		return &UpsertOutcome{ID: match.ID, Matched: 1, Modified: affected}, nil
	default:
		return nil, apperr.ConflictMsg("Upsert predicate matched more than one document")
	}
}

func (s *SQLStore) SoftDeleteByID(ctx context.Context, collection string, id int64, audit document.AuditContext) (int64, error) {
	query := fmt.Sprintf(
		"UPDATE dynamic_documents SET is_deleted = %s, version = version + 1, latest_request_id = ?, last_modified_by = ?, last_modified_at = ? "+
			"WHERE id = ? AND table_name = ? AND %s",
		s.d.BoolLiteral(true), s.d.BoolColumnEq("is_deleted", false))

	result, err := s.q.ExecContext(ctx, s.rebind(query),
		audit.RequestID, audit.Auditor, audit.Now, id, collection)
	if err != nil {
		return 0, dberr.Wrap(err, "deleting document")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, dberr.Wrap(err, "deleting document")
	}
	return affected, nil
}

// # Change Feed

func (s *SQLStore) NextPageBySequence(ctx context.Context, collection string, startSequence int64, batchSize int) ([]document.ChangeEvent, int64, bool, error) {
	if batchSize <= 0 {
		batchSize = constants.DefaultBulkSize
	}

	// Fetch one extra row to detect a further page without a second query.
	query := fmt.Sprintf("SELECT %s FROM dynamic_documents WHERE table_name = ? AND sequence_number > ? ORDER BY sequence_number ASC%s",
		documentColumns, s.d.LimitClause(batchSize+1))

	docs, err := s.queryDocuments(ctx, query, collection, startSequence)
	if err != nil {
		return nil, startSequence, false, err
	}

	hasMore := len(docs) > batchSize
	if hasMore {
		docs = docs[:batchSize]
	}

	events := make([]document.ChangeEvent, 0, len(docs))
	next := startSequence
	for _, doc := range docs {
		events = append(events, document.ChangeEvent{
			Op:       classifyChange(doc),
			Key:      doc.ID,
			Doc:      doc.Render(),
			Sequence: doc.SequenceNumber,
		})
		next = doc.SequenceNumber
	}
	return events, next, hasMore, nil
}

// classifyChange derives the feed operation from row state: deleted rows are
// deletes, never-mutated rows are creates, everything else is an update.
func classifyChange(doc *document.Document) document.ChangeOp {
	switch {
	case doc.IsDeleted:
		return document.OpDelete
	case doc.Version == 0:
		return document.OpCreate
	default:
		return document.OpUpdate
	}
}

func (s *SQLStore) LoadCheckpoint(ctx context.Context, collection string) (*document.Checkpoint, error) {
	query := "SELECT collection, sequence, resume_token, last_updated FROM sequence_checkpoints WHERE collection = ?"
	row := s.q.QueryRowxContext(ctx, s.rebind(query), collection)

	var cp document.Checkpoint
	var updated timeValue
	err := row.Scan(&cp.Collection, &cp.Sequence, &cp.ResumeToken, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err, "loading checkpoint")
	}
	cp.UpdatedAt = time.Time(updated)
	return &cp, nil
}

func (s *SQLStore) SaveCheckpoint(ctx context.Context, collection string, sequence int64, resumeToken string) error {
	update := "UPDATE sequence_checkpoints SET sequence = ?, resume_token = ?, last_updated = ? WHERE collection = ?"
	now := time.Now().UTC()

	result, err := s.q.ExecContext(ctx, s.rebind(update), sequence, resumeToken, now, collection)
	if err != nil {
		return dberr.Wrap(err, "saving checkpoint")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dberr.Wrap(err, "saving checkpoint")
	}
	if affected > 0 {
		return nil
	}

	insert := "INSERT INTO sequence_checkpoints (collection, sequence, resume_token, last_updated) VALUES (?, ?, ?, ?)"
	if _, err := s.q.ExecContext(ctx, s.rebind(insert), collection, sequence, resumeToken, now); err != nil {
		return dberr.Wrap(err, "saving checkpoint")
	}
	return nil
}

// # Transactions

func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already transaction-bound; join the open transaction.
		return fn(s)
	}

	txCtx, cancel := context.WithTimeout(ctx, constants.TransactionTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return dberr.Wrap(err, "beginning transaction")
	}

	txStore := &SQLStore{q: tx, d: s.d, log: s.log}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.log.Error("transaction rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return dberr.Wrap(err, "committing transaction")
	}
	return nil
}

// # Row Scanning

func (s *SQLStore) queryDocuments(ctx context.Context, query string, params ...any) ([]*document.Document, error) {
	rows, err := s.q.QueryxContext(ctx, s.rebind(query), params...)
	if err != nil {
		return nil, dberr.Wrap(err, "querying documents")
	}
	defer rows.Close()

	var out []*document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "iterating documents")
	}
	return out, nil
}

// scanDocument reads one dynamic_documents row, decoding the JSON payload and
// normalizing driver-specific boolean and timestamp encodings.
func scanDocument(rows *sqlx.Rows) (*document.Document, error) {
	var (
		doc       document.Document
		raw       []byte
		isDeleted boolValue
		createdAt timeValue
		updatedAt timeValue
		sequence  sql.NullInt64
	)
	err := rows.Scan(&doc.ID, &doc.TableName, &raw, &doc.Version, &isDeleted,
		&doc.LatestRequestID, &doc.CreatedBy, &doc.LastModifiedBy,
		&createdAt, &updatedAt, &sequence)
	if err != nil {
		return nil, dberr.Wrap(err, "scanning document row")
	}

	doc.IsDeleted = bool(isDeleted)
	doc.CreatedAt = time.Time(createdAt)
	doc.LastModifiedAt = time.Time(updatedAt)
	doc.SequenceNumber = sequence.Int64

	doc.Data = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc.Data); err != nil {
			return nil, apperr.Internal(fmt.Errorf("repository: decoding document %d: %w", doc.ID, err))
		}
	}
	return &doc, nil
}

// boolValue scans engine-specific boolean encodings: native booleans, 0/1
// numbers (Oracle, SQLite), and their text forms.
type boolValue bool

func (b *boolValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = false
	case bool:
		*b = boolValue(v)
	case int64:
		*b = v != 0
	case float64:
		*b = v != 0
	case []byte:
		return b.scanText(string(v))
	case string:
		return b.scanText(v)
	default:
		return fmt.Errorf("repository: cannot scan %T into bool", src)
	}
	return nil
}

func (b *boolValue) scanText(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1":
		*b = true
	case "f", "false", "0", "":
		*b = false
	default:
		return fmt.Errorf("repository: cannot scan %q into bool", s)
	}
	return nil
}

// timeValue scans timestamps across drivers that return time.Time or text.
type timeValue time.Time

var timeScanLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = timeValue(time.Time{})
		return nil
	case time.Time:
		*t = timeValue(v)
		return nil
	case []byte:
		return t.scanText(string(v))
	case string:
		return t.scanText(v)
	default:
		return fmt.Errorf("repository: cannot scan %T into time", src)
	}
}

func (t *timeValue) scanText(s string) error {
	for _, layout := range timeScanLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timeValue(parsed)
			return nil
		}
	}
	return fmt.Errorf("repository: cannot parse timestamp %q", s)
}
