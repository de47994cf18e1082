// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/filter"
	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/constants"
	"github.com/taibuivan/sigma/pkg/timeformat"
)

// Operation is the request variant the parser resolved.
type Operation string

const (
	OpRead     Operation = "read"
	OpSequence Operation = "sequence"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpUpsert   Operation = "upsert"
	OpDelete   Operation = "delete"
)

// IsWrite reports whether the operation mutates documents.
func (o Operation) IsWrite() bool {
	switch o {
	case OpCreate, OpUpdate, OpUpsert, OpDelete:
		return true
	}
	return false
}

// EnvelopeType is the operation tag used in write response envelopes.
func (o Operation) EnvelopeType() string {
	return strings.ToUpper(string(o))
}

// NoExpectedVersion marks an absent If-Match header.
const NoExpectedVersion = int64(-1)

// maxBodyBytes bounds request bodies before JSON decoding.
const maxBodyBytes = 16 << 20

// Request is the fully parsed form of one gateway request.
type Request struct {
	Endpoint  *endpoint.Endpoint
	Operation Operation

	// Filter is the parsed predicate tree; nil matches the whole collection.
	Filter  filter.Node
	Options filter.Options

	// Documents holds the write payload: one element for single writes, many
	// for bulk creates.
	Documents []map[string]any
	// Bulk distinguishes an array create payload from a single-object one.
	Bulk bool
	// Multi lets update/delete touch every match instead of the first.
	Multi bool

	// ExpectedVersion is the If-Match optimistic guard, or NoExpectedVersion.
	ExpectedVersion int64

	// StartSequence and BulkSize drive the change feed variant. A negative
	// StartSequence means "resume from the stored checkpoint".
	StartSequence int64
	BulkSize      int

	// TimeFormat renders response timestamps per the X-Time-Format header.
	TimeFormat timeformat.Format
}

// ParseRequest resolves the endpoint and decodes the request into its
// operation variant.
func ParseRequest(r *http.Request, ep *endpoint.Endpoint) (*Request, error) {
	req := &Request{
		Endpoint:        ep,
		ExpectedVersion: NoExpectedVersion,
		TimeFormat:      timeformat.Parse(r.Header.Get(constants.HeaderXTimeFormat)),
	}

	if err := parseIfMatch(r, req); err != nil {
		return nil, err
	}

	var err error
	switch r.Method {
	case http.MethodGet:
		req, err = parseGet(r, req)
	case http.MethodPost:
		req, err = parsePost(r, req)
	case http.MethodPut:
		req, err = parseWrite(r, req, OpUpsert, true)
	case http.MethodPatch:
		req, err = parseWrite(r, req, OpUpdate, true)
	case http.MethodDelete:
		req, err = parseWrite(r, req, OpDelete, false)
	default:
		return nil, apperr.MethodNotAllowed(r.Method, r.URL.Path)
	}
	if err != nil {
		return nil, err
	}

	// The routing table admits every configured method; whether this method
	// may mutate is the endpoint's write set. A POST that resolved to a
	// body-filter read passes; the same POST resolving to a create does not.
	if req.Operation.IsWrite() && !ep.IsWrite(r.Method) {
		return nil, apperr.MethodNotAllowed(r.Method, r.URL.Path)
	}
	return req, nil
}

func parseIfMatch(r *http.Request, req *Request) error {
	raw := strings.TrimSpace(r.Header.Get(constants.HeaderIfMatch))
	if raw == "" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return apperr.BadRequest("If-Match must be a non-negative document version")
	}
	req.ExpectedVersion = version
	return nil
}

// # GET

func parseGet(r *http.Request, req *Request) (*Request, error) {
	query := r.URL.Query()

	if _, present := query[constants.ParamSequence]; present {
		return parseSequence(query, req)
	}

	node, opts, err := filterFromQuery(query)
	if err != nil {
		return nil, err
	}
	req.Operation = OpRead
	req.Filter = node
	req.Options = opts
	return req, nil
}

func parseSequence(query url.Values, req *Request) (*Request, error) {
	if !req.Endpoint.SequenceEnabled {
		return nil, apperr.BadRequest("Sequence reads are not enabled for this endpoint")
	}
	// The change feed classifies whole rows; a nested endpoint serves expanded
	// array elements, and its feed would leak the father documents instead.
	if req.Endpoint.FatherPath != "" {
		return nil, apperr.BadRequest("Sequence reads are not available on nested endpoints")
	}

	req.Operation = OpSequence
	req.StartSequence = -1
	if raw := query.Get(constants.ParamSequence); raw != "" {
		start, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || start < 0 {
			return nil, apperr.BadRequest("sequence must be a non-negative integer")
		}
		req.StartSequence = start
	}

	// An explicit bulkSize may shrink the page but never exceed the endpoint's
	// configured batch size, which is the backpressure ceiling.
	req.BulkSize = req.Endpoint.BulkSize
	if raw := query.Get(constants.ParamBulkSize); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return nil, apperr.BadRequest("bulkSize must be a positive integer")
		}
		if size > req.Endpoint.BulkSize {
			size = req.Endpoint.BulkSize
		}
		req.BulkSize = size
	}
	return req, nil
}

// # POST

// parsePost disambiguates the two POST shapes: a body with a top-level filter
// key is a query, anything else is a create payload.
func parsePost(r *http.Request, req *Request) (*Request, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, apperr.BadRequest("Request body is required")
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperr.BadRequest("Invalid JSON body")
	}

	switch body := decoded.(type) {
	case []any:
		docs, err := documentList(body)
		if err != nil {
			return nil, err
		}
		req.Operation = OpCreate
		req.Documents = docs
		req.Bulk = true
		return req, nil

	case map[string]any:
		if _, isQuery := body[constants.FieldFilter]; isQuery {
			node, opts, err := filterFromBody(body, raw)
			if err != nil {
				return nil, err
			}
			req.Operation = OpRead
			req.Filter = node
			req.Options = opts
			return req, nil
		}
		req.Operation = OpCreate
		req.Documents = []map[string]any{body}
		return req, nil

	default:
		return nil, apperr.BadRequest("Request body must be a JSON object or array")
	}
}

// # PUT / PATCH / DELETE

// parseWrite handles the predicate-plus-document writes. The predicate comes
// from the body's filter key when present, otherwise from bracketed query
// parameters. needsDocument distinguishes update/upsert from delete.
func parseWrite(r *http.Request, req *Request, op Operation, needsDocument bool) (*Request, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}

	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, apperr.BadRequest("Invalid JSON body")
		}
	}

	req.Operation = op

	if multi, ok := body["multi"].(bool); ok {
		req.Multi = multi
	}

	// Predicate: body filter wins over query brackets.
	if rawFilter, ok := body[constants.FieldFilter]; ok {
		filterMap, isMap := rawFilter.(map[string]any)
		if !isMap {
			return nil, apperr.BadRequest("filter must be a JSON object")
		}
		node, err := filter.Parse(filterMap)
		if err != nil {
			return nil, err
		}
		req.Filter = node
	} else {
		node, _, err := filterFromQuery(r.URL.Query())
		if err != nil {
			return nil, err
		}
		req.Filter = node
	}

	if !needsDocument {
		return req, nil
	}

	doc, err := extractWriteDocument(body)
	if err != nil {
		return nil, err
	}
	req.Documents = []map[string]any{doc}
	return req, nil
}

// extractWriteDocument pulls the payload from a write body: an explicit
// document key, or the remaining top-level fields once the envelope keys are
// removed.
func extractWriteDocument(body map[string]any) (map[string]any, error) {
	if rawDoc, ok := body["document"]; ok {
		doc, isMap := rawDoc.(map[string]any)
		if !isMap || len(doc) == 0 {
			return nil, apperr.BadRequest("document must be a non-empty JSON object")
		}
		return doc, nil
	}

	doc := make(map[string]any, len(body))
	for k, v := range body {
		switch k {
		case constants.FieldFilter, "multi":
			continue
		}
		doc[k] = v
	}
	if len(doc) == 0 {
		return nil, apperr.BadRequest("Request body must contain document fields")
	}
	return doc, nil
}

// # Filter Extraction

// filterFromQuery builds a predicate from bracketed query parameters:
// price[gte]=10 becomes {price: {gte: 10}}, name=shirt becomes equality.
// Reserved parameters never enter the tree.
func filterFromQuery(query url.Values) (filter.Node, filter.Options, error) {
	opts := filter.Options{}
	input := map[string]any{}

	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		value := values[0]

		switch key {
		case constants.ParamSequence, constants.ParamBulkSize:
			continue
		case constants.ParamLimit:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, opts, apperr.BadRequest("limit must be a non-negative integer")
			}
			opts.Limit = n
			continue
		case constants.ParamSkip:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, opts, apperr.BadRequest("skip must be a non-negative integer")
			}
			opts.Skip = n
			continue
		case constants.ParamSort:
			opts.Sort = filter.SortFromQuery(value)
			continue
		}

		field, op, bracketed := splitBracketParam(key)
		if !bracketed {
			input[key] = coerceQueryValue(value)
			continue
		}

		conds, _ := input[field].(map[string]any)
		if conds == nil {
			conds = map[string]any{}
			input[field] = conds
		}
		if filter.NormalizeToken(op) == "in" || filter.NormalizeToken(op) == "nin" {
			list := make([]any, 0, len(values))
			for _, v := range strings.Split(value, ",") {
				list = append(list, coerceQueryValue(strings.TrimSpace(v)))
			}
			conds[op] = list
		} else {
			conds[op] = coerceQueryValue(value)
		}
	}

	node, err := filter.Parse(input)
	if err != nil {
		return nil, opts, err
	}
	return node, opts, nil
}

// filterFromBody parses the POST query shape: {filter, limit, skip, sort,
// projection}.
func filterFromBody(body map[string]any, raw []byte) (filter.Node, filter.Options, error) {
	filterMap, ok := body[constants.FieldFilter].(map[string]any)
	if !ok {
		return nil, filter.Options{}, apperr.BadRequest("filter must be a JSON object")
	}

	node, err := filter.Parse(filterMap)
	if err != nil {
		return nil, filter.Options{}, err
	}
	opts, err := filter.ParseOptionsJSON(body, raw)
	if err != nil {
		return nil, filter.Options{}, err
	}
	return node, opts, nil
}

// splitBracketParam splits "price[gte]" into field and operator.
func splitBracketParam(key string) (field, op string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	field = key[:open]
	op = key[open+1 : len(key)-1]
	if op == "" {
		return "", "", false
	}
	return field, op, true
}

// coerceQueryValue types a query string the way a JSON decoder would: numbers
// and booleans become typed values, everything else stays a string.
func coerceQueryValue(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}

// documentList asserts every element of a bulk payload is an object.
func documentList(body []any) ([]map[string]any, error) {
	if len(body) == 0 {
		return nil, apperr.BadRequest("Bulk payload must not be empty")
	}
	docs := make([]map[string]any, 0, len(body))
	for i, item := range body {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.BadRequest(fmt.Sprintf("Bulk element %d must be a JSON object", i))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.BadRequest("Unable to read request body")
	}
	return raw, nil
}
