// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Gateway: Reserved query parameters and request headers.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "sigma-gateway"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// TransactionTimeout bounds every write transaction.
	TransactionTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Request Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXTimeFormat   = "X-Time-Format"
	HeaderXAuditor      = "X-Auditor"
	HeaderIfMatch       = "If-Match"
	HeaderOrigin        = "Origin"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
)

// # Reserved Query Parameters
//
// These never enter a filter tree; the request parser strips them before
// handing the remaining parameters to the filter pipeline.

const (
	ParamSequence = "sequence"
	ParamBulkSize = "bulkSize"
	ParamLimit    = "limit"
	ParamSkip     = "skip"
	ParamSort     = "sort"
)

// # Gateway Defaults

const (
	// DefaultBulkSize is the sequence feed batch size when an endpoint does not
	// configure its own.
	DefaultBulkSize = 100

	// MaxBulkSize is the hard upper bound on a sequence feed batch.
	MaxBulkSize = 1000

	// DefaultEnumRefreshInterval applies when the Globals subtree does not
	// define EnumRefreshIntervalSeconds.
	DefaultEnumRefreshInterval = 5 * time.Minute
)

// # Configuration Tree Nodes
//
// Relative node names under /{ENV}/{SERVICE} and /{ENV}.

const (
	NodeAPIPrefix = "apiPrefix"
	NodeEndpoints = "endpoints"
	NodeSchemas   = "schemas"

	NodeDataSource = "dataSource"
	NodeGlobals    = "Globals"

	NodeEnumURL             = "enumURL"
	NodeEnumRefreshInterval = "EnumRefreshIntervalSeconds"
	NodeFailOnEnumLoad      = "FailOnEnumLoadFailure"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldFilter  = "filter"

	// FieldMyID is the stable identifier of a sub-entity array element.
	FieldMyID = "myId"

	// FieldIsDeleted marks a logically deleted sub-entity element.
	FieldIsDeleted = "isDeleted"

	// FieldIsDelete is the client-supplied flag requesting a sub-entity deletion.
	FieldIsDelete = "isDelete"
)

// # Redis Keys (Cache Taxonomy)

const (
	// RedisKeyEnumCatalog stores the last successfully loaded enum catalog so a
	// restart during an enum service outage can still serve enrichment.
	RedisKeyEnumCatalog = "sigma:enum_catalog"
)
