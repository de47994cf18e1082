// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package timeformat renders timestamps according to the X-Time-Format
// request header.
//
// # Formats
//
// Accepted names (case-insensitive): ISO-8601, ISO_INSTANT, RFC-3339,
// ISO_OFFSET_DATE_TIME, UNIX, UNIX-MILLIS, BASIC_ISO_DATE, ISO_LOCAL_DATE,
// ISO_LOCAL_DATE_TIME. Invalid or unknown values fall back to ISO-8601.
package timeformat

import (
	"strings"
	"time"
)

// Format is a named timestamp rendering.
type Format string

const (
	ISO8601           Format = "ISO-8601"
	ISOInstant        Format = "ISO_INSTANT"
	RFC3339           Format = "RFC-3339"
	ISOOffsetDateTime Format = "ISO_OFFSET_DATE_TIME"
	Unix              Format = "UNIX"
	UnixMillis        Format = "UNIX-MILLIS"
	BasicISODate      Format = "BASIC_ISO_DATE"
	ISOLocalDate      Format = "ISO_LOCAL_DATE"
	ISOLocalDateTime  Format = "ISO_LOCAL_DATE_TIME"
)

// Parse resolves a header value to a [Format], falling back to ISO-8601.
func Parse(headerValue string) Format {
	switch strings.ToUpper(strings.TrimSpace(headerValue)) {
	case "ISO_INSTANT":
		return ISOInstant
	case "RFC-3339", "RFC3339":
		return RFC3339
	case "ISO_OFFSET_DATE_TIME":
		return ISOOffsetDateTime
	case "UNIX":
		return Unix
	case "UNIX-MILLIS", "UNIX_MILLIS":
		return UnixMillis
	case "BASIC_ISO_DATE":
		return BasicISODate
	case "ISO_LOCAL_DATE":
		return ISOLocalDate
	case "ISO_LOCAL_DATE_TIME":
		return ISOLocalDateTime
	default:
		return ISO8601
	}
}

// Render formats t according to f. UNIX variants render as integers so they
// survive JSON encoding without quoting.
func (f Format) Render(t time.Time) any {
	switch f {
	case Unix:
		return t.Unix()
	case UnixMillis:
		return t.UnixMilli()
	case BasicISODate:
		return t.Format("20060102")
	case ISOLocalDate:
		return t.Format("2006-01-02")
	case ISOLocalDateTime:
		return t.Format("2006-01-02T15:04:05")
	case ISOInstant:
		return t.UTC().Format("2006-01-02T15:04:05Z07:00")
	case RFC3339, ISOOffsetDateTime, ISO8601:
		return t.Format(time.RFC3339)
	default:
		return t.Format(time.RFC3339)
	}
}
