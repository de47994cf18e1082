// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/dberr"
)

/*
TestWrap_Classification verifies the mapping from driver errors to application
errors: no rows is a 404, a cancelled or timed-out statement is an upstream
failure, and anything else is an internal error.
*/
func TestWrap_Classification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"no_rows", sql.ErrNoRows, "NOT_FOUND", http.StatusNotFound},
		{"wrapped_no_rows", fmt.Errorf("scan: %w", sql.ErrNoRows), "NOT_FOUND", http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, "UPSTREAM_ERROR", http.StatusServiceUnavailable},
		{"cancelled", context.Canceled, "UPSTREAM_ERROR", http.StatusServiceUnavailable},
		{"driver_failure", errors.New("ORA-00942: table or view does not exist"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := dberr.Wrap(tt.err, "querying documents")

			ae := apperr.As(wrapped)
			require.NotNil(t, ae)
			assert.Equal(t, tt.wantCode, ae.Code)
			assert.Equal(t, tt.wantStatus, ae.HTTPStatus)
		})
	}
}

/*
TestWrap_Nil verifies the success path passes through untouched.
*/
func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, dberr.Wrap(nil, "querying documents"))
}

/*
TestWrap_ActionInCause verifies the action lands in the server-side cause chain
while the client-facing message stays generic.
*/
func TestWrap_ActionInCause(t *testing.T) {
	wrapped := dberr.Wrap(errors.New("connection reset"), "saving checkpoint")

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Equal(t, "An unexpected error occurred", ae.Message)
	require.NotNil(t, ae.Cause)
	assert.Contains(t, ae.Cause.Error(), "saving checkpoint")
}
