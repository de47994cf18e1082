// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package api contains the health check handlers for liveness and readiness probes.
package api

import (
	"log/slog"
	"net/http"

	"github.com/taibuivan/sigma/internal/platform/respond"
)

// HealthDependencies holds the injectable dependency checkers for the /ready endpoint.
type HealthDependencies struct {
	// CheckDatabase pings the relational database.
	CheckDatabase func() error

	// CheckConfigStore verifies the configuration tree session.
	CheckConfigStore func() error

	// EndpointCount reports how many endpoints are materialized. Zero endpoints
	// means the gateway can serve nothing and is reported as degraded.
	EndpointCount func() int
}

type healthHandler struct {
	dependencies HealthDependencies
	logger       *slog.Logger
}

// NewHealthHandlers creates the /health and /ready http.HandlerFuncs.
func NewHealthHandlers(deps HealthDependencies, logger *slog.Logger) (liveness, readiness http.HandlerFunc) {
	handler := &healthHandler{dependencies: deps, logger: logger}
	return handler.liveness, handler.readiness
}

// liveness handles GET /health (Liveness probe).
func (handler *healthHandler) liveness(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, map[string]string{"status": "ok"})
}

// readiness handles GET /ready (Readiness probe).
func (handler *healthHandler) readiness(writer http.ResponseWriter, request *http.Request) {
	type checkResult struct {
		Name  string `json:"name"`
		IsOK  bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}

	results := make([]checkResult, 0, 3)
	isSystemReady := true

	// Check the relational database
	if handler.dependencies.CheckDatabase != nil {
		result := checkResult{Name: "database", IsOK: true}
		if err := handler.dependencies.CheckDatabase(); err != nil {
			result.IsOK = false
			result.Error = err.Error()
			isSystemReady = false
			handler.logger.Error("readiness_check_failed", slog.String("dependency", "database"), slog.Any("error", err))
		}
		results = append(results, result)
	}

	// Check the configuration store session
	if handler.dependencies.CheckConfigStore != nil {
		result := checkResult{Name: "configstore", IsOK: true}
		if err := handler.dependencies.CheckConfigStore(); err != nil {
			result.IsOK = false
			result.Error = err.Error()
			isSystemReady = false
			handler.logger.Error("readiness_check_failed", slog.String("dependency", "configstore"), slog.Any("error", err))
		}
		results = append(results, result)
	}

	// Check that at least one endpoint is materialized
	if handler.dependencies.EndpointCount != nil {
		result := checkResult{Name: "endpoints", IsOK: true}
		if handler.dependencies.EndpointCount() == 0 {
			result.IsOK = false
			result.Error = "no endpoints materialized"
			isSystemReady = false
		}
		results = append(results, result)
	}

	responseStatus := "ready"
	httpStatus := http.StatusOK

	if !isSystemReady {
		responseStatus = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	respond.JSON(writer, httpStatus, map[string]any{
		"status": responseStatus,
		"checks": results,
	})
}
