// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sqldb provides a managed database handle and schema bootstrap for
// the Sigma gateway.
//
// # Architecture
//
// This package is part of the Infrastructure layer. It opens a database/sql
// pool through sqlx for the selected dialect, runs the startup capability
// probe (fail-fast for unsupported engines), and installs the documents table
// plus its sequence trigger.
package sqldb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	// Database drivers registered for the three supported dialects.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/sijms/go-ora/v2"

	"github.com/taibuivan/sigma/internal/dialect"
)

// Opinionated pool settings for the gateway workload.
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 60 * time.Minute
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 5 * time.Second
	bootstrapTime   = 30 * time.Second
)

// Open connects to the database behind the given dialect and validates the
// connection with a ping and the dialect capability probe.
//
// # Parameters
//   - ctx: Context for the initial connection attempt.
//   - d: The selected SQL dialect.
//   - dsn: A driver-compatible connection string.
//   - logger: Structured logger for pool-level events.
func Open(ctx context.Context, d dialect.Dialect, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", d.Name(), err)
	}

	// Apply pool tuning parameters.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	// Validate that we can actually reach the database.
	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast when the engine lacks the JSON capability surface.
	if _, err := db.QueryContext(ctx, d.ProbeSQL()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqldb: dialect probe failed for %s: %w", d.Name(), err)
	}

	logger.Info("database connected",
		slog.String("dialect", d.Name()),
		slog.Int("max_open_conns", maxOpenConns),
	)

	return db, nil
}

// Ping verifies that the database pool is healthy.
func Ping(ctx context.Context, db *sqlx.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("sqldb: ping failed: %w", err)
	}

	return nil
}

// Bootstrap installs the documents table, the checkpoint table, their indices,
// and the sequence trigger. All statements are idempotent; on engines without
// IF NOT EXISTS (Oracle) the "object exists" error family is treated as
// success.
func Bootstrap(ctx context.Context, db *sqlx.DB, d dialect.Dialect, logger *slog.Logger) error {
	bootCtx, cancel := context.WithTimeout(ctx, bootstrapTime)
	defer cancel()

	statements := append(d.DocumentsTableDDL(), d.SequenceTriggerDDL()...)
	for _, stmt := range statements {
		if _, err := db.ExecContext(bootCtx, stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("sqldb: bootstrap DDL failed: %w", err)
		}
	}

	logger.Info("schema_bootstrap_complete",
		slog.String("dialect", d.Name()),
		slog.Int("statements", len(statements)),
	)

	return nil
}

// isAlreadyExists recognizes the Oracle "name is already used" family.
func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ORA-00955") || strings.Contains(msg, "ORA-01408") ||
		strings.Contains(msg, "ORA-02260") || strings.Contains(msg, "ORA-04081")
}
