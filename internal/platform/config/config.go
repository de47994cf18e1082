// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, config store) via constructors.
  - Zero Hidden State: No global variables are used to store config.

Only bootstrap settings live in the environment. Everything an operator can
change at runtime (endpoints, schemas, filter policies, enum wiring) lives in
the hierarchical configuration tree and is read through the config store.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds the bootstrap configuration for the Sigma gateway.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DEBUG"       envDefault:"false"`

	// Env is the top-level node of the configuration tree ("/{ENV}/...").
	Env string `env:"ENV,required"`

	// Service selects the "/{ENV}/{SERVICE}" subtree holding endpoint and
	// schema definitions. It doubles as the default auditor identity.
	Service string `env:"SERVICE,required"`

	// ZookeeperURL is a comma-separated list of ZooKeeper servers. When empty,
	// the gateway falls back to the in-memory store seeded from ConfigBootstrap.
	ZookeeperURL string `env:"ZOOKEEPER_URL"`

	// ConfigBootstrap is a JSON file of path→value pairs used to seed the
	// in-memory config store for local development and tests.
	ConfigBootstrap string `env:"CONFIG_BOOTSTRAP"`

	// Relational database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// DatabaseType overrides dialect inference from the DATABASE_URL scheme.
	// One of: postgres, oracle, sqlite.
	DatabaseType string `env:"DATABASE_TYPE"`

	// Optional warm-start cache for the enum catalog
	RedisURL string `env:"REDIS_URL"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ServiceRoot returns the configuration tree path "/{ENV}/{SERVICE}".
func (c *Config) ServiceRoot() string {
	return "/" + c.Env + "/" + c.Service
}

// DataSourceRoot returns the configuration tree path "/{ENV}/dataSource".
func (c *Config) DataSourceRoot() string {
	return "/" + c.Env + "/dataSource"
}

// GlobalsRoot returns the configuration tree path "/{ENV}/Globals".
func (c *Config) GlobalsRoot() string {
	return "/" + c.Env + "/Globals"
}
