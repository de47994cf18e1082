// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/sigma/internal/platform/apperr"
	"github.com/taibuivan/sigma/internal/platform/constants"
)

// EnumEntry is one code of an enumeration catalog.
type EnumEntry struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Catalog maps catalog names to their entries, e.g. "CURRENCY" → [USD, EUR].
type Catalog map[string][]EnumEntry

// Codes returns the code list of a named catalog, nil when absent.
func (c Catalog) Codes(name string) []string {
	entries, ok := c[name]
	if !ok {
		return nil
	}
	codes := make([]string, 0, len(entries))
	for _, e := range entries {
		codes = append(codes, e.Code)
	}
	return codes
}

// Lookup resolves a code to its entry within a named catalog.
func (c Catalog) Lookup(name, code string) (EnumEntry, bool) {
	for _, e := range c[name] {
		if e.Code == code {
			return e, true
		}
	}
	return EnumEntry{}, false
}

// catalogSnapshot is the immutable unit swapped on each refresh. Generation
// increases monotonically so schema compilation can detect staleness.
type catalogSnapshot struct {
	catalogs   Catalog
	generation uint64
	loadedAt   time.Time
}

// EnumConfig configures the enumeration loader.
type EnumConfig struct {
	// URL is the catalog endpoint returning {"NAME": [{"code","value"},...]}.
	// Empty disables remote loading; the catalog stays empty.
	URL string

	// RefreshInterval is the fixed delay between refresh attempts.
	RefreshInterval time.Duration

	// FailOnLoad aborts startup when the initial load yields no catalog, and
	// suspends writes to enum-validated schemas while refreshes are failing.
	FailOnLoad bool
}

// Enums owns the enumeration catalog: one HTTP source, a fixed-delay refresher,
// and an optional Redis warm-start cache that bridges source outages at boot.
//
// Readers always see a complete snapshot; refreshes swap atomically and a
// failed refresh keeps the previous snapshot in place.
type Enums struct {
	cfg    EnumConfig
	log    *slog.Logger
	client *http.Client
	cache  *redis.Client

	snap atomic.Pointer[catalogSnapshot]

	// degraded is set while FailOnLoad is configured and the last refresh
	// failed; it gates writes to enum-validated schemas until the source
	// recovers.
	degraded atomic.Bool
}

// NewEnums builds the loader. cache may be nil.
func NewEnums(cfg EnumConfig, cache *redis.Client, log *slog.Logger) *Enums {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = constants.DefaultEnumRefreshInterval
	}
	e := &Enums{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  cache,
	}
	e.snap.Store(&catalogSnapshot{catalogs: Catalog{}})
	return e
}

// Snapshot returns the current catalog and its generation.
func (e *Enums) Snapshot() (Catalog, uint64) {
	s := e.snap.Load()
	return s.catalogs, s.generation
}

// Start performs the initial load and launches the refresh loop. The loop
// stops when ctx is canceled.
func (e *Enums) Start(ctx context.Context) error {
	if e.cfg.URL == "" {
		e.log.Info("enum catalog disabled, no enum URL configured")
		return nil
	}

	if err := e.refresh(ctx); err != nil {
		e.log.Warn("initial enum load failed, trying warm-start cache",
			slog.String("error", err.Error()))
		if cacheErr := e.loadFromCache(ctx); cacheErr != nil {
			if e.cfg.FailOnLoad {
				return apperr.Upstream("enum catalog", err)
			}
			e.log.Warn("enum warm-start cache unavailable, starting with empty catalog",
				slog.String("error", cacheErr.Error()))
		} else if e.cfg.FailOnLoad {
			// The warm start restores reads and enrichment; writes stay gated
			// until a live refresh succeeds.
			e.degraded.Store(true)
		}
	}

	go e.loop(ctx)
	return nil
}

// loop re-fetches the catalog on a fixed delay until ctx is canceled.
func (e *Enums) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.refresh(ctx); err != nil {
				e.log.Warn("enum catalog refresh failed, keeping previous snapshot",
					slog.String("error", err.Error()))
			}
		}
	}
}

// WritesBlocked reports whether enum-validated writes are suspended: the
// catalog source is failing and the configuration says stale validation is
// worse than refusing the write.
func (e *Enums) WritesBlocked() bool {
	return e.degraded.Load()
}

// refresh fetches the catalog, swaps the snapshot, and writes through to the
// warm-start cache. Failures flip the degraded flag when FailOnLoad is set;
// the next success clears it.
func (e *Enums) refresh(ctx context.Context) error {
	if err := e.fetch(ctx); err != nil {
		if e.cfg.FailOnLoad {
			e.degraded.Store(true)
		}
		return err
	}
	return nil
}

func (e *Enums) fetch(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("building enum request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching enum catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enum catalog returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("reading enum catalog: %w", err)
	}

	var catalogs Catalog
	if err := json.Unmarshal(body, &catalogs); err != nil {
		return fmt.Errorf("decoding enum catalog: %w", err)
	}

	e.install(catalogs)
	e.log.Info("enum catalog refreshed", slog.Int("catalogs", len(catalogs)))

	if e.cache != nil {
		if err := e.cache.Set(ctx, constants.RedisKeyEnumCatalog, body, 0).Err(); err != nil {
			e.log.Warn("enum warm-start cache write failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// loadFromCache seeds the snapshot from the last good catalog in Redis.
func (e *Enums) loadFromCache(ctx context.Context) error {
	if e.cache == nil {
		return fmt.Errorf("no warm-start cache configured")
	}
	body, err := e.cache.Get(ctx, constants.RedisKeyEnumCatalog).Bytes()
	if err != nil {
		return fmt.Errorf("reading enum warm-start cache: %w", err)
	}
	var catalogs Catalog
	if err := json.Unmarshal(body, &catalogs); err != nil {
		return fmt.Errorf("decoding cached enum catalog: %w", err)
	}
	e.install(catalogs)
	e.log.Info("enum catalog warm-started from cache", slog.Int("catalogs", len(catalogs)))
	return nil
}

func (e *Enums) install(catalogs Catalog) {
	prev := e.snap.Load()
	e.snap.Store(&catalogSnapshot{
		catalogs:   catalogs,
		generation: prev.generation + 1,
		loadedAt:   time.Now().UTC(),
	})
	e.degraded.Store(false)
}
