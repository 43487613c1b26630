// Package querycache is the read-through cache for list-query results,
// layered on the ephemeral store. Entries are disposable projections: a
// miss, a stale-within-TTL read, or a store outage must never surface as an
// error, and every task/star mutation drops the whole keyspace prefix
// rather than attempting precise invalidation.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

const keyPrefix = "cache:tasks:"

// Cache wraps the ephemeral store with list-page serialization.
type Cache struct {
	store  kvstore.Store
	ttl    time.Duration
	logger logging.Logger
}

// NewCache binds the cache to a store; ttl is the entry lifetime.
func NewCache(store kvstore.Store, ttl time.Duration, logger logging.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logger.With("module", "querycache")}
}

// Key derives the cache key from every query dimension plus the viewer:
// mine/starred results differ per viewer and even "all" embeds a per-viewer
// star flag, so viewer scoping is mandatory.
func Key(q models.TaskListQuery, viewerID string) string {
	search := "all"
	if q.Search != "" {
		sum := sha256.Sum256([]byte(strings.ToLower(q.Search)))
		search = hex.EncodeToString(sum[:8])
	}
	return fmt.Sprintf("%s%s:%s:%d:%d:%s:%s:%s",
		keyPrefix, q.Context, search, q.Page, q.Limit, q.SortBy, q.SortOrder, viewerID)
}

// Get returns the cached page for the query, or (nil, false) on any miss or
// store/decoding failure.
func (c *Cache) Get(ctx context.Context, q models.TaskListQuery, viewerID string) (*models.TaskPage, bool) {
	raw, err := c.store.Get(ctx, Key(q, viewerID))
	if err != nil {
		return nil, false
	}
	var page models.TaskPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		c.logger.Warn(ctx, "dropping undecodable cache entry", "error", err)
		return nil, false
	}
	return &page, true
}

// Put stores the page. Failures are logged and swallowed.
func (c *Cache) Put(ctx context.Context, q models.TaskListQuery, viewerID string, page *models.TaskPage) {
	raw, err := json.Marshal(page)
	if err != nil {
		c.logger.Warn(ctx, "cache encode failed", "error", err)
		return
	}
	if err := c.store.Set(ctx, Key(q, viewerID), string(raw), c.ttl); err != nil {
		c.logger.Warn(ctx, "cache write failed", "error", err)
	}
}

// Invalidate drops every cached query result. Broad on purpose.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.store.DeleteByPrefix(ctx, keyPrefix); err != nil {
		c.logger.Warn(ctx, "cache invalidation failed", "error", err)
	}
}
