package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/appdrop/appdrop/internal/logging"
	"github.com/appdrop/appdrop/internal/metrics"
	"github.com/appdrop/appdrop/internal/storage"
)

// DefaultTTL is how long a persisted catalog stays fresh.
const DefaultTTL = 24 * time.Hour

// Cache loads the persisted catalog, refreshing it when missing, stale,
// malformed, or empty.
type Cache struct {
	store storage.Backend
	path  string
	ttl   time.Duration
	seed  []AppEntry
	now   func() time.Time
}

// NewCache creates a catalog cache persisting at the given logical path.
// The seed entries act as the floor whenever no richer catalog is available.
func NewCache(store storage.Backend, docPath string, ttl time.Duration, seed []AppEntry) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: store,
		path:  docPath,
		ttl:   ttl,
		seed:  seed,
		now:   time.Now,
	}
}

// Load returns the current catalog. A fresh persisted document is returned
// as-is; anything else triggers a refresh. Backing-store failures are never
// propagated: the in-memory default catalog is served instead, leaving the
// persisted state alone.
func (c *Cache) Load(ctx context.Context) Document {
	exists, err := c.store.Exists(ctx, c.path)
	if err != nil {
		logging.Warn("catalog existence check failed, serving defaults",
			zap.String("path", c.path), zap.Error(err))
		return c.defaultDocument()
	}

	if exists {
		raw, err := c.store.ReadFile(ctx, c.path)
		if err != nil {
			logging.Warn("catalog read failed, serving defaults",
				zap.String("path", c.path), zap.Error(err))
			return c.defaultDocument()
		}

		doc, err := ParseDocument(raw)
		if err != nil {
			logging.Warn("persisted catalog is malformed, refreshing",
				zap.String("path", c.path), zap.Error(err))
		} else if c.fresh(doc) {
			metrics.SetCatalogEntries(len(doc.Downloads))
			return doc
		}
	}

	doc, err := c.ForceRefresh(ctx)
	if err != nil {
		logging.Warn("catalog refresh failed, serving defaults",
			zap.String("path", c.path), zap.Error(err))
		return c.defaultDocument()
	}
	return doc
}

// ForceRefresh rebuilds the catalog from the seed entries with the current
// timestamp and persists it. Unlike Load, it propagates backing-store
// errors: refresh is an administrative operation.
func (c *Cache) ForceRefresh(ctx context.Context) (Document, error) {
	if dir := path.Dir(c.path); dir != "." && dir != "/" {
		if err := c.store.CreateDirectory(ctx, dir); err != nil {
			metrics.RecordCatalogRefresh(false)
			return Document{}, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	doc := c.defaultDocument()
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		metrics.RecordCatalogRefresh(false)
		return Document{}, fmt.Errorf("encode catalog: %w", err)
	}

	if err := c.store.WriteFile(ctx, c.path, raw); err != nil {
		metrics.RecordCatalogRefresh(false)
		return Document{}, fmt.Errorf("write catalog: %w", err)
	}

	metrics.RecordCatalogRefresh(true)
	metrics.SetCatalogEntries(len(doc.Downloads))
	logging.Info("catalog refreshed",
		zap.String("path", c.path),
		zap.Int("entries", len(doc.Downloads)))
	return doc, nil
}

// fresh reports whether doc is within TTL and non-empty.
func (c *Cache) fresh(doc Document) bool {
	if len(doc.Downloads) == 0 {
		return false
	}
	return c.now().Unix()-doc.Timestamp < int64(c.ttl/time.Second)
}

func (c *Cache) defaultDocument() Document {
	return Document{
		Timestamp: c.now().Unix(),
		Downloads: c.seed,
	}
}
