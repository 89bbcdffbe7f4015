package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/forge/internal/cache"
	"github.com/ternarybob/forge/internal/common"
	"github.com/ternarybob/forge/internal/models"
)

// schemaEntry is the cached shape of one GetEnvironmentSchema result.
type schemaEntry struct {
	schema models.EnvironmentSchema
	slots  []models.SchemaResource
}

// schemaTTL bounds how long a cached schema can outlive an
// out-of-process edit to environment_schema/environment_schema_resource;
// those tables have no mutating boundary operation in this core (schema
// authoring is explicitly out of scope, see §1), so this is a safety
// margin against direct DB edits rather than a normal invalidation path.
const schemaTTL = 10 * time.Minute

// CachingStore decorates *Store with an in-memory cache in front of
// GetEnvironmentSchema, the one read hit on every Compose call and
// every SaveJob/SaveEnvironment validation pass. Every other method is
// promoted straight through via embedding.
type CachingStore struct {
	*Store
	schemas *cache.Cache[schemaEntry]
}

// NewCachingStore wraps store with a schema cache sized per cfg.
func NewCachingStore(store *Store, cfg common.CacheConfig) (*CachingStore, error) {
	schemas, err := cache.New[schemaEntry](cfg)
	if err != nil {
		return nil, fmt.Errorf("store: building schema cache: %w", err)
	}
	return &CachingStore{Store: store, schemas: schemas}, nil
}

// GetEnvironmentSchema serves from cache when present, otherwise reads
// through to the wrapped store and populates the cache.
func (c *CachingStore) GetEnvironmentSchema(ctx context.Context, id uuid.UUID) (models.EnvironmentSchema, []models.SchemaResource, error) {
	key := id.String()
	if entry, ok := c.schemas.Get(key); ok {
		return entry.schema, entry.slots, nil
	}

	schema, slots, err := c.Store.GetEnvironmentSchema(ctx, id)
	if err != nil {
		return schema, slots, err
	}

	c.schemas.SetTTL(key, schemaEntry{schema: schema, slots: slots}, schemaTTL)
	return schema, slots, nil
}

// Close releases the cache alongside the wrapped store's connections.
func (c *CachingStore) Close() {
	c.schemas.Close()
	c.Store.Close()
}
