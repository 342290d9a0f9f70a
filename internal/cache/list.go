// Package cache holds the two caches of the system: the per-owner list
// cache in front of the schema store, and the query layer's view of each
// wide table's physical columns.
package cache

import (
	"context"
	"time"

	"dyntables/internal/domain"

	gocache "github.com/patrickmn/go-cache"
)

// ListCache caches ListByType results. Every schema-mutating call must
// invalidate the keys of the affected owner.
type ListCache interface {
	Get(ctx context.Context, key string) ([]domain.LogicalDatabase, bool)
	Set(ctx context.Context, key string, dbs []domain.LogicalDatabase)
	Invalidate(ctx context.Context, keys ...string)
}

// ListKey is the cache key of an owner's databases of one type.
// An empty type stands for "all types".
func ListKey(ownerID string, t domain.DatabaseType) string {
	if t == "" {
		t = "*"
	}
	return "dbs:" + ownerID + ":" + string(t)
}

// OwnerKeys returns every key that may hold a database of type t.
func OwnerKeys(ownerID string, t domain.DatabaseType) []string {
	return []string{ListKey(ownerID, t), ListKey(ownerID, "")}
}

// MemoryListCache is an in-process ListCache.
type MemoryListCache struct {
	c *gocache.Cache
}

// NewMemoryListCache creates a cache whose entries expire after ttl.
func NewMemoryListCache(ttl time.Duration) *MemoryListCache {
	return &MemoryListCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryListCache) Get(_ context.Context, key string) ([]domain.LogicalDatabase, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	dbs := v.([]domain.LogicalDatabase)
	return append([]domain.LogicalDatabase(nil), dbs...), true
}

func (m *MemoryListCache) Set(_ context.Context, key string, dbs []domain.LogicalDatabase) {
	m.c.Set(key, append([]domain.LogicalDatabase(nil), dbs...), gocache.DefaultExpiration)
}

func (m *MemoryListCache) Invalidate(_ context.Context, keys ...string) {
	for _, k := range keys {
		m.c.Delete(k)
	}
}

// NopListCache disables list caching.
type NopListCache struct{}

func (NopListCache) Get(context.Context, string) ([]domain.LogicalDatabase, bool) { return nil, false }
func (NopListCache) Set(context.Context, string, []domain.LogicalDatabase)        {}
func (NopListCache) Invalidate(context.Context, ...string)                        {}
