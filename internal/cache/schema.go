package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// SchemaCache is the query layer's possibly stale view of which physical
// columns each wide table has. Entries only change on Set, Invalidate or
// expiry, so a column added to the table stays invisible until then.
type SchemaCache struct {
	c *gocache.Cache
}

// NewSchemaCache creates a cache whose snapshots expire after ttl.
// A zero ttl keeps snapshots until they are invalidated.
func NewSchemaCache(ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		return &SchemaCache{c: gocache.New(gocache.NoExpiration, 0)}
	}
	return &SchemaCache{c: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached column set of table.
func (s *SchemaCache) Get(table string) (map[string]bool, bool) {
	v, ok := s.c.Get(table)
	if !ok {
		return nil, false
	}
	return v.(map[string]bool), true
}

// Set stores a snapshot of table's columns.
func (s *SchemaCache) Set(table string, columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	s.c.Set(table, set, gocache.DefaultExpiration)
	return set
}

// Invalidate drops the snapshot of table.
func (s *SchemaCache) Invalidate(table string) {
	s.c.Delete(table)
}

// InvalidateAll drops every snapshot.
func (s *SchemaCache) InvalidateAll() {
	s.c.Flush()
}
