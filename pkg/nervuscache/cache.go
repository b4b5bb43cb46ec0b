// Package nervuscache is the read-side decoded-property-value cache the
// storage engine's Snapshot consults before re-merging a node's or edge's
// property layers. It is purely an optimization: a nil cache (or a miss) is
// always correct, just slower.
package nervuscache

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/nervus-db/nervusdb/pkg/propval"
)

// Cache wraps a ristretto admission-counted cache keyed by a caller-chosen
// string (the Engine's snapshots use "n:<base-txid>:<top-txid>:<node>:<property-key>"
// and "e:<base-txid>:<top-txid>:<src>:<rel>:<dst>:<property-key>", see
// pkg/storage/snapshot.go). Every entry costs 1, so Config.MaxCost is
// directly the target entry count.
type Cache struct {
	rc *ristretto.Cache[string, propval.Value]
}

// New returns a cache sized to hold approximately maxEntries decoded
// values. NumCounters follows ristretto's own sizing guidance of roughly
// 10x the expected entry count.
func New(maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, propval.Value]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{rc: rc}, nil
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key string) (propval.Value, bool) {
	return c.rc.Get(key)
}

// Set stores val under key with a cost of 1.
func (c *Cache) Set(key string, val propval.Value) {
	c.rc.Set(key, val, 1)
}

// Wait blocks until every Set call issued so far has been applied,
// primarily useful in tests asserting on cache contents immediately after a
// write.
func (c *Cache) Wait() {
	c.rc.Wait()
}

// Invalidate drops every cached entry. The Engine calls this whenever it
// publishes a new Snapshot: keys are namespaced by snapshot horizon, so
// stale entries can no longer be served to a newer snapshot, but entries
// for superseded snapshots would otherwise linger until evicted.
func (c *Cache) Invalidate() {
	c.rc.Clear()
}

// Close releases ristretto's background goroutines.
func (c *Cache) Close() {
	c.rc.Close()
}
