package storage

import (
	"sort"
	"sync"
)

// NodeID is the internal, monotonically assigned identifier for a node.
// Stable for the life of the node.
type NodeID uint64

// IdMap assigns monotonic InternalNodeIds and optionally indexes them by an
// external user-supplied id. It tracks which ids are currently live versus
// tombstoned as of the map's own generation; per-run tombstones layered on
// top by the snapshot lattice are tracked separately (see MemTable/L0Run).
type IdMap struct {
	mu       sync.RWMutex
	next     NodeID
	byExtID  map[uint64]NodeID
	live     map[NodeID]struct{}
	external map[NodeID]uint64
}

// NewIdMap returns an empty IdMap. Internal ids start at 1; 0 is reserved.
func NewIdMap() *IdMap {
	return &IdMap{
		next:     1,
		byExtID:  make(map[uint64]NodeID),
		live:     make(map[NodeID]struct{}),
		external: make(map[NodeID]uint64),
	}
}

// Assign allocates a fresh internal id, optionally associated with an
// external user id (hasExt == true). It is an error at a higher layer to
// reuse an external id that already maps to a live node; the IdMap itself
// simply overwrites the mapping. The id layer stays dumb and the Engine
// enforces policy.
func (m *IdMap) Assign(extID uint64, hasExt bool) NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.live[id] = struct{}{}
	if hasExt {
		m.byExtID[extID] = id
		m.external[id] = extID
	}
	return id
}

// Tombstone marks id as no longer live in this generation of the map. It
// does not remove the external-id association so that a later Resolve call
// can still explain why a lookup now misses.
func (m *IdMap) Tombstone(id NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, id)
}

// Contains reports whether id is currently live.
func (m *IdMap) Contains(id NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.live[id]
	return ok
}

// ResolveExternal returns the internal id bound to an external user id.
func (m *IdMap) ResolveExternal(extID uint64) (NodeID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byExtID[extID]
	return id, ok
}

// ExternalID returns the external id (if any) that was supplied when id was
// created.
func (m *IdMap) ExternalID(id NodeID) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.external[id]
	return ext, ok
}

// IterLive calls fn for every currently-live internal id, in ascending
// order. Iteration stops early if fn returns false.
func (m *IdMap) IterLive(fn func(NodeID) bool) {
	m.mu.RLock()
	ids := make([]NodeID, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(id) {
			return
		}
	}
}

// Next reports the next id that would be assigned, useful for capacity
// planning and for the Engine to persist/restore the counter across
// restarts.
func (m *IdMap) Next() NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next
}

// Restore fast-forwards the id counter to at least id+1, used during WAL
// replay so ids assigned by a prior process are never reused.
func (m *IdMap) Restore(id NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[id] = struct{}{}
	if id >= m.next {
		m.next = id + 1
	}
}

// RestoreExternal binds id to extID without touching the live set or the id
// counter, used alongside Restore when WAL replay rehydrates a node that was
// created with an external id.
func (m *IdMap) RestoreExternal(id NodeID, extID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byExtID[extID] = id
	m.external[id] = extID
}
