package storage

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SymbolID is an interned id for a label, relationship type, or property
// key name. Id 0 is reserved and never assigned.
type SymbolID uint32

// InternerSnapshot is an immutable, append-only view of the interner as of
// some point in time. Once published, the mapping it carries never
// changes: a symbol id, once assigned, never rebinds, so any snapshot taken
// later is a superset (never a contradiction) of an earlier one.
type InternerSnapshot struct {
	toID   map[string]SymbolID
	toName map[SymbolID]string
}

// ID returns the id bound to name, if any.
func (s *InternerSnapshot) ID(name string) (SymbolID, bool) {
	id, ok := s.toID[name]
	return id, ok
}

// Name returns the name bound to id, if any. Together with ID it holds
// that Name(ID(n)) == n for every known n.
func (s *InternerSnapshot) Name(id SymbolID) (string, bool) {
	name, ok := s.toName[id]
	return name, ok
}

// Interner is the two-way map from strings to stable symbol ids used for
// labels, relationship types, and property keys. Writers mutate it under a
// single lock (get_or_create); readers take an immutable snapshot of the
// current state and never block a writer, nor see entries created after
// their snapshot was taken, consistent with the snapshot's txid.
type Interner struct {
	mu     sync.RWMutex
	toID   map[string]SymbolID
	toName map[SymbolID]string
	next   SymbolID
}

// NewInterner returns an empty interner. Id 0 is reserved as a sentinel and
// is never handed out by GetOrCreate.
func NewInterner() *Interner {
	return &Interner{
		toID:   make(map[string]SymbolID),
		toName: make(map[SymbolID]string),
		next:   1,
	}
}

// GetOrCreate returns the existing id for name, or assigns and returns a
// fresh one.
func (in *Interner) GetOrCreate(name string) SymbolID {
	id, _ := in.GetOrCreateChecked(name)
	return id
}

// GetOrCreateChecked is GetOrCreate plus a flag reporting whether this call
// assigned a fresh id. Callers that must durably record newly interned
// names (the Engine's write path) use the flag to avoid writing a redundant
// InternLabel record for a name that was already known.
func (in *Interner) GetOrCreateChecked(name string) (SymbolID, bool) {
	in.mu.RLock()
	if id, ok := in.toID[name]; ok {
		in.mu.RUnlock()
		return id, false
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.toID[name]; ok {
		return id, false
	}
	id := in.next
	in.next++
	in.toID[name] = id
	in.toName[id] = name
	return id, true
}

// Restore rebinds name to a specific id, used during WAL replay of
// InternLabel records to reproduce the exact id sequence a prior process
// assigned.
func (in *Interner) Restore(id SymbolID, name string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.toID[name] = id
	in.toName[id] = name
	if id >= in.next {
		in.next = id + 1
	}
}

// Snapshot captures the interner's current state. The returned value is
// immutable and safe to share across goroutines; later GetOrCreate calls on
// the live Interner never mutate an already-taken snapshot.
func (in *Interner) Snapshot() *InternerSnapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()
	toID := make(map[string]SymbolID, len(in.toID))
	toName := make(map[SymbolID]string, len(in.toName))
	for k, v := range in.toID {
		toID[k] = v
	}
	for k, v := range in.toName {
		toName[k] = v
	}
	return &InternerSnapshot{toID: toID, toName: toName}
}

// BulkIntern interns many names at once, deduplicating the input with an
// xxhash-keyed set before touching the write lock so a large import with
// repeated label names (the common case) pays for the lock only once per
// distinct name rather than once per occurrence.
func (in *Interner) BulkIntern(names []string) []SymbolID {
	seen := make(map[uint64]string, len(names))
	order := make([]string, 0, len(names))
	for _, n := range names {
		h := xxhash.Sum64String(n)
		if existing, ok := seen[h]; !ok || existing == n {
			if !ok {
				seen[h] = n
				order = append(order, n)
			}
		} else {
			// hash collision between distinct names: fall back to
			// including both, GetOrCreate below is still correct either way
			order = append(order, n)
		}
	}

	resolved := make(map[string]SymbolID, len(order))
	for _, n := range order {
		resolved[n] = in.GetOrCreate(n)
	}

	out := make([]SymbolID, len(names))
	for i, n := range names {
		out[i] = resolved[n]
	}
	return out
}
