package storage

import (
	"fmt"
	"iter"
	"sort"

	"github.com/nervus-db/nervusdb/pkg/propval"
)

// Snapshot is a coherent, immutable capability bundle: a base CSR graph,
// an ascending-by-txid sequence of L0 runs, and an interner snapshot. It is
// self-contained — it holds no back-reference to the Engine that produced
// it — so it can be shared freely between readers and the background
// compactor.
//
// All read operations are linearizable relative to the commit that
// produced the snapshot: every run present has txid > the
// base's txid, and the Engine never hands out a Snapshot whose runs are not
// a committed prefix.
type Snapshot struct {
	base   *BaseGraph
	runs   []*L0Run // ascending by txid
	labels *InternerSnapshot
	cache  propertyCache
}

// propertyCache is the narrow interface Snapshot needs from an optional
// read-side cache (see pkg/nervuscache). A nil cache is always a valid,
// inert implementation.
type propertyCache interface {
	Get(key string) (propval.Value, bool)
	Set(key string, val propval.Value)
}

// newSnapshot assembles a Snapshot. Used only by the Engine.
func newSnapshot(base *BaseGraph, runs []*L0Run, labels *InternerSnapshot, cache propertyCache) *Snapshot {
	return &Snapshot{base: base, runs: runs, labels: labels, cache: cache}
}

// exists reports whether iid was ever created (in the base or any run) and
// whether it has since been tombstoned. Node ids are never reused, so a
// node tombstoned in any layer is tombstoned for the life of the snapshot
// regardless of layer order.
func (s *Snapshot) exists(iid NodeID) (created bool, tombstoned bool) {
	if _, ok := s.base.Nodes[iid]; ok {
		created = true
	}
	for _, r := range s.runs {
		if _, ok := r.CreatedNodes[iid]; ok {
			created = true
		}
		if _, ok := r.TombstonedNodes[iid]; ok {
			tombstoned = true
		}
	}
	return created, tombstoned
}

// IsLive reports whether iid denotes a currently visible node.
func (s *Snapshot) IsLive(iid NodeID) bool {
	created, tombstoned := s.exists(iid)
	return created && !tombstoned
}

// Nodes enumerates every live node id in ascending order.
func (s *Snapshot) Nodes() iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		seen := make(map[NodeID]struct{}, len(s.base.Nodes))
		ids := make([]NodeID, 0, len(s.base.Nodes))
		for id := range s.base.Nodes {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		for _, r := range s.runs {
			for id := range r.CreatedNodes {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if !s.IsLive(id) {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

// accumulateOut computes the full multiset of outgoing EdgeKeys from src,
// applying each layer's tombstones and creates in order. This is the
// mechanism both Neighbors and edge multiplicity counting are built on.
func (s *Snapshot) accumulateOut(src NodeID) []EdgeKey {
	base := s.base.Out.Neighbors(src, nil)
	acc := make([]EdgeKey, 0, len(base))
	for _, t := range base {
		acc = append(acc, EdgeKey{Src: src, Rel: t.Rel, Dst: t.Dst})
	}

	for _, r := range s.runs {
		if len(r.TombstonedEdges) > 0 {
			kept := acc[:0]
			for _, k := range acc {
				if _, dead := r.TombstonedEdges[k]; !dead {
					kept = append(kept, k)
				}
			}
			acc = kept
		}
		acc = append(acc, r.EdgesBySrc[src]...)
	}
	return acc
}

// accumulateIn computes the full multiset of incoming EdgeKeys to dst, by
// symmetry with accumulateOut. The base uses the reverse CSR segment (built
// by the compactor) for an O(degree) lookup instead of a full scan; L0 runs
// are small enough that a linear scan of each run's EdgesBySrc is
// acceptable.
func (s *Snapshot) accumulateIn(dst NodeID) []EdgeKey {
	base := s.base.In.Neighbors(dst, nil)
	acc := make([]EdgeKey, 0, len(base))
	for _, t := range base {
		// In the reverse segment, t.Dst holds the original edge's source.
		acc = append(acc, EdgeKey{Src: t.Dst, Rel: t.Rel, Dst: dst})
	}

	for _, r := range s.runs {
		if len(r.TombstonedEdges) > 0 {
			kept := acc[:0]
			for _, k := range acc {
				if _, dead := r.TombstonedEdges[k]; !dead {
					kept = append(kept, k)
				}
			}
			acc = kept
		}
		for src, keys := range r.EdgesBySrc {
			for _, k := range keys {
				if k.Dst == dst {
					acc = append(acc, EdgeKey{Src: src, Rel: k.Rel, Dst: dst})
				}
			}
		}
	}
	return acc
}

// Neighbors returns every outgoing EdgeKey from src, optionally filtered by
// relationship type. Ordering is stable within this call but is not
// guaranteed across calls on different snapshots.
func (s *Snapshot) Neighbors(src NodeID, rel *SymbolID) iter.Seq[EdgeKey] {
	return func(yield func(EdgeKey) bool) {
		if !s.IsLive(src) {
			return
		}
		for _, k := range s.accumulateOut(src) {
			if rel != nil && k.Rel != *rel {
				continue
			}
			if !yield(k) {
				return
			}
		}
	}
}

// IncomingNeighbors returns every incoming EdgeKey to dst, optionally
// filtered by relationship type.
func (s *Snapshot) IncomingNeighbors(dst NodeID, rel *SymbolID) iter.Seq[EdgeKey] {
	return func(yield func(EdgeKey) bool) {
		if !s.IsLive(dst) {
			return
		}
		for _, k := range s.accumulateIn(dst) {
			if rel != nil && k.Rel != *rel {
				continue
			}
			if !yield(k) {
				return
			}
		}
	}
}

// EdgeMultiplicity returns the number of times key currently occurs as an
// outgoing edge from key.Src: an edge inserted k times is observed k
// times by Neighbors.
func (s *Snapshot) EdgeMultiplicity(key EdgeKey) int {
	count := 0
	for _, k := range s.accumulateOut(key.Src) {
		if k == key {
			count++
		}
	}
	return count
}

// ResolveNodeLabels returns the set of labels currently on iid.
func (s *Snapshot) ResolveNodeLabels(iid NodeID) ([]SymbolID, bool) {
	if !s.IsLive(iid) {
		return nil, false
	}
	labels := append([]SymbolID(nil), s.base.NodeLabels[iid]...)
	for _, r := range s.runs {
		if rec, ok := r.CreatedNodes[iid]; ok {
			labels = append([]SymbolID(nil), rec.Labels...)
		}
		if removed := r.RemovedLabels[iid]; len(removed) > 0 {
			labels = removeLabels(labels, removed)
		}
		if added := r.AddedLabels[iid]; len(added) > 0 {
			labels = addLabels(labels, added)
		}
	}
	return labels, true
}

func removeLabels(labels []SymbolID, remove []SymbolID) []SymbolID {
	dead := make(map[SymbolID]struct{}, len(remove))
	for _, l := range remove {
		dead[l] = struct{}{}
	}
	out := labels[:0]
	for _, l := range labels {
		if _, ok := dead[l]; !ok {
			out = append(out, l)
		}
	}
	return out
}

func addLabels(labels []SymbolID, add []SymbolID) []SymbolID {
	have := make(map[SymbolID]struct{}, len(labels))
	for _, l := range labels {
		have[l] = struct{}{}
	}
	for _, l := range add {
		if _, ok := have[l]; !ok {
			labels = append(labels, l)
			have[l] = struct{}{}
		}
	}
	return labels
}

// ResolveLabelID resolves a label/relationship-type/property-key name to
// its interned id.
func (s *Snapshot) ResolveLabelID(name string) (SymbolID, bool) {
	return s.labels.ID(name)
}

// ResolveLabelName resolves an interned id back to its name.
func (s *Snapshot) ResolveLabelName(id SymbolID) (string, bool) {
	return s.labels.Name(id)
}

// NodeProperty returns the current value of key on iid. Single-key lookups
// go through the optional property cache (see pkg/nervuscache). The Engine
// invalidates the cache on every commit and compaction (rebuildSnapshot).
func (s *Snapshot) NodeProperty(iid NodeID, key SymbolID) (propval.Value, bool) {
	if !s.IsLive(iid) {
		return propval.Value{}, false
	}
	if s.cache != nil {
		ck := s.nodePropCacheKey(iid, key)
		if v, ok := s.cache.Get(ck); ok {
			return v, true
		}
		props := s.mergedNodeProperties(iid)
		v, ok := props[key]
		if ok {
			s.cache.Set(ck, v)
		}
		return v, ok
	}
	props := s.mergedNodeProperties(iid)
	v, ok := props[key]
	return v, ok
}

// Cache keys are namespaced by the snapshot's full (base, top) horizon, not
// just the base: two snapshots that share a base but differ in L0 runs must
// never serve each other's entries, even in the window between a commit and
// the engine-triggered invalidation sweep.
func (s *Snapshot) nodePropCacheKey(iid NodeID, key SymbolID) string {
	base, top := s.TxHorizon()
	return fmt.Sprintf("n:%d:%d:%d:%d", base, top, iid, key)
}

func (s *Snapshot) edgePropCacheKey(k EdgeKey, propKey SymbolID) string {
	base, top := s.TxHorizon()
	return fmt.Sprintf("e:%d:%d:%d:%d:%d:%d", base, top, k.Src, k.Rel, k.Dst, propKey)
}

// NodeProperties returns every property currently set on iid, keyed by
// interned property-key id.
func (s *Snapshot) NodeProperties(iid NodeID) map[SymbolID]propval.Value {
	if !s.IsLive(iid) {
		return nil
	}
	return s.mergedNodeProperties(iid)
}

func (s *Snapshot) mergedNodeProperties(iid NodeID) map[SymbolID]propval.Value {
	out := make(map[SymbolID]propval.Value, len(s.base.NodeProps[iid]))
	for k, v := range s.base.NodeProps[iid] {
		out[k] = v
	}
	for _, r := range s.runs {
		if rec, ok := r.CreatedNodes[iid]; ok {
			for k, v := range rec.Properties {
				out[k] = v
			}
		}
		for k, v := range r.NodeProps[iid] {
			out[k] = v
		}
	}
	return out
}

// EdgeProperty returns the current value of propKey on key.
func (s *Snapshot) EdgeProperty(key EdgeKey, propKey SymbolID) (propval.Value, bool) {
	if s.cache != nil {
		ck := s.edgePropCacheKey(key, propKey)
		if v, ok := s.cache.Get(ck); ok {
			return v, true
		}
		props := s.mergedEdgeProperties(key)
		v, ok := props[propKey]
		if ok {
			s.cache.Set(ck, v)
		}
		return v, ok
	}
	props := s.mergedEdgeProperties(key)
	v, ok := props[propKey]
	return v, ok
}

// EdgeProperties returns every property currently set on key.
func (s *Snapshot) EdgeProperties(key EdgeKey) map[SymbolID]propval.Value {
	return s.mergedEdgeProperties(key)
}

func (s *Snapshot) mergedEdgeProperties(key EdgeKey) map[SymbolID]propval.Value {
	out := make(map[SymbolID]propval.Value, len(s.base.EdgeProps[key]))
	for k, v := range s.base.EdgeProps[key] {
		out[k] = v
	}
	for _, r := range s.runs {
		for k, v := range r.EdgeProps[key] {
			out[k] = v
		}
	}
	return out
}

// LookupIndex reports whether a secondary index exists for (label, field)
// and, if so, the matching node ids sorted ascending. This implementation
// carries no secondary index, so it always returns (nil, false); callers
// fall back to a label scan.
func (s *Snapshot) LookupIndex(label SymbolID, field SymbolID, value propval.Value) ([]NodeID, bool) {
	return nil, false
}

// TxHorizon reports the base's txid (the point the compacted foundation
// reflects) together with the highest txid among the snapshot's L0 runs, or
// the base's txid if there are none.
func (s *Snapshot) TxHorizon() (base uint64, top uint64) {
	base = uint64(s.base.TxID)
	top = base
	for _, r := range s.runs {
		if r.TxID > top {
			top = r.TxID
		}
	}
	return base, top
}
