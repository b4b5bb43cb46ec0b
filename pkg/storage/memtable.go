package storage

import (
	"sort"
	"sync"

	"github.com/nervus-db/nervusdb/pkg/propval"
)

// MemTable is the in-memory buffer of pending mutations for one write
// transaction: new edges (appended per source, preserving duplicate
// EdgeKeys so multiplicity stays observable), node and edge
// tombstones, new node records, and property/label deltas.
//
// Creating an edge removes any matching edge tombstone (resurrection wins
// within a transaction). Tombstoning an edge removes every occurrence of
// that key from `out` for its source (collapsing the entry if it becomes
// empty) and records the key in tombstonedEdges.
type MemTable struct {
	mu sync.Mutex

	out             map[NodeID][]EdgeKey
	createdNodes    map[NodeID]*NodeRecord
	tombstonedNodes map[NodeID]struct{}
	tombstonedEdges map[EdgeKey]struct{}
	nodeProps       map[NodeID]map[SymbolID]propval.Value
	edgeProps       map[EdgeKey]map[SymbolID]propval.Value
	addedLabels     map[NodeID][]SymbolID
	removedLabels   map[NodeID][]SymbolID
}

// NewMemTable returns an empty write buffer.
func NewMemTable() *MemTable {
	return &MemTable{
		out:             make(map[NodeID][]EdgeKey),
		createdNodes:    make(map[NodeID]*NodeRecord),
		tombstonedNodes: make(map[NodeID]struct{}),
		tombstonedEdges: make(map[EdgeKey]struct{}),
		nodeProps:       make(map[NodeID]map[SymbolID]propval.Value),
		edgeProps:       make(map[EdgeKey]map[SymbolID]propval.Value),
		addedLabels:     make(map[NodeID][]SymbolID),
		removedLabels:   make(map[NodeID][]SymbolID),
	}
}

// CreateNode records a new node with its initial labels and properties.
func (m *MemTable) CreateNode(id NodeID, extID uint64, hasExt bool, labels []SymbolID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdNodes[id] = &NodeRecord{
		ExtID:      extID,
		HasExt:     hasExt,
		Labels:     append([]SymbolID(nil), labels...),
		Properties: make(map[SymbolID]propval.Value),
	}
}

// CreateEdge appends a new occurrence of key to its source's edge list. If
// key was tombstoned earlier in this same transaction, the tombstone is
// removed first (resurrection wins within a transaction).
func (m *MemTable) CreateEdge(key EdgeKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tombstonedEdges, key)
	m.out[key.Src] = append(m.out[key.Src], key)
}

// TombstoneNode marks id as deleted in this transaction.
func (m *MemTable) TombstoneNode(id NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tombstonedNodes[id] = struct{}{}
	delete(m.createdNodes, id)
}

// TombstoneEdge removes every occurrence of key from its source's pending
// edge list and records the tombstone.
func (m *MemTable) TombstoneEdge(key EdgeKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if list, ok := m.out[key.Src]; ok {
		kept := list[:0]
		for _, k := range list {
			if k != key {
				kept = append(kept, k)
			}
		}
		if len(kept) == 0 {
			delete(m.out, key.Src)
		} else {
			m.out[key.Src] = kept
		}
	}
	m.tombstonedEdges[key] = struct{}{}
}

// SetNodeProperty stages a property write that shadows any earlier value
// for the same key once this transaction is visible.
func (m *MemTable) SetNodeProperty(id NodeID, key SymbolID, val propval.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodeProps[id] == nil {
		m.nodeProps[id] = make(map[SymbolID]propval.Value)
	}
	m.nodeProps[id][key] = val
	if rec, ok := m.createdNodes[id]; ok {
		rec.Properties[key] = val
	}
}

// SetEdgeProperty stages a property write on an edge.
func (m *MemTable) SetEdgeProperty(key EdgeKey, propKey SymbolID, val propval.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edgeProps[key] == nil {
		m.edgeProps[key] = make(map[SymbolID]propval.Value)
	}
	m.edgeProps[key][propKey] = val
}

// AddLabel stages adding a label to an existing node.
func (m *MemTable) AddLabel(id NodeID, label SymbolID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.createdNodes[id]; ok {
		for _, l := range rec.Labels {
			if l == label {
				return
			}
		}
		rec.Labels = append(rec.Labels, label)
		return
	}
	m.addedLabels[id] = append(m.addedLabels[id], label)
}

// RemoveLabel stages removing a label from a node.
func (m *MemTable) RemoveLabel(id NodeID, label SymbolID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.createdNodes[id]; ok {
		out := rec.Labels[:0]
		for _, l := range rec.Labels {
			if l != label {
				out = append(out, l)
			}
		}
		rec.Labels = out
		return
	}
	m.removedLabels[id] = append(m.removedLabels[id], label)
}

// IsEmpty reports whether the transaction made no mutations at all.
func (m *MemTable) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.out) == 0 && len(m.createdNodes) == 0 && len(m.tombstonedNodes) == 0 &&
		len(m.tombstonedEdges) == 0 && len(m.nodeProps) == 0 && len(m.edgeProps) == 0 &&
		len(m.addedLabels) == 0 && len(m.removedLabels) == 0
}

// FreezeIntoRun converts the buffer into an immutable L0Run stamped with
// txid. The per-source edge lists are sorted by (Rel, Dst) for stable,
// binary-searchable lookups, using a stable sort so duplicate EdgeKeys
// (multiplicity) stay contiguous and in original relative order.
func (m *MemTable) FreezeIntoRun(txid uint64) *L0Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := &L0Run{
		TxID:            txid,
		EdgesBySrc:      make(map[NodeID][]EdgeKey, len(m.out)),
		CreatedNodes:    make(map[NodeID]*NodeRecord, len(m.createdNodes)),
		TombstonedNodes: make(map[NodeID]struct{}, len(m.tombstonedNodes)),
		TombstonedEdges: make(map[EdgeKey]struct{}, len(m.tombstonedEdges)),
		NodeProps:       make(map[NodeID]map[SymbolID]propval.Value, len(m.nodeProps)),
		EdgeProps:       make(map[EdgeKey]map[SymbolID]propval.Value, len(m.edgeProps)),
		AddedLabels:     make(map[NodeID][]SymbolID, len(m.addedLabels)),
		RemovedLabels:   make(map[NodeID][]SymbolID, len(m.removedLabels)),
	}

	for src, keys := range m.out {
		cp := append([]EdgeKey(nil), keys...)
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].Less(cp[j]) })
		run.EdgesBySrc[src] = cp
	}
	for id, rec := range m.createdNodes {
		run.CreatedNodes[id] = cloneNodeRecord(rec)
	}
	for id := range m.tombstonedNodes {
		run.TombstonedNodes[id] = struct{}{}
	}
	for key := range m.tombstonedEdges {
		run.TombstonedEdges[key] = struct{}{}
	}
	for id, props := range m.nodeProps {
		cp := make(map[SymbolID]propval.Value, len(props))
		for k, v := range props {
			cp[k] = v
		}
		run.NodeProps[id] = cp
	}
	for key, props := range m.edgeProps {
		cp := make(map[SymbolID]propval.Value, len(props))
		for k, v := range props {
			cp[k] = v
		}
		run.EdgeProps[key] = cp
	}
	for id, labels := range m.addedLabels {
		run.AddedLabels[id] = append([]SymbolID(nil), labels...)
	}
	for id, labels := range m.removedLabels {
		run.RemovedLabels[id] = append([]SymbolID(nil), labels...)
	}

	return run
}
