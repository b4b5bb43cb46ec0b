package storage

import "github.com/nervus-db/nervusdb/pkg/propval"

// L0Run is an immutable frozen memtable contributing one layer to the
// snapshot lattice. It is shared by reference across every Snapshot and the
// Compactor, and is never mutated after FreezeIntoRun publishes it.
type L0Run struct {
	TxID            uint64
	EdgesBySrc      map[NodeID][]EdgeKey
	CreatedNodes    map[NodeID]*NodeRecord
	TombstonedNodes map[NodeID]struct{}
	TombstonedEdges map[EdgeKey]struct{}
	NodeProps       map[NodeID]map[SymbolID]propval.Value
	EdgeProps       map[EdgeKey]map[SymbolID]propval.Value
	AddedLabels     map[NodeID][]SymbolID
	RemovedLabels   map[NodeID][]SymbolID
}
