package storage

import "github.com/nervus-db/nervusdb/pkg/propval"

// BaseGraph is the compacted foundation of the snapshot lattice: the
// immutable state as of some txid B. It pairs a forward CSR
// segment with a reverse one so incoming_neighbors is an O(degree) lookup
// rather than a full scan.
type BaseGraph struct {
	TxID NodeIDHorizon

	Out *CSRSegment
	In  *CSRSegment

	Nodes      map[NodeID]struct{}
	NodeLabels map[NodeID][]SymbolID
	NodeProps  map[NodeID]map[SymbolID]propval.Value
	EdgeProps  map[EdgeKey]map[SymbolID]propval.Value
}

// NodeIDHorizon names the txid a BaseGraph reflects, kept distinct from
// NodeID even though both are uint64 so call sites can't mix them up.
type NodeIDHorizon uint64

// EmptyBaseGraph returns the base for a brand-new database: no nodes, no
// edges, txid 0.
func EmptyBaseGraph() *BaseGraph {
	return &BaseGraph{
		Out:        EmptyCSRSegment(),
		In:         EmptyCSRSegment(),
		Nodes:      make(map[NodeID]struct{}),
		NodeLabels: make(map[NodeID][]SymbolID),
		NodeProps:  make(map[NodeID]map[SymbolID]propval.Value),
		EdgeProps:  make(map[EdgeKey]map[SymbolID]propval.Value),
	}
}
