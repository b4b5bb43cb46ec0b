package cypher

import (
	"iter"

	"github.com/nervus-db/nervusdb/pkg/propval"
	"github.com/nervus-db/nervusdb/pkg/storage"
)

// GraphSnapshot is the abstract read capability the executor operates
// against. *storage.Snapshot satisfies it structurally;
// the executor never imports storage internals beyond this surface, which
// keeps the query core portable to any future snapshot implementation
// (e.g. an in-memory test double) without a code change here.
type GraphSnapshot interface {
	Nodes() iter.Seq[storage.NodeID]
	Neighbors(src storage.NodeID, rel *storage.SymbolID) iter.Seq[storage.EdgeKey]
	IncomingNeighbors(dst storage.NodeID, rel *storage.SymbolID) iter.Seq[storage.EdgeKey]
	EdgeMultiplicity(key storage.EdgeKey) int
	IsLive(iid storage.NodeID) bool
	ResolveNodeLabels(iid storage.NodeID) ([]storage.SymbolID, bool)
	ResolveLabelID(name string) (storage.SymbolID, bool)
	ResolveLabelName(id storage.SymbolID) (string, bool)
	NodeProperty(iid storage.NodeID, key storage.SymbolID) (propval.Value, bool)
	NodeProperties(iid storage.NodeID) map[storage.SymbolID]propval.Value
	EdgeProperty(key storage.EdgeKey, propKey storage.SymbolID) (propval.Value, bool)
	EdgeProperties(key storage.EdgeKey) map[storage.SymbolID]propval.Value
	LookupIndex(label, field storage.SymbolID, value propval.Value) ([]storage.NodeID, bool)
}

var _ GraphSnapshot = (*storage.Snapshot)(nil)
