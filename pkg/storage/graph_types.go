package storage

import "github.com/nervus-db/nervusdb/pkg/propval"

// EdgeKey is the triple (src, rel, dst) that is the sole identity of an
// edge. Duplicate EdgeKeys are permitted across and within layers; the
// count of matching occurrences is the edge's multiplicity.
type EdgeKey struct {
	Src NodeID
	Rel SymbolID
	Dst NodeID
}

// Less orders EdgeKeys by (Rel, Dst) — the order CSR segments and frozen
// L0 runs sort same-source edges by.
func (k EdgeKey) Less(o EdgeKey) bool {
	if k.Rel != o.Rel {
		return k.Rel < o.Rel
	}
	return k.Dst < o.Dst
}

// NodeRecord is the creation-time state of a node: its labels and initial
// properties, plus the external id it was created with, if any.
type NodeRecord struct {
	ExtID      uint64
	HasExt     bool
	Labels     []SymbolID
	Properties map[SymbolID]propval.Value
}

// cloneNodeRecord deep-copies a NodeRecord so that frozen layers never share
// mutable backing storage with a live MemTable.
func cloneNodeRecord(r *NodeRecord) *NodeRecord {
	out := &NodeRecord{ExtID: r.ExtID, HasExt: r.HasExt}
	out.Labels = append([]SymbolID(nil), r.Labels...)
	if r.Properties != nil {
		out.Properties = make(map[SymbolID]propval.Value, len(r.Properties))
		for k, v := range r.Properties {
			out.Properties[k] = v
		}
	}
	return out
}
