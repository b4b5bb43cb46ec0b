package cypher

import "github.com/nervus-db/nervusdb/pkg/storage"

// MergeOverlayState accumulates a write execution's pending mutations —
// created nodes/edges, deleted ids, and property/label changes — so that
// reads inside the same transaction observe (snapshot ∪ overlay ∖ deleted)
// without touching the MemTable until the whole plan has run to
// completion. On success the overlay is
// flushed to the storage WriteTx in insertion order; on any error it is
// discarded and no WAL record is ever appended.
type MergeOverlayState struct {
	createdNodes []overlayNode
	createdEdges []storage.EdgeKey
	deletedNodes map[storage.NodeID]struct{}
	deletedEdges map[storage.EdgeKey]struct{}

	nodeProps map[storage.NodeID]map[string]Value
	edgeProps map[storage.EdgeKey]map[string]Value
	addedLabels   map[storage.NodeID][]string
	removedLabels map[storage.NodeID][]string

	nextAnon storage.NodeID // synthetic ids for not-yet-committed anonymous nodes
}

type overlayNode struct {
	ID         storage.NodeID
	Labels     []string
	Properties map[string]Value
}

// anonLo is a high bit set on synthetic overlay-only node ids so they never
// collide with a real, already-assigned InternalNodeId while a write plan
// is still executing in-memory (before the Engine assigns the real id at
// flush time).
const anonLo = storage.NodeID(1) << 62

// NewMergeOverlayState returns an empty overlay.
func NewMergeOverlayState() *MergeOverlayState {
	return &MergeOverlayState{
		deletedNodes:  map[storage.NodeID]struct{}{},
		deletedEdges:  map[storage.EdgeKey]struct{}{},
		nodeProps:     map[storage.NodeID]map[string]Value{},
		edgeProps:     map[storage.EdgeKey]map[string]Value{},
		addedLabels:   map[storage.NodeID][]string{},
		removedLabels: map[storage.NodeID][]string{},
		nextAnon:      anonLo,
	}
}

// CreateNode allocates a synthetic anonymous id for a node the overlay
// will ask the Engine to materialize at flush time.
func (o *MergeOverlayState) CreateNode(labels []string, props map[string]Value) storage.NodeID {
	id := o.nextAnon
	o.nextAnon++
	o.createdNodes = append(o.createdNodes, overlayNode{ID: id, Labels: labels, Properties: props})
	return id
}

// CreateEdge records a pending edge creation.
func (o *MergeOverlayState) CreateEdge(k storage.EdgeKey) {
	o.createdEdges = append(o.createdEdges, k)
	delete(o.deletedEdges, k)
}

// DeleteNode records a pending node deletion.
func (o *MergeOverlayState) DeleteNode(id storage.NodeID) { o.deletedNodes[id] = struct{}{} }

// DeleteEdge records a pending edge deletion.
func (o *MergeOverlayState) DeleteEdge(k storage.EdgeKey) { o.deletedEdges[k] = struct{}{} }

// IsNodeDeleted reports whether id has been deleted within this overlay.
func (o *MergeOverlayState) IsNodeDeleted(id storage.NodeID) bool {
	_, ok := o.deletedNodes[id]
	return ok
}

// IsEdgeDeleted reports whether k has been deleted within this overlay.
func (o *MergeOverlayState) IsEdgeDeleted(k storage.EdgeKey) bool {
	_, ok := o.deletedEdges[k]
	return ok
}

// IsAnon reports whether id is a synthetic not-yet-committed overlay id.
func (o *MergeOverlayState) IsAnon(id storage.NodeID) bool { return id >= anonLo }

// SetNodeProperty records a pending node property write, visible to
// subsequent reads within the same transaction.
func (o *MergeOverlayState) SetNodeProperty(id storage.NodeID, key string, v Value) {
	m := o.nodeProps[id]
	if m == nil {
		m = map[string]Value{}
		o.nodeProps[id] = m
	}
	m[key] = v
}

// SetEdgeProperty records a pending edge property write.
func (o *MergeOverlayState) SetEdgeProperty(k storage.EdgeKey, key string, v Value) {
	m := o.edgeProps[k]
	if m == nil {
		m = map[string]Value{}
		o.edgeProps[k] = m
	}
	m[key] = v
}

// OverlayNodeProperty returns a pending property write for id, if any.
func (o *MergeOverlayState) OverlayNodeProperty(id storage.NodeID, key string) (Value, bool) {
	if o.nodeProps[id] == nil {
		return Value{}, false
	}
	v, ok := o.nodeProps[id][key]
	return v, ok
}

// AddLabel records a pending ADD LABEL.
func (o *MergeOverlayState) AddLabel(id storage.NodeID, label string) {
	o.addedLabels[id] = append(o.addedLabels[id], label)
}

// RemoveLabel records a pending REMOVE LABEL.
func (o *MergeOverlayState) RemoveLabel(id storage.NodeID, label string) {
	o.removedLabels[id] = append(o.removedLabels[id], label)
}

// AddedLabels returns labels added to id within this overlay.
func (o *MergeOverlayState) AddedLabels(id storage.NodeID) []string { return o.addedLabels[id] }

// RemovedLabels returns labels removed from id within this overlay.
func (o *MergeOverlayState) RemovedLabels(id storage.NodeID) []string { return o.removedLabels[id] }

// CreatedNodeRecord returns the overlay's own record for an anonymous
// created node id, used by the evaluator to materialize it without a
// snapshot round-trip.
func (o *MergeOverlayState) CreatedNodeRecord(id storage.NodeID) (overlayNode, bool) {
	for _, n := range o.createdNodes {
		if n.ID == id {
			return n, true
		}
	}
	return overlayNode{}, false
}
