package cypher

import "github.com/nervus-db/nervusdb/pkg/storage"

// Row binds alias names to Values for one in-flight tuple flowing through
// the operator tree. Column order for output purposes comes from the
// enclosing RETURN/WITH projection list, not from Row itself.
type Row map[string]Value

// clone returns a shallow copy of r, safe for a child operator to extend
// with new bindings without mutating the parent's row.
func (r Row) clone() Row {
	out := make(Row, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Env is the per-execution environment threaded through every operator:
// the snapshot being read, query parameters, a shared write overlay (nil
// for read-only plans), the path-alias allocator, and a cooperative
// cancellation flag.
type Env struct {
	Snapshot     GraphSnapshot
	Params       map[string]any
	Overlay      *MergeOverlayState
	PathAliases  *pathAliasAllocator
	ShouldCancel func() bool
	Stats        *QueryStats

	// GetOrCreateLabel interns a label/relationship-type/property-key name
	// against the live WriteTx backing this execution. It is nil for
	// read-only plans, where CREATE/MERGE/SET cannot appear and every name
	// a pattern references must already be resolvable via
	// Snapshot.ResolveLabelID.
	GetOrCreateLabel func(name string) (storage.SymbolID, error)
}

// QueryStats accumulates write-plan side effects, returned instead of rows
// for write-only plan nodes.
type QueryStats struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	LabelsAdded          int
	LabelsRemoved        int
}

func (e *Env) canceled() bool {
	return e.ShouldCancel != nil && e.ShouldCancel()
}
