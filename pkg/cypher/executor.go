package cypher

import "github.com/nervus-db/nervusdb/pkg/storage"

// QueryResult is the outcome of running a PreparedQuery to completion.
// Explain is set (and Rows/Stats left empty) for an EXPLAIN query; Stats is
// set only for plans containing a write clause.
type QueryResult struct {
	Columns []string
	Rows    []Row
	Stats   *QueryStats
	Explain string
}

// Run executes pq once against engine. Read-only queries run against a
// single BeginRead() snapshot. Queries with a write clause open a
// BeginWrite() transaction, execute entirely against (snapshot ∪ overlay)
// without touching the transaction, then either flush the overlay and
// Commit or Rollback and propagate the first error untouched — the whole
// plan succeeds or none of it is observable.
func (pq *PreparedQuery) Run(engine *storage.Engine, params map[string]any, shouldCancel func() bool) (*QueryResult, error) {
	plan, err := compileClauses(pq.plan.Query.Clauses, &valuesOp{rows: []Row{{}}}, pq.plan.MergeQueue)
	if err != nil {
		return nil, err
	}

	if pq.explain {
		return &QueryResult{Explain: renderPlan(plan)}, nil
	}

	if !pq.isWrite {
		snap := engine.BeginRead()
		env := &Env{
			Snapshot:     snap,
			Params:       params,
			PathAliases:  newPathAliasAllocator(),
			ShouldCancel: shouldCancel,
			Stats:        &QueryStats{},
		}
		rows, err := drainRows(plan, env)
		if err != nil {
			return nil, err
		}
		if !queryHasReturn(pq.query) {
			rows = nil
		}
		return &QueryResult{Rows: rows, Columns: columnsOf(pq.query)}, nil
	}

	tx, err := engine.BeginWrite()
	if err != nil {
		return nil, err
	}
	result, err := pq.runWrite(plan, engine, tx, params, shouldCancel)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return result, nil
}

func (pq *PreparedQuery) runWrite(plan Operator, engine *storage.Engine, tx *storage.WriteTx, params map[string]any, shouldCancel func() bool) (*QueryResult, error) {
	overlay := NewMergeOverlayState()
	env := &Env{
		Snapshot:         engine.BeginRead(),
		Params:           params,
		Overlay:          overlay,
		PathAliases:      newPathAliasAllocator(),
		ShouldCancel:     shouldCancel,
		Stats:            &QueryStats{},
		GetOrCreateLabel: tx.GetOrCreateLabel,
	}
	rows, err := drainRows(plan, env)
	if err != nil {
		return nil, err
	}
	if !queryHasReturn(pq.query) {
		rows = nil
	}

	remap, err := flushOverlay(overlay, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	remapped := make([]Row, len(rows))
	for i, r := range rows {
		remapped[i] = remapRow(r, remap)
	}
	return &QueryResult{Rows: remapped, Stats: env.Stats, Columns: columnsOf(pq.query)}, nil
}

func drainRows(op Operator, env *Env) ([]Row, error) {
	if err := op.Open(env); err != nil {
		return nil, err
	}
	defer op.Close()
	var rows []Row
	for {
		if env.canceled() {
			return rows, nil
		}
		row, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// flushOverlay replays a completed write plan's accumulated mutations onto
// the live WriteTx, in the order they were recorded, returning the mapping
// from each synthetic anonymous node id to
// the real NodeID the Engine assigned it.
func flushOverlay(overlay *MergeOverlayState, tx *storage.WriteTx) (map[storage.NodeID]storage.NodeID, error) {
	remap := make(map[storage.NodeID]storage.NodeID, len(overlay.createdNodes))

	for _, n := range overlay.createdNodes {
		labelIDs := make([]storage.SymbolID, 0, len(n.Labels))
		for _, name := range n.Labels {
			id, err := tx.GetOrCreateLabel(name)
			if err != nil {
				return nil, err
			}
			labelIDs = append(labelIDs, id)
		}
		real, err := tx.CreateNode(0, false, labelIDs...)
		if err != nil {
			return nil, err
		}
		remap[n.ID] = real
		for key, v := range n.Properties {
			if err := setProp(tx, real, key, v); err != nil {
				return nil, err
			}
		}
	}

	remapID := func(id storage.NodeID) storage.NodeID {
		if real, ok := remap[id]; ok {
			return real
		}
		return id
	}
	remapKey := func(k storage.EdgeKey) storage.EdgeKey {
		return storage.EdgeKey{Src: remapID(k.Src), Rel: k.Rel, Dst: remapID(k.Dst)}
	}

	for _, k := range overlay.createdEdges {
		rk := remapKey(k)
		if err := tx.CreateEdge(rk.Src, rk.Rel, rk.Dst); err != nil {
			return nil, err
		}
	}
	for id, props := range overlay.nodeProps {
		real := remapID(id)
		for key, v := range props {
			if err := setProp(tx, real, key, v); err != nil {
				return nil, err
			}
		}
	}
	for k, props := range overlay.edgeProps {
		rk := remapKey(k)
		for key, v := range props {
			pv, ok := valueToPropval(v)
			if !ok {
				continue
			}
			keyID, err := tx.GetOrCreateLabel(key)
			if err != nil {
				return nil, err
			}
			if err := tx.SetEdgeProperty(rk.Src, rk.Rel, rk.Dst, keyID, pv); err != nil {
				return nil, err
			}
		}
	}
	for id, labels := range overlay.addedLabels {
		real := remapID(id)
		for _, name := range labels {
			labelID, err := tx.GetOrCreateLabel(name)
			if err != nil {
				return nil, err
			}
			if err := tx.AddLabel(real, labelID); err != nil {
				return nil, err
			}
		}
	}
	for id, labels := range overlay.removedLabels {
		real := remapID(id)
		for _, name := range labels {
			labelID, err := tx.GetOrCreateLabel(name)
			if err != nil {
				return nil, err
			}
			if err := tx.RemoveLabel(real, labelID); err != nil {
				return nil, err
			}
		}
	}
	for id := range overlay.deletedNodes {
		if err := tx.TombstoneNode(remapID(id)); err != nil {
			return nil, err
		}
	}
	for k := range overlay.deletedEdges {
		rk := remapKey(k)
		if err := tx.TombstoneEdge(rk.Src, rk.Rel, rk.Dst); err != nil {
			return nil, err
		}
	}
	return remap, nil
}

func setProp(tx *storage.WriteTx, id storage.NodeID, key string, v Value) error {
	pv, ok := valueToPropval(v)
	if !ok {
		return nil
	}
	keyID, err := tx.GetOrCreateLabel(key)
	if err != nil {
		return err
	}
	return tx.SetNodeProperty(id, keyID, pv)
}

// remapRow rewrites every node/edge id a completed write plan's overlay
// assigned a synthetic anonymous id to its real, post-commit id, so rows
// returned to the caller (e.g. "CREATE (n) RETURN n") are valid against the
// snapshot the caller will observe next.
func remapRow(row Row, remap map[storage.NodeID]storage.NodeID) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = remapValue(v, remap)
	}
	return out
}

func remapValue(v Value, remap map[storage.NodeID]storage.NodeID) Value {
	remapID := func(id storage.NodeID) storage.NodeID {
		if real, ok := remap[id]; ok {
			return real
		}
		return id
	}
	switch v.Kind {
	case VKNodeID:
		return NodeIDValue(remapID(v.NodeID))
	case VKNode:
		nv := *v.Node
		nv.ID = remapID(nv.ID)
		return NodeValue(&nv)
	case VKEdgeKey:
		k := v.EdgeKey
		k.Src, k.Dst = remapID(k.Src), remapID(k.Dst)
		return EdgeKeyValue(k)
	case VKEdge:
		ev := *v.Edge
		ev.Key.Src, ev.Key.Dst = remapID(ev.Key.Src), remapID(ev.Key.Dst)
		return EdgeValue(&ev)
	case VKList:
		out := make([]Value, len(v.List))
		for i, item := range v.List {
			out[i] = remapValue(item, remap)
		}
		return ListValue(out)
	case VKMap:
		out := make(map[string]Value, len(v.Map))
		for k, mv := range v.Map {
			out[k] = remapValue(mv, remap)
		}
		return MapValue(out)
	default:
		return v
	}
}
