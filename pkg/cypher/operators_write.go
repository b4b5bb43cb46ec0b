package cypher

import "github.com/nervus-db/nervusdb/pkg/storage"

// evalPropMap evaluates an inline property-map literal (node/relationship
// pattern properties) against the current row.
func evalPropMap(props map[string]Expression, row Row, env *Env) (map[string]Value, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]Value, len(props))
	for k, expr := range props {
		v, err := Eval(expr, row, env)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// createPattern materializes every node/relationship in pattern that is not
// already bound in row, recording the creates against env.Overlay. Nodes/relationships whose alias is already present
// in row (because an earlier clause bound it) are reused as-is, which is
// what lets "MATCH (a) CREATE (a)-[:R]->(b)" attach to an existing node.
func createPattern(pattern *PatternPath, row Row, env *Env) (Row, error) {
	out := row.clone()
	ids := make([]storage.NodeID, len(pattern.Nodes))
	for i, n := range pattern.Nodes {
		alias := nodeAlias(pattern, i)
		if v, has := out[alias]; has {
			if id, ok := v.AsNodeID(); ok {
				ids[i] = id
				continue
			}
		}
		props, err := evalPropMap(n.Properties, out, env)
		if err != nil {
			return nil, err
		}
		id := env.Overlay.CreateNode(append([]string(nil), n.Labels...), props)
		out[alias] = NodeIDValue(id)
		ids[i] = id
		if env.Stats != nil {
			env.Stats.NodesCreated++
		}
	}
	for i, rel := range pattern.Rels {
		if len(rel.Types) == 0 {
			return nil, newPlanError("CREATE requires an explicit relationship type")
		}
		srcID, dstID := ids[i], ids[i+1]
		if rel.Direction == DirIn {
			srcID, dstID = dstID, srcID
		}
		relID, err := resolveOrCreateType(env, rel.Types[0])
		if err != nil {
			return nil, err
		}
		key := storage.EdgeKey{Src: srcID, Rel: relID, Dst: dstID}
		props, err := evalPropMap(rel.Properties, out, env)
		if err != nil {
			return nil, err
		}
		env.Overlay.CreateEdge(key)
		for k, v := range props {
			env.Overlay.SetEdgeProperty(key, k, v)
		}
		if rel.Variable != "" {
			out[rel.Variable] = EdgeKeyValue(key)
		}
		if env.Stats != nil {
			env.Stats.RelationshipsCreated++
		}
	}
	return out, nil
}

func resolveOrCreateType(env *Env, name string) (storage.SymbolID, error) {
	if env.GetOrCreateLabel != nil {
		return env.GetOrCreateLabel(name)
	}
	id, ok := env.Snapshot.ResolveLabelID(name)
	if !ok {
		return 0, newPlanError("unknown relationship type " + name)
	}
	return id, nil
}

// createOp implements the CREATE clause: every input row produces exactly
// one output row with the pattern's new bindings attached.
type createOp struct {
	input   Operator
	pattern *PatternPath
	env     *Env
}

func (o *createOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *createOp) Close()              { o.input.Close() }
func (o *createOp) Describe() (string, []Operator) { return "Create", []Operator{o.input} }

func (o *createOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	out, err := createPattern(o.pattern, row, o.env)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// applySetItems applies a sequence of SET assignments to row, in order, as
// MERGE's ON CREATE/ON MATCH clauses and the SET clause itself both require.
func applySetItems(row Row, items []SetItem, env *Env) (Row, error) {
	out := row
	for _, item := range items {
		var err error
		out, err = applySetItem(out, item, env)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applySetItem(row Row, item SetItem, env *Env) (Row, error) {
	target, has := row[item.Variable]
	if !has {
		return row, nil
	}
	switch {
	case item.Label != "":
		id, ok := target.AsNodeID()
		if !ok {
			return row, nil
		}
		env.Overlay.AddLabel(id, item.Label)
		if env.Stats != nil {
			env.Stats.LabelsAdded++
		}
		return row, nil

	case item.Property != "":
		val, err := Eval(item.Expr, row, env)
		if err != nil {
			return nil, err
		}
		if id, ok := target.AsNodeID(); ok {
			env.Overlay.SetNodeProperty(id, item.Property, val)
		} else if k, ok := target.AsEdgeKey(); ok {
			env.Overlay.SetEdgeProperty(k, item.Property, val)
		} else {
			return row, nil
		}
		if env.Stats != nil {
			env.Stats.PropertiesSet++
		}
		return row, nil

	default: // whole-entity "var = {...}" or "var += {...}"
		val, err := Eval(item.Expr, row, env)
		if err != nil {
			return nil, err
		}
		if val.Kind != VKMap {
			return row, nil
		}
		id, isNode := target.AsNodeID()
		k, isEdge := target.AsEdgeKey()
		if !isNode && !isEdge {
			return row, nil
		}
		if !item.IsMapMerge && isNode {
			// Replace semantics: properties absent from the new map are
			// cleared. Clearing is modeled as a Null overlay write rather
			// than a true delete — NodeProperty/NodeProperties both treat
			// a Null value as "no value" for every query-facing purpose.
			_, existing := resolveNodeLabelsAndProps(env, id)
			for pk := range existing {
				if _, still := val.Map[pk]; !still {
					env.Overlay.SetNodeProperty(id, pk, NullValue())
				}
			}
		}
		for pk, pv := range val.Map {
			if isNode {
				env.Overlay.SetNodeProperty(id, pk, pv)
			} else {
				env.Overlay.SetEdgeProperty(k, pk, pv)
			}
			if env.Stats != nil {
				env.Stats.PropertiesSet++
			}
		}
		return row, nil
	}
}

// setOp implements the SET clause.
type setOp struct {
	input Operator
	items []SetItem
	env   *Env
}

func (o *setOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *setOp) Close()              { o.input.Close() }
func (o *setOp) Describe() (string, []Operator) { return "Set", []Operator{o.input} }

func (o *setOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	out, err := applySetItems(row, o.items, o.env)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// removeOp implements the REMOVE clause: drops a label or clears a property
// (the latter via the same Null-write convention as SET's replace mode).
type removeOp struct {
	input Operator
	items []RemoveItem
	env   *Env
}

func (o *removeOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *removeOp) Close()              { o.input.Close() }
func (o *removeOp) Describe() (string, []Operator) { return "Remove", []Operator{o.input} }

func (o *removeOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	for _, item := range o.items {
		target, has := row[item.Variable]
		if !has {
			continue
		}
		if item.Label != "" {
			id, ok := target.AsNodeID()
			if !ok {
				continue
			}
			o.env.Overlay.RemoveLabel(id, item.Label)
			if o.env.Stats != nil {
				o.env.Stats.LabelsRemoved++
			}
			continue
		}
		if item.Property != "" {
			if id, ok := target.AsNodeID(); ok {
				o.env.Overlay.SetNodeProperty(id, item.Property, NullValue())
			} else if k, ok := target.AsEdgeKey(); ok {
				o.env.Overlay.SetEdgeProperty(k, item.Property, NullValue())
			}
		}
	}
	return row, true, nil
}

// deleteOp implements DELETE/DETACH DELETE. Deleting a node that still has
// incident relationships without DETACH is a recoverable error, never a
// panic.
type deleteOp struct {
	input  Operator
	names  []string
	detach bool
	env    *Env
}

func (o *deleteOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *deleteOp) Close()              { o.input.Close() }
func (o *deleteOp) Describe() (string, []Operator) { return "Delete", []Operator{o.input} }

func (o *deleteOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	for _, name := range o.names {
		v, has := row[name]
		if !has {
			continue
		}
		if id, ok := v.AsNodeID(); ok {
			if err := o.deleteNode(id); err != nil {
				return nil, false, err
			}
			continue
		}
		if k, ok := v.AsEdgeKey(); ok {
			if !o.env.Overlay.IsEdgeDeleted(k) {
				o.env.Overlay.DeleteEdge(k)
				if o.env.Stats != nil {
					o.env.Stats.RelationshipsDeleted++
				}
			}
		}
	}
	return row, true, nil
}

func (o *deleteOp) deleteNode(id storage.NodeID) error {
	incident := o.incidentEdges(id)
	if len(incident) > 0 && !o.detach {
		return newPlanError("cannot delete a node with relationships; use DETACH DELETE")
	}
	for _, k := range incident {
		if o.env.Overlay.IsEdgeDeleted(k) {
			continue
		}
		o.env.Overlay.DeleteEdge(k)
		if o.env.Stats != nil {
			o.env.Stats.RelationshipsDeleted++
		}
	}
	if !o.env.Overlay.IsNodeDeleted(id) {
		o.env.Overlay.DeleteNode(id)
		if o.env.Stats != nil {
			o.env.Stats.NodesDeleted++
		}
	}
	return nil
}

func (o *deleteOp) incidentEdges(id storage.NodeID) []storage.EdgeKey {
	var out []storage.EdgeKey
	for k := range o.env.Snapshot.Neighbors(id, nil) {
		if !o.env.Overlay.IsEdgeDeleted(k) {
			out = append(out, k)
		}
	}
	for k := range o.env.Snapshot.IncomingNeighbors(id, nil) {
		if !o.env.Overlay.IsEdgeDeleted(k) {
			out = append(out, k)
		}
	}
	for _, k := range o.env.Overlay.createdEdges {
		if k.Src != id && k.Dst != id {
			continue
		}
		if !o.env.Overlay.IsEdgeDeleted(k) {
			out = append(out, k)
		}
	}
	return out
}

// mergeOp implements MERGE: match the pattern against each input row,
// applying ON MATCH to every match found or, if none is found, creating the
// pattern once and applying ON CREATE.
type mergeOp struct {
	input    Operator
	pattern  *PatternPath
	onCreate []SetItem
	onMatch  []SetItem
	env      *Env

	pending    []Row
	pendingIdx int
}

func (o *mergeOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *mergeOp) Close()              { o.input.Close() }
func (o *mergeOp) Describe() (string, []Operator) { return "Merge", []Operator{o.input} }

func (o *mergeOp) Next() (Row, bool, error) {
	for {
		if o.pendingIdx < len(o.pending) {
			row := o.pending[o.pendingIdx]
			o.pendingIdx++
			return row, true, nil
		}
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		matches, err := o.findMatches(row)
		if err != nil {
			return nil, false, err
		}
		if len(matches) > 0 {
			out := make([]Row, 0, len(matches))
			for _, m := range matches {
				applied, err := applySetItems(m, o.onMatch, o.env)
				if err != nil {
					return nil, false, err
				}
				out = append(out, applied)
			}
			o.pending, o.pendingIdx = out, 0
			continue
		}
		created, err := createPattern(o.pattern, row, o.env)
		if err != nil {
			return nil, false, err
		}
		created, err = applySetItems(created, o.onCreate, o.env)
		if err != nil {
			return nil, false, err
		}
		o.pending, o.pendingIdx = []Row{created}, 0
	}
}

func (o *mergeOp) findMatches(row Row) ([]Row, error) {
	op, err := buildExpand(o.pattern, &valuesOp{rows: []Row{row}}, o.env.PathAliases)
	if err != nil {
		return nil, err
	}
	if err := op.Open(o.env); err != nil {
		return nil, err
	}
	defer op.Close()
	var out []Row
	for {
		r, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, r)
	}
}

// foreachOp implements FOREACH: buildBody compiles the clause's sub-clauses
// into a write-only operator chain seeded with one row per list element;
// its output is drained for side effects and discarded.
type foreachOp struct {
	input     Operator
	variable  string
	list      Expression
	buildBody func(env *Env, seed Row) (Operator, error)
	env       *Env
}

func (o *foreachOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *foreachOp) Close()              { o.input.Close() }
func (o *foreachOp) Describe() (string, []Operator) {
	return "Foreach(" + o.variable + ")", []Operator{o.input}
}

func (o *foreachOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	listV, err := Eval(o.list, row, o.env)
	if err != nil {
		return nil, false, err
	}
	if listV.Kind == VKList {
		for _, elem := range listV.List {
			seed := row.clone()
			seed[o.variable] = elem
			body, err := o.buildBody(o.env, seed)
			if err != nil {
				return nil, false, err
			}
			if err := drainWrites(body, o.env); err != nil {
				return nil, false, err
			}
		}
	}
	return row, true, nil
}

// drainWrites exhausts op purely for its side effects on env.Overlay,
// discarding every row it produces.
func drainWrites(op Operator, env *Env) error {
	if err := op.Open(env); err != nil {
		return err
	}
	defer op.Close()
	for {
		if env.canceled() {
			return nil
		}
		_, ok, err := op.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}
