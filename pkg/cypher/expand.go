package cypher

import (
	"fmt"
	"sort"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

// varLengthHopCap bounds an unbounded `*min..` relationship pattern
// (MaxHops == -1). The edge-multiplicity guard already prevents a single
// edge occurrence from being reused past its multiplicity, which bounds
// traversal on any finite graph, but a hard cap keeps a pathological or
// fuzzed query from recursing arbitrarily deep before that guard ever
// trips.
const varLengthHopCap = 32

// buildExpand compiles a single PatternPath into an operator chain rooted
// at input: a bindFilterOp for the first node (which transparently either
// verifies an already-bound alias or performs a fresh per-row scan when
// the alias is new — this is what makes chaining multiple comma-separated
// patterns in one MATCH clause a correct join-or-cross-product without a
// dedicated join operator) followed by one expandOp (or, for a `*min..max`
// relationship, one varExpandOp) per relationship hop. When the path is
// named (`p = ...`) or contains any
// variable-length hop, a pathBootstrapOp seeds a running PathValue that
// every subsequent hop extends, bound under the path's own variable name
// or, if the path is anonymous, under an internal alias from pa.
func buildExpand(path *PatternPath, input Operator, pa *pathAliasAllocator) (Operator, error) {
	alias0 := nodeAlias(path, 0)
	op := Operator(&bindFilterOp{input: input, pattern: path.Nodes[0], alias: alias0})

	pathAlias := ""
	switch {
	case path.PathVariable != "":
		pathAlias = path.PathVariable
	case anyVarLength(path.Rels):
		if pa == nil {
			pa = newPathAliasAllocator()
		}
		pathAlias = pa.Next()
	}
	if pathAlias != "" {
		op = &pathBootstrapOp{input: op, nodeAlias: alias0, pathAlias: pathAlias}
	}

	for i, rel := range path.Rels {
		srcAl := nodeAlias(path, i)
		dstAl := nodeAlias(path, i+1)
		if rel.VarLength {
			op = &varExpandOp{
				input:     op,
				srcAlias:  srcAl,
				dstAlias:  dstAl,
				edgeAlias: rel.Variable,
				rel:       rel,
				dstNode:   path.Nodes[i+1],
				pathAlias: pathAlias,
			}
			continue
		}
		op = &expandOp{
			input:     op,
			srcAlias:  srcAl,
			dstAlias:  dstAl,
			edgeAlias: rel.Variable,
			rel:       rel,
			dstNode:   path.Nodes[i+1],
			pathAlias: pathAlias,
		}
	}
	return op, nil
}

func anyVarLength(rels []*RelPattern) bool {
	for _, r := range rels {
		if r.VarLength {
			return true
		}
	}
	return false
}

func nodeAlias(path *PatternPath, i int) string {
	if path.Nodes[i].Variable != "" {
		return path.Nodes[i].Variable
	}
	return anonNodeAlias(path, i)
}

// anonNodeAlias synthesizes a stable, never-surfaced alias for a node
// pattern the query text left unnamed. The PatternPath's own address
// disambiguates it from every other pattern compiled within the same
// Prepare() call.
func anonNodeAlias(path *PatternPath, i int) string {
	return fmt.Sprintf("%snode_%d_%p", internalPathAliasPrefix, i, path)
}

// pathBootstrapOp seeds row[pathAlias] with a PathValue containing only
// the already-bound first node, for every hop downstream to extend.
type pathBootstrapOp struct {
	input     Operator
	nodeAlias string
	pathAlias string
}

func (o *pathBootstrapOp) Open(env *Env) error { return o.input.Open(env) }
func (o *pathBootstrapOp) Close()              { o.input.Close() }
func (o *pathBootstrapOp) Describe() (string, []Operator) {
	return "PathInit(" + o.pathAlias + ")", []Operator{o.input}
}

func (o *pathBootstrapOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	out := row.clone()
	out[o.pathAlias] = PathValueOf(&PathValue{Nodes: []Value{row[o.nodeAlias]}})
	return out, true, nil
}

// bindFilterOp binds or re-verifies a single node alias against its
// pattern's label and inline-property constraints.
type bindFilterOp struct {
	input   Operator
	pattern *NodePattern
	alias   string

	env     *Env
	curRow  Row
	subIDs  []storage.NodeID
	subPos  int
	haveCur bool
}

func (o *bindFilterOp) Open(env *Env) error {
	o.env = env
	return o.input.Open(env)
}

func (o *bindFilterOp) Next() (Row, bool, error) {
	for {
		if o.haveCur {
			for o.subPos < len(o.subIDs) {
				id := o.subIDs[o.subPos]
				o.subPos++
				matches, err := o.matchesNode(id)
				if err != nil {
					return nil, false, err
				}
				if !matches {
					continue
				}
				out := o.curRow.clone()
				out[o.alias] = NodeIDValue(id)
				return out, true, nil
			}
			o.haveCur = false
		}
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		if o.env.canceled() {
			return nil, false, nil
		}
		if v, has := row[o.alias]; has {
			if id, idOK := v.AsNodeID(); idOK {
				if !nodeSatisfiesPattern(o.env, o.pattern, id) {
					continue
				}
			}
			return row, true, nil
		}
		ids, err := o.candidateIDs()
		if err != nil {
			return nil, false, err
		}
		o.curRow = row
		o.subIDs = ids
		o.subPos = 0
		o.haveCur = true
	}
}

// candidateIDs enumerates fresh candidates for an unbound alias by
// running the node-source plan (IndexSeek with a Scan fallback, or a plain
// Scan) to completion and collecting the ids it binds.
func (o *bindFilterOp) candidateIDs() ([]storage.NodeID, error) {
	src := newNodeSource(o.alias, o.pattern)
	if err := src.Open(o.env); err != nil {
		return nil, err
	}
	defer src.Close()
	var ids []storage.NodeID
	for {
		row, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return ids, nil
		}
		if v, has := row[o.alias]; has {
			if id, idOK := v.AsNodeID(); idOK {
				ids = append(ids, id)
			}
		}
	}
}

func (o *bindFilterOp) matchesNode(id storage.NodeID) (bool, error) {
	if !nodeSatisfiesPattern(o.env, o.pattern, id) {
		return false, nil
	}
	return true, nil
}

// newNodeSource picks the candidate-enumeration plan for an unbound node
// alias: when the pattern pins exactly one label and at least one property
// to a literal value, an IndexSeek over (label, field) with the label scan
// as its fallback — the snapshot decides at Open time whether an index for
// that pair actually exists — otherwise the label scan directly.
func newNodeSource(alias string, pattern *NodePattern) Operator {
	scan := newScanOp(alias, pattern.Labels)
	if len(pattern.Labels) != 1 {
		return scan
	}
	fields := make([]string, 0, len(pattern.Properties))
	for field, expr := range pattern.Properties {
		if _, ok := expr.(*Literal); ok {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return scan
	}
	sort.Strings(fields)
	field := fields[0]
	return &indexSeekOp{
		alias:    alias,
		label:    pattern.Labels[0],
		field:    field,
		value:    pattern.Properties[field],
		fallback: scan,
	}
}

func (o *bindFilterOp) Close() { o.input.Close() }

func (o *bindFilterOp) Describe() (string, []Operator) {
	return "Scan/Bind(" + o.alias + ")", []Operator{o.input}
}

// resolveRelTypeIDs resolves rel's type names against the snapshot, lazily
// and once, skipping any that are not (yet) known to it. Inside a write execution a
// type may have been interned by an earlier clause of this same query and
// therefore be missing from the (older) snapshot; resolving through the
// live transaction's interner keeps those overlay edges matchable.
func resolveRelTypeIDs(env *Env, rel *RelPattern) []storage.SymbolID {
	var ids []storage.SymbolID
	for _, name := range rel.Types {
		if id, ok := env.Snapshot.ResolveLabelID(name); ok {
			ids = append(ids, id)
			continue
		}
		if env.GetOrCreateLabel != nil {
			if id, err := env.GetOrCreateLabel(name); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// neighborEdgesFor enumerates every candidate EdgeKey incident to src that
// rel's direction and (already-resolved) type constraint admit, unioning
// both directions for an anonymous `--` pattern.
// Within a write execution, edges deleted by the overlay are hidden and
// edges the overlay created are included, so same-transaction reads observe
// (snapshot ∪ overlay ∖ deleted).
func neighborEdgesFor(env *Env, rel *RelPattern, relIDs []storage.SymbolID, src storage.NodeID) []storage.EdgeKey {
	var out []storage.EdgeKey
	add := func(seq func(yield func(storage.EdgeKey) bool)) {
		for k := range seq {
			out = append(out, k)
		}
	}
	switch rel.Direction {
	case DirOut:
		if len(relIDs) == 0 {
			add(env.Snapshot.Neighbors(src, nil))
		} else {
			for _, rid := range relIDs {
				rid := rid
				add(env.Snapshot.Neighbors(src, &rid))
			}
		}
	case DirIn:
		if len(relIDs) == 0 {
			add(env.Snapshot.IncomingNeighbors(src, nil))
		} else {
			for _, rid := range relIDs {
				rid := rid
				add(env.Snapshot.IncomingNeighbors(src, &rid))
			}
		}
	default: // either direction: union of both
		if len(relIDs) == 0 {
			add(env.Snapshot.Neighbors(src, nil))
			add(env.Snapshot.IncomingNeighbors(src, nil))
		} else {
			for _, rid := range relIDs {
				rid := rid
				add(env.Snapshot.Neighbors(src, &rid))
				add(env.Snapshot.IncomingNeighbors(src, &rid))
			}
		}
	}
	if env.Overlay == nil {
		return out
	}

	kept := out[:0]
	for _, k := range out {
		if !env.Overlay.IsEdgeDeleted(k) {
			kept = append(kept, k)
		}
	}
	out = kept

	relSet := make(map[storage.SymbolID]struct{}, len(relIDs))
	for _, rid := range relIDs {
		relSet[rid] = struct{}{}
	}
	for _, k := range env.Overlay.createdEdges {
		if env.Overlay.IsEdgeDeleted(k) {
			continue
		}
		if len(rel.Types) > 0 {
			if _, ok := relSet[k.Rel]; !ok {
				continue
			}
		}
		switch rel.Direction {
		case DirOut:
			if k.Src == src {
				out = append(out, k)
			}
		case DirIn:
			if k.Dst == src {
				out = append(out, k)
			}
		default:
			if k.Src == src || k.Dst == src {
				out = append(out, k)
			}
		}
	}
	return out
}

// otherEndpoint picks the node a hop from src over key lands on, honoring
// the pattern's direction: the destination for an outgoing hop, the source
// for an incoming one, and whichever endpoint is not src for an undirected
// `--` hop (a self-loop lands back on src either way).
func otherEndpoint(dir Direction, src storage.NodeID, key storage.EdgeKey) storage.NodeID {
	switch dir {
	case DirIn:
		return key.Src
	case DirOut:
		return key.Dst
	default:
		if key.Src == src {
			return key.Dst
		}
		return key.Src
	}
}

// edgeMatchesRelProps reports whether key's current properties satisfy
// rel's inline property constraints.
func edgeMatchesRelProps(env *Env, rel *RelPattern, key storage.EdgeKey) bool {
	if len(rel.Properties) == 0 {
		return true
	}
	for field, expr := range rel.Properties {
		want, err := Eval(expr, Row{}, env)
		if err != nil {
			return false
		}
		got, err := edgeProperty(env, key, field)
		if err != nil {
			return false
		}
		if !got.Equal(want) {
			return false
		}
	}
	return true
}

// nodeSatisfiesPattern reports whether id carries every label and inline
// property pattern requires, used both for destination-node constraints
// and for re-verifying an already-bound alias. Label matching goes by name
// through nodeLabelNames so overlay-created nodes and pending SET/REMOVE
// label changes are honored.
func nodeSatisfiesPattern(env *Env, pattern *NodePattern, id storage.NodeID) bool {
	if env.Overlay != nil && env.Overlay.IsNodeDeleted(id) {
		return false
	}
	if len(pattern.Labels) > 0 {
		have := nodeLabelNames(env, id)
		set := make(map[string]struct{}, len(have))
		for _, h := range have {
			set[h] = struct{}{}
		}
		for _, want := range pattern.Labels {
			if _, ok := set[want]; !ok {
				return false
			}
		}
	}
	for field, expr := range pattern.Properties {
		want, err := Eval(expr, Row{}, env)
		if err != nil {
			return false
		}
		got, err := nodeProperty(env, id, field)
		if err != nil || !got.Equal(want) {
			return false
		}
	}
	return true
}

// extendPath returns a new PathValue extending base with one more
// (node, edge) step, never mutating base — rows upstream in the operator
// tree (e.g. a sibling branch after backtracking) must keep seeing their
// own unextended copy.
func extendPath(base *PathValue, node storage.NodeID, edge storage.EdgeKey) *PathValue {
	next := &PathValue{
		Nodes: append(append([]Value(nil), base.Nodes...), NodeIDValue(node)),
		Edges: append(append([]Value(nil), base.Edges...), EdgeKeyValue(edge)),
	}
	return next
}

// edgeAvailableMultiplicity is the number of occurrences of key a
// traversal may consume: the snapshot's multiplicity plus any occurrences
// the overlay created, or zero once the overlay has deleted the key.
func edgeAvailableMultiplicity(env *Env, key storage.EdgeKey) int {
	if env.Overlay != nil && env.Overlay.IsEdgeDeleted(key) {
		return 0
	}
	n := env.Snapshot.EdgeMultiplicity(key)
	if env.Overlay != nil {
		for _, k := range env.Overlay.createdEdges {
			if k == key {
				n++
			}
		}
	}
	return n
}

// edgeUseCount counts how many times edge already appears in path's edges.
func edgeUseCount(path *PathValue, edge storage.EdgeKey) int {
	count := 0
	for _, e := range path.Edges {
		if k, ok := e.AsEdgeKey(); ok && k == edge {
			count++
		}
	}
	return count
}

// expandOp enumerates edges from (or to) the bound source node matching
// rel's type/direction constraints, binding the edge and destination node
// aliases for each match. When pathAlias is set,
// every match also extends the running PathValue under that alias.
type expandOp struct {
	input     Operator
	srcAlias  string
	dstAlias  string
	edgeAlias string
	rel       *RelPattern
	dstNode   *NodePattern
	pathAlias string

	env           *Env
	curRow        Row
	curSrc        storage.NodeID
	pending       []storage.EdgeKey
	pendingIdx    int
	relIDs        []storage.SymbolID
	resolvedTypes bool
}

func (o *expandOp) Open(env *Env) error {
	o.env = env
	return o.input.Open(env)
}

func (o *expandOp) resolveTypes() {
	if o.resolvedTypes {
		return
	}
	o.resolvedTypes = true
	o.relIDs = resolveRelTypeIDs(o.env, o.rel)
}

func (o *expandOp) Next() (Row, bool, error) {
	o.resolveTypes()
	if len(o.rel.Types) > 0 && len(o.relIDs) == 0 {
		return nil, false, nil // no interned type can match: Impossible
	}
	for {
		for o.pendingIdx < len(o.pending) {
			key := o.pending[o.pendingIdx]
			o.pendingIdx++
			if !edgeMatchesRelProps(o.env, o.rel, key) {
				continue
			}
			dstID := otherEndpoint(o.rel.Direction, o.curSrc, key)
			out := o.curRow.clone()
			if o.edgeAlias != "" {
				out[o.edgeAlias] = EdgeKeyValue(key)
			}
			if !o.dstMatches(dstID, out) {
				continue
			}
			out[o.dstAlias] = NodeIDValue(dstID)
			if o.pathAlias != "" {
				base := o.curRow[o.pathAlias].Path
				if base == nil {
					base = &PathValue{Nodes: []Value{NodeIDValue(o.curSrc)}}
				}
				out[o.pathAlias] = PathValueOf(extendPath(base, dstID, key))
			}
			return out, true, nil
		}
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		srcV, ok := row[o.srcAlias]
		if !ok {
			continue
		}
		srcID, ok := srcV.AsNodeID()
		if !ok {
			continue
		}
		o.curRow = row
		o.curSrc = srcID
		o.pending = neighborEdgesFor(o.env, o.rel, o.relIDs, srcID)
		o.pendingIdx = 0
	}
}

func (o *expandOp) dstMatches(id storage.NodeID, row Row) bool {
	if existing, ok := row[o.dstAlias]; ok {
		existingID, ok2 := existing.AsNodeID()
		if ok2 && existingID != id {
			return false
		}
	}
	return nodeSatisfiesPattern(o.env, o.dstNode, id)
}

func (o *expandOp) Close() { o.input.Close() }
func (o *expandOp) Describe() (string, []Operator) {
	return "Expand(" + o.srcAlias + "->" + o.dstAlias + ")", []Operator{o.input}
}

// varExpandOp implements a `*min..max` relationship hop: a bounded,
// depth-first traversal from the bound source node emitting one row per
// reachable destination at every hop count in [MinHops, MaxHops], guarded
// against reusing any single EdgeKey occurrence beyond its multiplicity in
// the snapshot. pathAlias is always non-empty for a varExpandOp — it is
// how the guard inspects which edges the path has already consumed.
type varExpandOp struct {
	input     Operator
	srcAlias  string
	dstAlias  string
	edgeAlias string
	rel       *RelPattern
	dstNode   *NodePattern
	pathAlias string

	env           *Env
	relIDs        []storage.SymbolID
	resolvedTypes bool

	pending    []Row
	pendingIdx int
}

func (o *varExpandOp) Open(env *Env) error {
	o.env = env
	return o.input.Open(env)
}

func (o *varExpandOp) resolveTypes() {
	if o.resolvedTypes {
		return
	}
	o.resolvedTypes = true
	o.relIDs = resolveRelTypeIDs(o.env, o.rel)
}

func (o *varExpandOp) Next() (Row, bool, error) {
	o.resolveTypes()
	for {
		if o.pendingIdx < len(o.pending) {
			r := o.pending[o.pendingIdx]
			o.pendingIdx++
			return r, true, nil
		}
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		if len(o.rel.Types) > 0 && len(o.relIDs) == 0 {
			continue // no interned type can match: Impossible for this row
		}
		srcV, ok := row[o.srcAlias]
		if !ok {
			continue
		}
		srcID, ok := srcV.AsNodeID()
		if !ok {
			continue
		}
		base := row[o.pathAlias].Path
		if base == nil {
			base = &PathValue{Nodes: []Value{srcV}}
		}
		o.pending = o.walk(row, srcID, base)
		o.pendingIdx = 0
	}
}

func (o *varExpandOp) maxHops() int {
	if o.rel.MaxHops < 0 || o.rel.MaxHops > varLengthHopCap {
		return varLengthHopCap
	}
	return o.rel.MaxHops
}

// walk performs the bounded depth-first traversal for one input row,
// returning one output row per (depth, reachable node) pair with
// depth in [MinHops, maxHops()] that also satisfies the destination
// pattern's constraints.
func (o *varExpandOp) walk(row Row, srcID storage.NodeID, basePath *PathValue) []Row {
	var out []Row
	maxHops := o.maxHops()
	minHops := o.rel.MinHops
	if minHops < 1 {
		minHops = 1
	}
	baseLen := len(basePath.Edges)

	var recurse func(curID storage.NodeID, depth int, path *PathValue)
	recurse = func(curID storage.NodeID, depth int, path *PathValue) {
		if depth >= minHops && nodeSatisfiesPattern(o.env, o.dstNode, curID) {
			out = append(out, o.buildRow(row, curID, path, baseLen))
		}
		if depth >= maxHops {
			return
		}
		for _, key := range neighborEdgesFor(o.env, o.rel, o.relIDs, curID) {
			if !edgeMatchesRelProps(o.env, o.rel, key) {
				continue
			}
			if edgeUseCount(path, key) >= edgeAvailableMultiplicity(o.env, key) {
				continue
			}
			nextID := otherEndpoint(o.rel.Direction, curID, key)
			recurse(nextID, depth+1, extendPath(path, nextID, key))
		}
	}
	recurse(srcID, 0, basePath)
	return out
}

// buildRow materializes one output row for a traversal that has reached
// finalID with the accumulated path. baseLen is the number of edges the
// path already carried before this hop began, so edgeAlias — when the
// hop has a relationship variable — binds only the edges traversed by
// this particular `*min..max` hop, not the whole path (Cypher's
// variable-length relationship variable is a list scoped to its own
// hop).
func (o *varExpandOp) buildRow(row Row, finalID storage.NodeID, path *PathValue, baseLen int) Row {
	out := row.clone()
	out[o.dstAlias] = NodeIDValue(finalID)
	out[o.pathAlias] = PathValueOf(path)
	if o.edgeAlias != "" {
		hopEdges := path.Edges[baseLen:]
		out[o.edgeAlias] = ListValue(append([]Value(nil), hopEdges...))
	}
	return out
}

func (o *varExpandOp) Close() { o.input.Close() }
func (o *varExpandOp) Describe() (string, []Operator) {
	hi := "∞"
	if o.rel.MaxHops >= 0 {
		hi = fmt.Sprintf("%d", o.rel.MaxHops)
	}
	return fmt.Sprintf("VarExpand(%s->%s, *%d..%s)", o.srcAlias, o.dstAlias, o.rel.MinHops, hi), []Operator{o.input}
}
