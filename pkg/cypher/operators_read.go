package cypher

import (
	"sort"
	"strings"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

// valuesOp replays a fixed set of literal rows, used to seed FOREACH and
// EXISTS subqueries.
type valuesOp struct {
	rows []Row
	pos  int
}

func (o *valuesOp) Open(env *Env) error { o.pos = 0; return nil }
func (o *valuesOp) Close()              {}
func (o *valuesOp) Describe() (string, []Operator) { return "Values", nil }
func (o *valuesOp) Next() (Row, bool, error) {
	if o.pos >= len(o.rows) {
		return nil, false, nil
	}
	r := o.rows[o.pos]
	o.pos++
	return r, true, nil
}

// scanOp enumerates every live node matching a label constraint, resolved
// lazily against the snapshot at Open time. Within a
// write execution the overlay's created nodes are included and its deleted
// nodes hidden, so same-transaction reads observe
// (snapshot ∪ overlay ∖ deleted).
type scanOp struct {
	alias  string
	labels []string

	ids        []storage.NodeID
	pos        int
	impossible bool
}

func newScanOp(alias string, labels []string) *scanOp {
	return &scanOp{alias: alias, labels: labels}
}

func (o *scanOp) Open(env *Env) error {
	o.pos = 0
	o.ids = nil
	o.impossible = false

	constraint := requiredLabels(o.labels)
	if constraint.Kind == LabelRequired && env.Overlay == nil {
		// With no overlay in play, a label the snapshot's interner has
		// never seen can match nothing: the constraint is Impossible and
		// the scan short-circuits to empty.
		for _, name := range constraint.Names {
			if _, ok := env.Snapshot.ResolveLabelID(name); !ok {
				o.impossible = true
				return nil
			}
		}
	}

	for id := range env.Snapshot.Nodes() {
		if env.Overlay != nil && env.Overlay.IsNodeDeleted(id) {
			continue
		}
		if constraint.Kind == LabelRequired && !hasAllLabelNames(env, id, constraint.Names) {
			continue
		}
		o.ids = append(o.ids, id)
	}
	if env.Overlay != nil {
		for _, n := range env.Overlay.createdNodes {
			if env.Overlay.IsNodeDeleted(n.ID) {
				continue
			}
			if constraint.Kind == LabelRequired && !hasAllLabelNames(env, n.ID, constraint.Names) {
				continue
			}
			o.ids = append(o.ids, n.ID)
		}
	}
	return nil
}

func hasAllLabelNames(env *Env, id storage.NodeID, want []string) bool {
	have := nodeLabelNames(env, id)
	set := make(map[string]struct{}, len(have))
	for _, l := range have {
		set[l] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func (o *scanOp) Next() (Row, bool, error) {
	if o.impossible || o.pos >= len(o.ids) {
		return nil, false, nil
	}
	id := o.ids[o.pos]
	o.pos++
	row := Row{o.alias: NodeIDValue(id)}
	return row, true, nil
}

func (o *scanOp) Close() {}
func (o *scanOp) Describe() (string, []Operator) { return "Scan(" + o.alias + ")", nil }

// indexSeekOp consults the snapshot's optional secondary index for
// (label, field); falling back to a provided scan plan when the snapshot
// carries no such index or valueExpr does not evaluate to a scalar.
type indexSeekOp struct {
	alias    string
	label    string
	field    string
	value    Expression
	fallback Operator

	ids []storage.NodeID
	pos int
	useFallback bool
}

func (o *indexSeekOp) Open(env *Env) error {
	labelID, ok1 := env.Snapshot.ResolveLabelID(o.label)
	fieldID, ok2 := env.Snapshot.ResolveLabelID(o.field)
	valV, err := Eval(o.value, Row{}, env)
	if err != nil {
		return err
	}
	if !ok1 || !ok2 || valV.IsNull() || valV.Kind == VKList || valV.Kind == VKMap {
		o.useFallback = true
		return o.fallback.Open(env)
	}
	pv, ok := valueToPropval(valV)
	if !ok {
		o.useFallback = true
		return o.fallback.Open(env)
	}
	ids, found := env.Snapshot.LookupIndex(labelID, fieldID, pv)
	if !found {
		o.useFallback = true
		return o.fallback.Open(env)
	}
	sorted := append([]storage.NodeID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	o.ids = sorted
	return nil
}

func (o *indexSeekOp) Next() (Row, bool, error) {
	if o.useFallback {
		return o.fallback.Next()
	}
	if o.pos >= len(o.ids) {
		return nil, false, nil
	}
	id := o.ids[o.pos]
	o.pos++
	return Row{o.alias: NodeIDValue(id)}, true, nil
}

func (o *indexSeekOp) Close() {
	if o.useFallback {
		o.fallback.Close()
	}
}
func (o *indexSeekOp) Describe() (string, []Operator) {
	return "IndexSeek(" + o.alias + ")", []Operator{o.fallback}
}

// filterOp drops rows for which predicate does not evaluate to true
// (three-valued: Null and false both filter a row out).
type filterOp struct {
	input     Operator
	predicate Expression
	env       *Env
}

func (o *filterOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }

func (o *filterOp) Next() (Row, bool, error) {
	for {
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		if o.env.canceled() {
			return nil, false, nil
		}
		v, err := Eval(o.predicate, row, o.env)
		if err != nil {
			return nil, false, err
		}
		if v.Kind == VKBool && v.Bool {
			return row, true, nil
		}
	}
}

func (o *filterOp) Close() { o.input.Close() }
func (o *filterOp) Describe() (string, []Operator) { return "Filter", []Operator{o.input} }

// projectOp re-shapes rows to the output alias list, optionally
// materializing bare node/edge ids.
type projectOp struct {
	input    Operator
	items    []ProjectionItem
	env      *Env
}

func (o *projectOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *projectOp) Close()              { o.input.Close() }
func (o *projectOp) Describe() (string, []Operator) { return "Project", []Operator{o.input} }

func (o *projectOp) Next() (Row, bool, error) {
	row, ok, err := o.input.Next()
	if err != nil || !ok {
		return row, ok, err
	}
	out := Row{}
	for _, item := range o.items {
		if item.Star {
			for k, v := range row {
				// Both internal path aliases and the planner's anonymous
				// node aliases share the reserved prefix; neither surfaces
				// through RETURN *.
				if strings.HasPrefix(k, internalPathAliasPrefix) {
					continue
				}
				out[k] = finalizeValue(o.env, v)
			}
			continue
		}
		v, err := Eval(item.Expr, row, o.env)
		if err != nil {
			return nil, false, err
		}
		alias := item.Alias
		if alias == "" {
			if vr, ok := item.Expr.(*Var); ok {
				alias = vr.Name
			} else {
				alias = exprText(item.Expr)
			}
		}
		out[alias] = finalizeValue(o.env, v)
	}
	return out, true, nil
}

// finalizeValue applies lazy node/edge materialization to a value about to
// leave the executor as an output column.
func finalizeValue(env *Env, v Value) Value {
	switch v.Kind {
	case VKNodeID:
		return materializeNodeIfBare(env, v.NodeID)
	case VKEdgeKey:
		return materializeEdgeIfBare(env, v.EdgeKey)
	default:
		return v
	}
}

// exprText produces a best-effort source-like label for an unaliased
// projection item, used as its output column name.
func exprText(e Expression) string {
	switch t := e.(type) {
	case *Var:
		return t.Name
	case *PropertyAccess:
		return exprText(t.Target) + "." + t.Field
	case *Call:
		return t.Name + "(...)"
	default:
		return "expr"
	}
}

// unwindOp expands a list expression into one row per element.
type unwindOp struct {
	input    Operator
	list     Expression
	variable string

	env     *Env
	cur     Row
	curList []Value
	curPos  int
	started bool
}

func (o *unwindOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *unwindOp) Close()              { o.input.Close() }
func (o *unwindOp) Describe() (string, []Operator) { return "Unwind(" + o.variable + ")", []Operator{o.input} }

func (o *unwindOp) Next() (Row, bool, error) {
	for {
		if o.curPos < len(o.curList) {
			v := o.curList[o.curPos]
			o.curPos++
			out := o.cur.clone()
			out[o.variable] = v
			return out, true, nil
		}
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		listV, err := Eval(o.list, row, o.env)
		if err != nil {
			return nil, false, err
		}
		o.cur = row
		if listV.Kind == VKList {
			o.curList = listV.List
		} else {
			o.curList = nil
		}
		o.curPos = 0
	}
}

// limitOp stops after n rows.
type limitOp struct {
	input Operator
	n     Expression
	env   *Env
	limit int
	count int
}

func (o *limitOp) Open(env *Env) error {
	o.env = env
	if err := o.input.Open(env); err != nil {
		return err
	}
	v, err := Eval(o.n, Row{}, env)
	if err != nil {
		return err
	}
	f, _ := v.AsFloat()
	o.limit = int(f)
	return nil
}
func (o *limitOp) Close() { o.input.Close() }
func (o *limitOp) Describe() (string, []Operator) { return "Limit", []Operator{o.input} }
func (o *limitOp) Next() (Row, bool, error) {
	if o.count >= o.limit {
		return nil, false, nil
	}
	row, ok, err := o.input.Next()
	if ok {
		o.count++
	}
	return row, ok, err
}

// skipOp discards the first n rows.
type skipOp struct {
	input   Operator
	n       Expression
	env     *Env
	skip    int
	skipped int
}

func (o *skipOp) Open(env *Env) error {
	o.env = env
	if err := o.input.Open(env); err != nil {
		return err
	}
	v, err := Eval(o.n, Row{}, env)
	if err != nil {
		return err
	}
	f, _ := v.AsFloat()
	o.skip = int(f)
	return nil
}
func (o *skipOp) Close() { o.input.Close() }
func (o *skipOp) Describe() (string, []Operator) { return "Skip", []Operator{o.input} }
func (o *skipOp) Next() (Row, bool, error) {
	for o.skipped < o.skip {
		_, ok, err := o.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		o.skipped++
	}
	return o.input.Next()
}

// orderByOp buffers its entire input (semantically required by sorting)
// and emits it in sorted order, stably.
type orderByOp struct {
	input Operator
	items []OrderItem
	env   *Env

	buffered []Row
	pos      int
	done     bool
}

func (o *orderByOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *orderByOp) Close()              { o.input.Close() }
func (o *orderByOp) Describe() (string, []Operator) { return "OrderBy", []Operator{o.input} }

func (o *orderByOp) Next() (Row, bool, error) {
	if !o.done {
		for {
			row, ok, err := o.input.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				break
			}
			o.buffered = append(o.buffered, row)
		}
		var evalErr error
		sort.SliceStable(o.buffered, func(i, j int) bool {
			for _, item := range o.items {
				vi, err := Eval(item.Expr, o.buffered[i], o.env)
				if err != nil {
					evalErr = err
					return false
				}
				vj, err := Eval(item.Expr, o.buffered[j], o.env)
				if err != nil {
					evalErr = err
					return false
				}
				if vi.Equal(vj) {
					continue
				}
				less := vi.lessForSort(vj)
				if item.Descending {
					return !less
				}
				return less
			}
			return false
		})
		if evalErr != nil {
			return nil, false, evalErr
		}
		o.done = true
	}
	if o.pos >= len(o.buffered) {
		return nil, false, nil
	}
	row := o.buffered[o.pos]
	o.pos++
	return row, true, nil
}

// distinctOp buffers seen row signatures (semantically required) and
// drops duplicates.
type distinctOp struct {
	input Operator
	env   *Env
	seen  []Row
}

func (o *distinctOp) Open(env *Env) error { o.env = env; return o.input.Open(env) }
func (o *distinctOp) Close()              { o.input.Close() }
func (o *distinctOp) Describe() (string, []Operator) { return "Distinct", []Operator{o.input} }

func (o *distinctOp) Next() (Row, bool, error) {
	for {
		row, ok, err := o.input.Next()
		if err != nil || !ok {
			return row, ok, err
		}
		dup := false
		for _, s := range o.seen {
			if rowsEqual(s, row) {
				dup = true
				break
			}
		}
		if !dup {
			o.seen = append(o.seen, row)
			return row, true, nil
		}
	}
}

func rowsEqual(a, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !v.Equal(bv) {
			return false
		}
	}
	return true
}
