package cypher

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

// Eval evaluates e against row and env, applying Cypher's coercion rules:
// Int widens to Float in mixed arithmetic, Null propagates through
// arithmetic and comparison, and boolean operators are three-valued
// (Kleene).
func Eval(e Expression, row Row, env *Env) (Value, error) {
	if e == nil {
		return NullValue(), nil
	}
	switch t := e.(type) {
	case *Literal:
		return literalToValue(t.Value), nil
	case *Var:
		if v, ok := row[t.Name]; ok {
			return v, nil
		}
		return NullValue(), nil
	case *Param:
		if v, ok := env.Params[t.Name]; ok {
			return literalToValue(v), nil
		}
		return NullValue(), nil
	case *PropertyAccess:
		return evalPropertyAccess(t, row, env)
	case *IndexAccess:
		return evalIndexAccess(t, row, env)
	case *SliceAccess:
		return evalSliceAccess(t, row, env)
	case *BinOp:
		return evalBinOp(t, row, env)
	case *UnaryOp:
		return evalUnaryOp(t, row, env)
	case *IsNullCheck:
		v, err := Eval(t.Operand, row, env)
		if err != nil {
			return Value{}, err
		}
		result := v.IsNull()
		if t.Negate {
			result = !result
		}
		return BoolValue(result), nil
	case *Coalesce:
		for _, a := range t.Args {
			v, err := Eval(a, row, env)
			if err != nil {
				return Value{}, err
			}
			if !v.IsNull() {
				return v, nil
			}
		}
		return NullValue(), nil
	case *Call:
		return evalCall(t, row, env)
	case *ListLit:
		items := make([]Value, 0, len(t.Items))
		for _, it := range t.Items {
			v, err := Eval(it, row, env)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ListValue(items), nil
	case *MapLit:
		m := make(map[string]Value, len(t.Entries))
		for _, k := range t.Order {
			v, err := Eval(t.Entries[k], row, env)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return MapValue(m), nil
	case *ListComp:
		return evalListComp(t, row, env)
	case *CaseExpr:
		return evalCase(t, row, env)
	case *Exists:
		return evalExists(t, row, env)
	default:
		return Value{}, newPlanError("unsupported expression type %T", e)
	}
}

func literalToValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(x)
	case int64:
		return IntValue(x)
	case int:
		return IntValue(int64(x))
	case float64:
		return FloatValue(x)
	case string:
		return StringValue(x)
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			items[i] = literalToValue(e)
		}
		return ListValue(items)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = literalToValue(e)
		}
		return MapValue(m)
	default:
		return StringValue(fmt.Sprint(x))
	}
}

func evalPropertyAccess(t *PropertyAccess, row Row, env *Env) (Value, error) {
	target, err := Eval(t.Target, row, env)
	if err != nil {
		return Value{}, err
	}
	switch target.Kind {
	case VKNodeID:
		return nodeProperty(env, target.NodeID, t.Field)
	case VKNode:
		if v, ok := target.Node.Properties[t.Field]; ok {
			return v, nil
		}
		return NullValue(), nil
	case VKEdgeKey:
		return edgeProperty(env, target.EdgeKey, t.Field)
	case VKEdge:
		if v, ok := target.Edge.Properties[t.Field]; ok {
			return v, nil
		}
		return NullValue(), nil
	case VKMap:
		if v, ok := target.Map[t.Field]; ok {
			return v, nil
		}
		return NullValue(), nil
	case VKNull:
		return NullValue(), nil
	default:
		return NullValue(), nil
	}
}

func nodeProperty(env *Env, id storage.NodeID, field string) (Value, error) {
	if env.Overlay != nil {
		if v, ok := env.Overlay.OverlayNodeProperty(id, field); ok {
			return v, nil
		}
		if env.Overlay.IsAnon(id) {
			if rec, ok := env.Overlay.CreatedNodeRecord(id); ok {
				if v, ok := rec.Properties[field]; ok {
					return v, nil
				}
			}
			return NullValue(), nil
		}
	}
	key, ok := env.Snapshot.ResolveLabelID(field)
	if !ok {
		return NullValue(), nil
	}
	pv, ok := env.Snapshot.NodeProperty(id, key)
	if !ok {
		return NullValue(), nil
	}
	return propvalToValue(pv), nil
}

func edgeProperty(env *Env, k storage.EdgeKey, field string) (Value, error) {
	if env.Overlay != nil {
		if m := env.Overlay.edgeProps[k]; m != nil {
			if v, ok := m[field]; ok {
				return v, nil
			}
		}
	}
	key, ok := env.Snapshot.ResolveLabelID(field)
	if !ok {
		return NullValue(), nil
	}
	pv, ok := env.Snapshot.EdgeProperty(k, key)
	if !ok {
		return NullValue(), nil
	}
	return propvalToValue(pv), nil
}

func evalIndexAccess(t *IndexAccess, row Row, env *Env) (Value, error) {
	target, err := Eval(t.Target, row, env)
	if err != nil {
		return Value{}, err
	}
	idxV, err := Eval(t.Index, row, env)
	if err != nil {
		return Value{}, err
	}
	if target.IsNull() || idxV.IsNull() {
		return NullValue(), nil
	}
	switch target.Kind {
	case VKList:
		i, ok := idxV.AsFloat()
		if !ok {
			return NullValue(), nil
		}
		idx := int(i)
		if idx < 0 {
			idx += len(target.List)
		}
		if idx < 0 || idx >= len(target.List) {
			return NullValue(), nil
		}
		return target.List[idx], nil
	case VKMap:
		key, ok := idxV.AsString0()
		if !ok {
			return NullValue(), nil
		}
		if v, ok := target.Map[key]; ok {
			return v, nil
		}
		return NullValue(), nil
	default:
		return NullValue(), nil
	}
}

// AsString0 is a small helper local to evaluator-facing code.
func (v Value) AsString0() (string, bool) {
	if v.Kind == VKString {
		return v.Str, true
	}
	return "", false
}

func evalSliceAccess(t *SliceAccess, row Row, env *Env) (Value, error) {
	target, err := Eval(t.Target, row, env)
	if err != nil {
		return Value{}, err
	}
	if target.Kind != VKList {
		return NullValue(), nil
	}
	from, to := 0, len(target.List)
	if t.From != nil {
		v, err := Eval(t.From, row, env)
		if err != nil {
			return Value{}, err
		}
		if f, ok := v.AsFloat(); ok {
			from = int(f)
		}
	}
	if t.To != nil {
		v, err := Eval(t.To, row, env)
		if err != nil {
			return Value{}, err
		}
		if f, ok := v.AsFloat(); ok {
			to = int(f)
		}
	}
	if from < 0 {
		from = 0
	}
	if to > len(target.List) {
		to = len(target.List)
	}
	if from >= to {
		return ListValue(nil), nil
	}
	return ListValue(append([]Value(nil), target.List[from:to]...)), nil
}

func evalUnaryOp(t *UnaryOp, row Row, env *Env) (Value, error) {
	v, err := Eval(t.Operand, row, env)
	if err != nil {
		return Value{}, err
	}
	switch t.Op {
	case "-":
		if v.IsNull() {
			return NullValue(), nil
		}
		switch v.Kind {
		case VKInt:
			return IntValue(-v.Int), nil
		case VKFloat:
			return FloatValue(-v.Float), nil
		}
		return NullValue(), nil
	case "NOT":
		if v.IsNull() || v.Kind != VKBool {
			return NullValue(), nil
		}
		return BoolValue(!v.Bool), nil
	}
	return Value{}, newPlanError("unknown unary operator %q", t.Op)
}

func evalBinOp(t *BinOp, row Row, env *Env) (Value, error) {
	switch t.Op {
	case "AND":
		return evalKleeneAnd(t, row, env)
	case "OR":
		return evalKleeneOr(t, row, env)
	case "XOR":
		l, err := Eval(t.Left, row, env)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(t.Right, row, env)
		if err != nil {
			return Value{}, err
		}
		if l.IsNull() || r.IsNull() || l.Kind != VKBool || r.Kind != VKBool {
			return NullValue(), nil
		}
		return BoolValue(l.Bool != r.Bool), nil
	}
	l, err := Eval(t.Left, row, env)
	if err != nil {
		return Value{}, err
	}
	r, err := Eval(t.Right, row, env)
	if err != nil {
		return Value{}, err
	}
	switch t.Op {
	case "+", "-", "*", "/", "%", "^":
		return evalArithmetic(t.Op, l, r)
	case "=":
		if l.IsNull() || r.IsNull() {
			return NullValue(), nil
		}
		return BoolValue(l.Equal(r)), nil
	case "<>":
		if l.IsNull() || r.IsNull() {
			return NullValue(), nil
		}
		return BoolValue(!l.Equal(r)), nil
	case "<", "<=", ">", ">=":
		return evalOrderingComparison(t.Op, l, r)
	case "IN":
		return evalIn(l, r)
	case "STARTS WITH":
		return evalStringPred(l, r, strings.HasPrefix)
	case "ENDS WITH":
		return evalStringPred(l, r, strings.HasSuffix)
	case "CONTAINS":
		return evalStringPred(l, r, strings.Contains)
	}
	return Value{}, newPlanError("unknown binary operator %q", t.Op)
}

func evalKleeneAnd(t *BinOp, row Row, env *Env) (Value, error) {
	l, err := Eval(t.Left, row, env)
	if err != nil {
		return Value{}, err
	}
	if l.Kind == VKBool && !l.Bool {
		return BoolValue(false), nil
	}
	r, err := Eval(t.Right, row, env)
	if err != nil {
		return Value{}, err
	}
	if r.Kind == VKBool && !r.Bool {
		return BoolValue(false), nil
	}
	if l.IsNull() || r.IsNull() {
		return NullValue(), nil
	}
	if l.Kind == VKBool && r.Kind == VKBool {
		return BoolValue(l.Bool && r.Bool), nil
	}
	return NullValue(), nil
}

func evalKleeneOr(t *BinOp, row Row, env *Env) (Value, error) {
	l, err := Eval(t.Left, row, env)
	if err != nil {
		return Value{}, err
	}
	if l.Kind == VKBool && l.Bool {
		return BoolValue(true), nil
	}
	r, err := Eval(t.Right, row, env)
	if err != nil {
		return Value{}, err
	}
	if r.Kind == VKBool && r.Bool {
		return BoolValue(true), nil
	}
	if l.IsNull() || r.IsNull() {
		return NullValue(), nil
	}
	if l.Kind == VKBool && r.Kind == VKBool {
		return BoolValue(l.Bool || r.Bool), nil
	}
	return NullValue(), nil
}

func evalArithmetic(op string, l, r Value) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return NullValue(), nil
	}
	if op == "+" && l.Kind == VKString {
		rs := r.Str
		if r.Kind != VKString {
			rs = fmt.Sprint(valueGoNative(r))
		}
		return StringValue(l.Str + rs), nil
	}
	if op == "+" && l.Kind == VKList {
		if r.Kind == VKList {
			return ListValue(append(append([]Value(nil), l.List...), r.List...)), nil
		}
		return ListValue(append(append([]Value(nil), l.List...), r)), nil
	}
	lf, lok := l.AsFloat()
	rf, rok := r.AsFloat()
	if !lok || !rok {
		return NullValue(), nil
	}
	if l.Kind == VKInt && r.Kind == VKInt {
		li, ri := l.Int, r.Int
		switch op {
		case "+":
			return IntValue(li + ri), nil
		case "-":
			return IntValue(li - ri), nil
		case "*":
			return IntValue(li * ri), nil
		case "/":
			if ri == 0 {
				return NullValue(), nil
			}
			return IntValue(li / ri), nil
		case "%":
			if ri == 0 {
				return NullValue(), nil
			}
			return IntValue(li % ri), nil
		case "^":
			return FloatValue(math.Pow(lf, rf)), nil
		}
	}
	switch op {
	case "+":
		return FloatValue(lf + rf), nil
	case "-":
		return FloatValue(lf - rf), nil
	case "*":
		return FloatValue(lf * rf), nil
	case "/":
		if rf == 0 {
			return NullValue(), nil
		}
		return FloatValue(lf / rf), nil
	case "%":
		return FloatValue(math.Mod(lf, rf)), nil
	case "^":
		return FloatValue(math.Pow(lf, rf)), nil
	}
	return NullValue(), nil
}

func evalOrderingComparison(op string, l, r Value) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return NullValue(), nil
	}
	var cmp int
	switch {
	case l.Kind == VKString && r.Kind == VKString:
		cmp = strings.Compare(l.Str, r.Str)
	default:
		lf, lok := l.AsFloat()
		rf, rok := r.AsFloat()
		if !lok || !rok {
			return NullValue(), nil
		}
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch op {
	case "<":
		return BoolValue(cmp < 0), nil
	case "<=":
		return BoolValue(cmp <= 0), nil
	case ">":
		return BoolValue(cmp > 0), nil
	case ">=":
		return BoolValue(cmp >= 0), nil
	}
	return NullValue(), nil
}

func evalIn(l, r Value) (Value, error) {
	if r.Kind != VKList {
		return NullValue(), nil
	}
	if l.IsNull() {
		return NullValue(), nil
	}
	for _, item := range r.List {
		if !item.IsNull() && item.Equal(l) {
			return BoolValue(true), nil
		}
	}
	return BoolValue(false), nil
}

func evalStringPred(l, r Value, pred func(s, sub string) bool) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return NullValue(), nil
	}
	if l.Kind != VKString || r.Kind != VKString {
		return NullValue(), nil
	}
	return BoolValue(pred(l.Str, r.Str)), nil
}

func evalListComp(t *ListComp, row Row, env *Env) (Value, error) {
	listV, err := Eval(t.List, row, env)
	if err != nil {
		return Value{}, err
	}
	if listV.Kind != VKList {
		return ListValue(nil), nil
	}
	out := make([]Value, 0, len(listV.List))
	for _, item := range listV.List {
		sub := row.clone()
		sub[t.Variable] = item
		if t.Where != nil {
			cond, err := Eval(t.Where, sub, env)
			if err != nil {
				return Value{}, err
			}
			if cond.Kind != VKBool || !cond.Bool {
				continue
			}
		}
		if t.Project != nil {
			v, err := Eval(t.Project, sub, env)
			if err != nil {
				return Value{}, err
			}
			out = append(out, v)
		} else {
			out = append(out, item)
		}
	}
	return ListValue(out), nil
}

func evalCase(t *CaseExpr, row Row, env *Env) (Value, error) {
	var testVal Value
	if t.Test != nil {
		v, err := Eval(t.Test, row, env)
		if err != nil {
			return Value{}, err
		}
		testVal = v
	}
	for _, w := range t.Whens {
		if t.Test != nil {
			condVal, err := Eval(w.Cond, row, env)
			if err != nil {
				return Value{}, err
			}
			if testVal.Equal(condVal) {
				return Eval(w.Then, row, env)
			}
			continue
		}
		condVal, err := Eval(w.Cond, row, env)
		if err != nil {
			return Value{}, err
		}
		if condVal.Kind == VKBool && condVal.Bool {
			return Eval(w.Then, row, env)
		}
	}
	if t.Else != nil {
		return Eval(t.Else, row, env)
	}
	return NullValue(), nil
}

func evalExists(t *Exists, row Row, env *Env) (Value, error) {
	if t.Expr != nil {
		v, err := Eval(t.Expr, row, env)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(!v.IsNull()), nil
	}
	op, err := buildExpand(t.Pattern, &valuesOp{rows: []Row{row}}, env.PathAliases)
	if err != nil {
		return Value{}, err
	}
	if err := op.Open(env); err != nil {
		return Value{}, err
	}
	defer op.Close()
	_, ok, err := op.Next()
	if err != nil {
		return Value{}, err
	}
	return BoolValue(ok), nil
}

func valueGoNative(v Value) any {
	switch v.Kind {
	case VKInt:
		return v.Int
	case VKFloat:
		return v.Float
	case VKBool:
		return v.Bool
	case VKString:
		return v.Str
	default:
		return nil
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
