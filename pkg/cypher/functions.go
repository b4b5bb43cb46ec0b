package cypher

import (
	"strconv"
	"strings"
	"time"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

// evalCall dispatches a built-in function call. Unknown
// function names return a *NotImplementedError rather than panicking, matching the
// "recoverable / per-operation" error policy of §7.
func evalCall(t *Call, row Row, env *Env) (Value, error) {
	args := make([]Value, 0, len(t.Args))
	for _, a := range t.Args {
		if lit, ok := a.(*Literal); ok && lit.Value == "*" {
			args = append(args, StringValue("*"))
			continue
		}
		v, err := Eval(a, row, env)
		if err != nil {
			return Value{}, err
		}
		args = append(args, v)
	}
	name := strings.ToLower(t.Name)
	fn, ok := builtins[name]
	if !ok {
		return Value{}, newNotImplemented("function " + t.Name)
	}
	return fn(args, env)
}

type builtinFn func(args []Value, env *Env) (Value, error)

var builtins map[string]builtinFn

func init() {
	builtins = map[string]builtinFn{
		"size":       fnSize,
		"head":       fnHead,
		"tail":       fnTail,
		"last":       fnLast,
		"keys":       fnKeys,
		"type":       fnType,
		"id":         fnID,
		"labels":     fnLabels,
		"properties": fnProperties,
		"tostring":   fnToString,
		"tointeger":  fnToInteger,
		"tofloat":    fnToFloat,
		"toboolean":  fnToBoolean,
		"abs":        fnAbs,
		"toupper":    fnToUpper,
		"tolower":    fnToLower,
		"trim":       fnTrim,
		"replace":    fnReplace,
		"substring":  fnSubstring,
		"split":      fnSplit,
		"range":      fnRange,
		"reverse":    fnReverse,
		"time":       fnTime,
		"datetime":   fnDatetime,
		"offset":     fnOffset,
	}
}

func fnSize(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return Value{}, newPlanError("size() takes 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case VKList:
		return IntValue(int64(len(v.List))), nil
	case VKString:
		return IntValue(int64(len([]rune(v.Str)))), nil
	case VKMap:
		return IntValue(int64(len(v.Map))), nil
	case VKNull:
		return NullValue(), nil
	default:
		return NullValue(), nil
	}
}

func fnHead(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKList {
		return NullValue(), nil
	}
	if len(args[0].List) == 0 {
		return NullValue(), nil
	}
	return args[0].List[0], nil
}

func fnTail(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKList {
		return ListValue(nil), nil
	}
	if len(args[0].List) <= 1 {
		return ListValue(nil), nil
	}
	return ListValue(append([]Value(nil), args[0].List[1:]...)), nil
}

func fnLast(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKList || len(args[0].List) == 0 {
		return NullValue(), nil
	}
	return args[0].List[len(args[0].List)-1], nil
}

func fnKeys(args []Value, env *Env) (Value, error) {
	if len(args) != 1 {
		return ListValue(nil), nil
	}
	var m map[string]Value
	switch args[0].Kind {
	case VKMap:
		m = args[0].Map
	case VKNode:
		m = args[0].Node.Properties
	case VKNodeID:
		_, m = resolveNodeLabelsAndProps(env, args[0].NodeID)
	case VKEdge:
		m = args[0].Edge.Properties
	default:
		return ListValue(nil), nil
	}
	out := make([]Value, 0, len(m))
	for k := range m {
		out = append(out, StringValue(k))
	}
	return ListValue(out), nil
}

func fnType(args []Value, env *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	var k storage.EdgeKey
	switch args[0].Kind {
	case VKEdge:
		k = args[0].Edge.Key
	case VKEdgeKey:
		k = args[0].EdgeKey
	default:
		return NullValue(), nil
	}
	name, ok := env.Snapshot.ResolveLabelName(k.Rel)
	if !ok {
		return NullValue(), nil
	}
	return StringValue(name), nil
}

func fnID(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	if id, ok := args[0].AsNodeID(); ok {
		return IntValue(int64(id)), nil
	}
	return NullValue(), nil
}

func fnLabels(args []Value, env *Env) (Value, error) {
	if len(args) != 1 {
		return ListValue(nil), nil
	}
	id, ok := args[0].AsNodeID()
	if !ok {
		return ListValue(nil), nil
	}
	labels, _ := resolveNodeLabelsAndProps(env, id)
	out := make([]Value, len(labels))
	for i, l := range labels {
		out[i] = StringValue(l)
	}
	return ListValue(out), nil
}

func fnProperties(args []Value, env *Env) (Value, error) {
	if len(args) != 1 {
		return MapValue(nil), nil
	}
	switch args[0].Kind {
	case VKNodeID, VKNode:
		id, _ := args[0].AsNodeID()
		_, props := resolveNodeLabelsAndProps(env, id)
		return MapValue(props), nil
	case VKEdge:
		return MapValue(args[0].Edge.Properties), nil
	case VKMap:
		return args[0], nil
	}
	return MapValue(nil), nil
}

func fnToString(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	v := args[0]
	switch v.Kind {
	case VKString:
		return v, nil
	case VKInt:
		return StringValue(strconv.FormatInt(v.Int, 10)), nil
	case VKFloat:
		return StringValue(formatFloat(v.Float)), nil
	case VKBool:
		return StringValue(strconv.FormatBool(v.Bool)), nil
	case VKNull:
		return NullValue(), nil
	default:
		return NullValue(), nil
	}
}

func fnToInteger(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	switch v := args[0]; v.Kind {
	case VKInt:
		return v, nil
	case VKFloat:
		return IntValue(int64(v.Float)), nil
	case VKString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return NullValue(), nil
		}
		return IntValue(n), nil
	default:
		return NullValue(), nil
	}
}

func fnToFloat(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	switch v := args[0]; v.Kind {
	case VKFloat:
		return v, nil
	case VKInt:
		return FloatValue(float64(v.Int)), nil
	case VKString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return NullValue(), nil
		}
		return FloatValue(f), nil
	default:
		return NullValue(), nil
	}
}

func fnToBoolean(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	switch v := args[0]; v.Kind {
	case VKBool:
		return v, nil
	case VKString:
		switch strings.ToLower(v.Str) {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		return NullValue(), nil
	default:
		return NullValue(), nil
	}
}

func fnAbs(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	switch v := args[0]; v.Kind {
	case VKInt:
		if v.Int < 0 {
			return IntValue(-v.Int), nil
		}
		return v, nil
	case VKFloat:
		if v.Float < 0 {
			return FloatValue(-v.Float), nil
		}
		return v, nil
	default:
		return NullValue(), nil
	}
}

func fnToUpper(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKString {
		return NullValue(), nil
	}
	return StringValue(strings.ToUpper(args[0].Str)), nil
}

func fnToLower(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKString {
		return NullValue(), nil
	}
	return StringValue(strings.ToLower(args[0].Str)), nil
}

func fnTrim(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 || args[0].Kind != VKString {
		return NullValue(), nil
	}
	return StringValue(strings.TrimSpace(args[0].Str)), nil
}

func fnReplace(args []Value, _ *Env) (Value, error) {
	if len(args) != 3 {
		return NullValue(), nil
	}
	if args[0].Kind != VKString || args[1].Kind != VKString || args[2].Kind != VKString {
		return NullValue(), nil
	}
	return StringValue(strings.ReplaceAll(args[0].Str, args[1].Str, args[2].Str)), nil
}

func fnSubstring(args []Value, _ *Env) (Value, error) {
	if len(args) < 2 || args[0].Kind != VKString {
		return NullValue(), nil
	}
	s := []rune(args[0].Str)
	start, _ := args[1].AsFloat()
	from := int(start)
	if from < 0 {
		from = 0
	}
	if from > len(s) {
		from = len(s)
	}
	to := len(s)
	if len(args) >= 3 {
		length, _ := args[2].AsFloat()
		to = from + int(length)
		if to > len(s) {
			to = len(s)
		}
	}
	return StringValue(string(s[from:to])), nil
}

func fnSplit(args []Value, _ *Env) (Value, error) {
	if len(args) != 2 || args[0].Kind != VKString || args[1].Kind != VKString {
		return ListValue(nil), nil
	}
	parts := strings.Split(args[0].Str, args[1].Str)
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = StringValue(p)
	}
	return ListValue(out), nil
}

func fnRange(args []Value, _ *Env) (Value, error) {
	if len(args) < 2 {
		return ListValue(nil), nil
	}
	lo, _ := args[0].AsFloat()
	hi, _ := args[1].AsFloat()
	step := 1.0
	if len(args) >= 3 {
		if s, ok := args[2].AsFloat(); ok && s != 0 {
			step = s
		}
	}
	var out []Value
	if step > 0 {
		for v := lo; v <= hi; v += step {
			out = append(out, IntValue(int64(v)))
		}
	} else {
		for v := lo; v >= hi; v += step {
			out = append(out, IntValue(int64(v)))
		}
	}
	return ListValue(out), nil
}

func fnReverse(args []Value, _ *Env) (Value, error) {
	if len(args) != 1 {
		return NullValue(), nil
	}
	switch args[0].Kind {
	case VKString:
		r := []rune(args[0].Str)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return StringValue(string(r)), nil
	case VKList:
		out := append([]Value(nil), args[0].List...)
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return ListValue(out), nil
	default:
		return NullValue(), nil
	}
}

// formatTemporal renders t in an RFC-3339-like form with trailing-zero
// fractional seconds trimmed.
func formatTemporal(t time.Time, withDate bool) string {
	layout := "15:04:05.999999999Z07:00"
	if withDate {
		layout = "2006-01-02T15:04:05.999999999Z07:00"
	}
	s := t.Format(layout)
	return s
}

func fnTime(args []Value, _ *Env) (Value, error) {
	now := time.Now().UTC()
	if len(args) == 1 && args[0].Kind == VKString {
		parsed, err := time.Parse("15:04:05.999999999Z07:00", args[0].Str)
		if err == nil {
			now = parsed
		}
	}
	return StringValue(formatTemporal(now, false)), nil
}

func fnDatetime(args []Value, _ *Env) (Value, error) {
	now := time.Now().UTC()
	if len(args) == 1 && args[0].Kind == VKString {
		parsed, err := time.Parse(time.RFC3339Nano, args[0].Str)
		if err == nil {
			now = parsed
		}
	}
	return StringValue(formatTemporal(now, true)), nil
}

// fnOffset renders just the UTC-offset component of a temporal value,
// completing the temporal formatter trio with time() and datetime().
func fnOffset(args []Value, _ *Env) (Value, error) {
	now := time.Now().UTC()
	if len(args) == 1 && args[0].Kind == VKString {
		parsed, err := time.Parse(time.RFC3339Nano, args[0].Str)
		if err == nil {
			now = parsed
		}
	}
	return StringValue(now.Format("Z07:00")), nil
}
