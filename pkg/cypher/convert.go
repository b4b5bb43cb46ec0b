package cypher

import (
	"github.com/nervus-db/nervusdb/pkg/propval"
)

// propvalToValue lifts a stored propval.Value into the richer row-level
// Value type used by the evaluator and executor.
func propvalToValue(pv propval.Value) Value {
	switch pv.Kind() {
	case propval.KindNull:
		return NullValue()
	case propval.KindBool:
		b, _ := pv.AsBool()
		return BoolValue(b)
	case propval.KindInt:
		i, _ := pv.AsInt()
		return IntValue(i)
	case propval.KindFloat:
		f, _ := pv.AsFloat()
		return FloatValue(f)
	case propval.KindString:
		s, _ := pv.AsString()
		return StringValue(s)
	case propval.KindList:
		items, _ := pv.AsList()
		out := make([]Value, len(items))
		for i, it := range items {
			out[i] = propvalToValue(it)
		}
		return ListValue(out)
	case propval.KindMap:
		m, _ := pv.AsMap()
		out := make(map[string]Value, len(m))
		for k, v := range m {
			out[k] = propvalToValue(v)
		}
		return MapValue(out)
	default:
		return NullValue()
	}
}

// valueToPropval lowers a row-level Value back into the storage-facing
// propval.Value for SET/CREATE property writes. Node/Edge/Path values have
// no storage representation and are rejected with an evaluation-time
// error by the caller before reaching here.
func valueToPropval(v Value) (propval.Value, bool) {
	switch v.Kind {
	case VKNull:
		return propval.Null(), true
	case VKBool:
		return propval.Bool(v.Bool), true
	case VKInt:
		return propval.Int(v.Int), true
	case VKFloat:
		return propval.Float(v.Float), true
	case VKString:
		return propval.String(v.Str), true
	case VKList:
		items := make([]propval.Value, 0, len(v.List))
		for _, it := range v.List {
			pv, ok := valueToPropval(it)
			if !ok {
				return propval.Value{}, false
			}
			items = append(items, pv)
		}
		return propval.List(items...), true
	case VKMap:
		m := make(map[string]propval.Value, len(v.Map))
		for k, mv := range v.Map {
			pv, ok := valueToPropval(mv)
			if !ok {
				return propval.Value{}, false
			}
			m[k] = pv
		}
		return propval.Map(m), true
	default:
		return propval.Value{}, false
	}
}

