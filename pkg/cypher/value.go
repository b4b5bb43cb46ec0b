package cypher

import (
	"fmt"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	VKNull ValueKind = iota
	VKBool
	VKInt
	VKFloat
	VKString
	VKList
	VKMap
	VKNodeID
	VKNode
	VKEdgeKey
	VKEdge
	VKPath
)

// Value is the row-level value type the executor and evaluator operate
// on — richer than propval.Value because it must also carry node/edge/path
// handles that only make sense relative to a GraphSnapshot.
type Value struct {
	Kind ValueKind

	Bool   bool
	Int    int64
	Float  float64
	Str    string
	List   []Value
	Map    map[string]Value

	NodeID storage.NodeID
	Node   *MaterializedNode

	EdgeKey storage.EdgeKey
	Edge    *MaterializedEdge

	Path *PathValue
}

// MaterializedNode is the fully realized form of a node value: id plus
// its current labels and properties (already name-resolved).
type MaterializedNode struct {
	ID         storage.NodeID
	Labels     []string
	Properties map[string]Value
}

// MaterializedEdge is the fully realized form of an edge value.
type MaterializedEdge struct {
	Key        storage.EdgeKey
	Type       string
	Properties map[string]Value
}

// PathValue threads the nodes and edges of a matched path, in traversal
// order.
type PathValue struct {
	Nodes []Value // VKNodeID or VKNode
	Edges []Value // VKEdgeKey or VKEdge
}

func NullValue() Value           { return Value{Kind: VKNull} }
func BoolValue(b bool) Value     { return Value{Kind: VKBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: VKInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: VKFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: VKString, Str: s} }
func ListValue(vs []Value) Value { return Value{Kind: VKList, List: vs} }
func MapValue(m map[string]Value) Value { return Value{Kind: VKMap, Map: m} }
func NodeIDValue(id storage.NodeID) Value { return Value{Kind: VKNodeID, NodeID: id} }
func NodeValue(n *MaterializedNode) Value { return Value{Kind: VKNode, Node: n, NodeID: n.ID} }
func EdgeKeyValue(k storage.EdgeKey) Value { return Value{Kind: VKEdgeKey, EdgeKey: k} }
func EdgeValue(e *MaterializedEdge) Value  { return Value{Kind: VKEdge, Edge: e, EdgeKey: e.Key} }
func PathValueOf(p *PathValue) Value       { return Value{Kind: VKPath, Path: p} }

func (v Value) IsNull() bool { return v.Kind == VKNull }

// AsNodeID returns the underlying node id for VKNodeID and VKNode values.
func (v Value) AsNodeID() (storage.NodeID, bool) {
	if v.Kind == VKNodeID || v.Kind == VKNode {
		return v.NodeID, true
	}
	return 0, false
}

// AsEdgeKey returns the underlying EdgeKey for VKEdgeKey and VKEdge values.
func (v Value) AsEdgeKey() (storage.EdgeKey, bool) {
	if v.Kind == VKEdgeKey || v.Kind == VKEdge {
		return v.EdgeKey, true
	}
	return storage.EdgeKey{}, false
}

// Equal is used by DISTINCT, IN, and `=`/`<>` comparisons. Kind mismatches
// between numeric kinds widen per Cypher semantics (Int/Float compare by
// value); every other mismatch is unequal, including Null (Null never
// equals anything, including itself, under three-valued logic — callers
// needing `IS NULL` semantics must check IsNull directly rather than rely
// on Equal).
func (v Value) Equal(o Value) bool {
	if v.Kind == VKNull || o.Kind == VKNull {
		return false
	}
	switch v.Kind {
	case VKInt:
		if o.Kind == VKInt {
			return v.Int == o.Int
		}
		if o.Kind == VKFloat {
			return float64(v.Int) == o.Float
		}
		return false
	case VKFloat:
		if o.Kind == VKFloat {
			return v.Float == o.Float
		}
		if o.Kind == VKInt {
			return v.Float == float64(o.Int)
		}
		return false
	case VKBool:
		return o.Kind == VKBool && v.Bool == o.Bool
	case VKString:
		return o.Kind == VKString && v.Str == o.Str
	case VKNodeID, VKNode:
		id, ok := v.AsNodeID()
		oid, ook := o.AsNodeID()
		return ok && ook && id == oid
	case VKEdgeKey, VKEdge:
		k, ok := v.AsEdgeKey()
		ok2, ook2 := o.AsEdgeKey()
		return ok && ook2 && k == ok2
	case VKList:
		if o.Kind != VKList || len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case VKMap:
		if o.Kind != VKMap || len(v.Map) != len(o.Map) {
			return false
		}
		for k, mv := range v.Map {
			ov, ok := o.Map[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// lessForSort produces a total order for ORDER BY across heterogeneous value
// kinds: Null sorts first, then numbers (by value), then booleans (false
// before true), then strings, then everything else by a stable textual
// fallback.
func (v Value) lessForSort(o Value) bool {
	rank := func(k ValueKind) int {
		switch k {
		case VKNull:
			return 0
		case VKInt, VKFloat:
			return 1
		case VKBool:
			return 2
		case VKString:
			return 3
		default:
			return 4
		}
	}
	rv, ro := rank(v.Kind), rank(o.Kind)
	if rv != ro {
		return rv < ro
	}
	switch v.Kind {
	case VKInt:
		of, _ := o.AsFloat()
		vf, _ := v.AsFloat()
		return vf < of
	case VKFloat:
		of, _ := o.AsFloat()
		return v.Float < of
	case VKBool:
		return !v.Bool && o.Bool
	case VKString:
		return v.Str < o.Str
	default:
		return fmt.Sprint(v) < fmt.Sprint(o)
	}
}

// AsFloat is the lossless numeric projection for Int/Float values.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case VKInt:
		return float64(v.Int), true
	case VKFloat:
		return v.Float, true
	}
	return 0, false
}
