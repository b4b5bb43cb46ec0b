// Package propval implements the self-describing property-value encoding
// shared by the storage engine and the Cypher query core.
//
// A Value is a tagged union over Null, Bool, Int, Float, String, List, and
// Map, matching the property model every node and edge carries. Values
// encode to a byte format with a round-trip guarantee: decoding the bytes
// produced by Encode always reproduces an equal Value.
//
// Example Usage:
//
//	v := propval.String("Alice")
//	data := v.Encode()
//	back, _, err := propval.Decode(data)
//	// back.Equal(v) == true
package propval

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// ErrTruncated is returned by Decode when the input ends before a complete
// value has been read.
var ErrTruncated = errors.New("propval: truncated encoding")

// ErrUnknownTag is returned by Decode when the leading byte does not match
// any known Kind.
var ErrUnknownTag = errors.New("propval: unknown tag byte")

// Value is an immutable tagged property value.
//
// Zero value is Null. Values are copied by assignment for scalar kinds;
// List and Map share backing storage with their source unless cloned via
// Clone.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a 64-bit signed integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps an IEEE-754 double.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a UTF-8 string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps an ordered sequence of values.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Map wraps a string-keyed map of values.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind reports the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v is an Int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns a lossless-enough float64 projection of Int or Float
// values, and false for every other kind.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload and whether v is a String.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the element slice and whether v is a List.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the backing map and whether v is a Map.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Equal reports deep equality between two values, including across List and
// Map elements.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, vv := range v.m {
			ov, ok := o.m[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Encode serializes v to its self-describing byte format.
//
// Layout: [tag byte][payload]. Null has no payload. Bool is one byte. Int is
// 8 bytes big-endian. Float is the 8-byte big-endian bit pattern. String is
// a varint length followed by UTF-8 bytes. List is a varint count followed
// by that many encoded values. Map is a varint count followed by that many
// (encoded key string length-prefixed, encoded value) pairs.
func (v Value) Encode() []byte {
	buf := make([]byte, 0, 16)
	return v.appendTo(buf)
}

func (v Value) appendTo(buf []byte) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.i))
		buf = append(buf, tmp[:]...)
	case KindFloat:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.f))
		buf = append(buf, tmp[:]...)
	case KindString:
		buf = appendVarint(buf, uint64(len(v.s)))
		buf = append(buf, v.s...)
	case KindList:
		buf = appendVarint(buf, uint64(len(v.list)))
		for _, elem := range v.list {
			buf = elem.appendTo(buf)
		}
	case KindMap:
		buf = appendVarint(buf, uint64(len(v.m)))
		for k, elem := range v.m {
			buf = appendVarint(buf, uint64(len(k)))
			buf = append(buf, k...)
			buf = elem.appendTo(buf)
		}
	}
	return buf
}

// Decode reads one Value from the front of data, returning the value and
// the number of bytes consumed.
func Decode(data []byte) (Value, int, error) {
	if len(data) < 1 {
		return Value{}, 0, ErrTruncated
	}
	kind := Kind(data[0])
	rest := data[1:]
	consumed := 1
	switch kind {
	case KindNull:
		return Null(), consumed, nil
	case KindBool:
		if len(rest) < 1 {
			return Value{}, 0, ErrTruncated
		}
		return Bool(rest[0] != 0), consumed + 1, nil
	case KindInt:
		if len(rest) < 8 {
			return Value{}, 0, ErrTruncated
		}
		return Int(int64(binary.BigEndian.Uint64(rest[:8]))), consumed + 8, nil
	case KindFloat:
		if len(rest) < 8 {
			return Value{}, 0, ErrTruncated
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(rest[:8]))), consumed + 8, nil
	case KindString:
		n, nLen, err := readVarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		rest = rest[nLen:]
		if uint64(len(rest)) < n {
			return Value{}, 0, ErrTruncated
		}
		return String(string(rest[:n])), consumed + nLen + int(n), nil
	case KindList:
		n, nLen, err := readVarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		rest = rest[nLen:]
		total := consumed + nLen
		elems := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			elem, used, err := Decode(rest)
			if err != nil {
				return Value{}, 0, err
			}
			elems = append(elems, elem)
			rest = rest[used:]
			total += used
		}
		return List(elems...), total, nil
	case KindMap:
		n, nLen, err := readVarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		rest = rest[nLen:]
		total := consumed + nLen
		m := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			kLen, kLenSize, err := readVarint(rest)
			if err != nil {
				return Value{}, 0, err
			}
			rest = rest[kLenSize:]
			total += kLenSize
			if uint64(len(rest)) < kLen {
				return Value{}, 0, ErrTruncated
			}
			key := string(rest[:kLen])
			rest = rest[kLen:]
			total += int(kLen)
			val, used, err := Decode(rest)
			if err != nil {
				return Value{}, 0, err
			}
			m[key] = val
			rest = rest[used:]
			total += used
		}
		return Map(m), total, nil
	default:
		return Value{}, 0, fmt.Errorf("%w: %d", ErrUnknownTag, kind)
	}
}

func appendVarint(buf []byte, n uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(tmp[:], n)
	return append(buf, tmp[:w]...)
}

func readVarint(data []byte) (uint64, int, error) {
	n, w := binary.Uvarint(data)
	if w <= 0 {
		return 0, 0, ErrTruncated
	}
	return n, w, nil
}

// String-render of a Value, used for plan explanations and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindList:
		return fmt.Sprintf("%v", v.list)
	case KindMap:
		return fmt.Sprintf("%v", v.m)
	}
	return "?"
}
