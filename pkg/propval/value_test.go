package propval_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/propval"
)

// decode(encode(v)) == v for every constructed Value.
func TestRoundTrip(t *testing.T) {
	cases := []propval.Value{
		propval.Null(),
		propval.Bool(true),
		propval.Bool(false),
		propval.Int(0),
		propval.Int(-1),
		propval.Int(math.MaxInt64),
		propval.Int(math.MinInt64),
		propval.Float(0),
		propval.Float(-123.456),
		propval.String(""),
		propval.String("hello, 世界"),
		propval.List(),
		propval.List(propval.Int(1), propval.String("a"), propval.Bool(true)),
		propval.Map(map[string]propval.Value{
			"a": propval.Int(1),
			"b": propval.List(propval.Float(2.5), propval.Null()),
		}),
	}

	for _, v := range cases {
		data := v.Encode()
		back, n, err := propval.Decode(data)
		require.NoError(t, err)
		require.Equal(t, len(data), n)
		require.True(t, v.Equal(back), "round-trip mismatch for %v", v)
	}
}

func TestRoundTripNested(t *testing.T) {
	v := propval.List(
		propval.Map(map[string]propval.Value{
			"nested": propval.List(propval.Int(1), propval.Int(2), propval.Int(3)),
		}),
	)
	data := v.Encode()
	back, _, err := propval.Decode(data)
	require.NoError(t, err)
	require.True(t, v.Equal(back))
}

func TestAsFloatProjection(t *testing.T) {
	f, ok := propval.Int(42).AsFloat()
	require.True(t, ok)
	require.Equal(t, float64(42), f)

	f, ok = propval.Float(3.5).AsFloat()
	require.True(t, ok)
	require.Equal(t, 3.5, f)

	_, ok = propval.String("x").AsFloat()
	require.False(t, ok)
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := propval.Decode(nil)
	require.ErrorIs(t, err, propval.ErrTruncated)

	v := propval.String("hello")
	data := v.Encode()
	_, _, err = propval.Decode(data[:len(data)-1])
	require.ErrorIs(t, err, propval.ErrTruncated)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, _, err := propval.Decode([]byte{0xFF})
	require.ErrorIs(t, err, propval.ErrUnknownTag)
}
