package storage_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

func newBlobStore(t *testing.T) *storage.BlobStore {
	t.Helper()
	p, err := storage.OpenPager(filepath.Join(t.TempDir(), "graph.ndb"))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return storage.NewBlobStore(p)
}

func TestBlobStoreSmallValue(t *testing.T) {
	bs := newBlobStore(t)
	h, err := bs.Write([]byte("hello"))
	require.NoError(t, err)

	back, err := bs.Read(h)
	require.NoError(t, err)
	require.Equal(t, "hello", string(back))
}

// A multi-page value round-trips exactly.
func TestBlobStoreLargeValue(t *testing.T) {
	bs := newBlobStore(t)
	payload := strings.Repeat("A", 10000)

	h, err := bs.Write([]byte(payload))
	require.NoError(t, err)
	require.EqualValues(t, 10000, h.Length)

	back, err := bs.Read(h)
	require.NoError(t, err)
	require.Equal(t, payload, string(back))
}

func TestBlobStoreEmptyValue(t *testing.T) {
	bs := newBlobStore(t)
	h, err := bs.Write(nil)
	require.NoError(t, err)
	back, err := bs.Read(h)
	require.NoError(t, err)
	require.Empty(t, back)
}

func TestBlobStoreMultipleChains(t *testing.T) {
	bs := newBlobStore(t)
	a := strings.Repeat("a", 9000)
	b := strings.Repeat("b", 3000)

	ha, err := bs.Write([]byte(a))
	require.NoError(t, err)
	hb, err := bs.Write([]byte(b))
	require.NoError(t, err)

	backA, err := bs.Read(ha)
	require.NoError(t, err)
	backB, err := bs.Read(hb)
	require.NoError(t, err)
	require.Equal(t, a, string(backA))
	require.Equal(t, b, string(backB))
}
