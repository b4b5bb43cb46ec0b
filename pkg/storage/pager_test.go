package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

func TestPagerAllocateAndReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.ndb")
	p, err := storage.OpenPager(path)
	require.NoError(t, err)
	defer p.Close()

	id, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, storage.PageID(0), id)

	data := make([]byte, storage.PageSize)
	data[0] = 0xAB
	require.NoError(t, p.WritePage(id, data))

	back, err := p.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestPagerZeroInitialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.ndb")
	p, err := storage.OpenPager(path)
	require.NoError(t, err)
	defer p.Close()

	id, err := p.Allocate()
	require.NoError(t, err)
	data, err := p.ReadPage(id)
	require.NoError(t, err)
	for _, b := range data {
		require.Zero(t, b)
	}
}

func TestPagerOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.ndb")
	p, err := storage.OpenPager(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.ReadPage(42)
	require.Error(t, err)
	var rangeErr *storage.PageIDOutOfRangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestPagerReopenPreservesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.ndb")
	p, err := storage.OpenPager(path)
	require.NoError(t, err)
	_, err = p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Close())

	p2, err := storage.OpenPager(path)
	require.NoError(t, err)
	defer p2.Close()
	require.EqualValues(t, 1, p2.PageCount())
}

func TestPagerInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.ndb")
	require.NoError(t, os.WriteFile(path, []byte("not a nervusdb file at all, padded out long enough"), 0o644))

	_, err := storage.OpenPager(path)
	require.ErrorIs(t, err, storage.ErrInvalidMagic)
}
