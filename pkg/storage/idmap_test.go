package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

func TestIdMapAssignIsMonotonic(t *testing.T) {
	m := storage.NewIdMap()
	a := m.Assign(0, false)
	b := m.Assign(0, false)
	require.Less(t, a, b)
}

func TestIdMapExternalResolution(t *testing.T) {
	m := storage.NewIdMap()
	id := m.Assign(42, true)

	got, ok := m.ResolveExternal(42)
	require.True(t, ok)
	require.Equal(t, id, got)

	ext, ok := m.ExternalID(id)
	require.True(t, ok)
	require.EqualValues(t, 42, ext)
}

func TestIdMapTombstoneRemovesFromLive(t *testing.T) {
	m := storage.NewIdMap()
	id := m.Assign(0, false)
	require.True(t, m.Contains(id))
	m.Tombstone(id)
	require.False(t, m.Contains(id))
}

func TestIdMapIterLiveAscending(t *testing.T) {
	m := storage.NewIdMap()
	var ids []storage.NodeID
	for i := 0; i < 5; i++ {
		ids = append(ids, m.Assign(0, false))
	}
	m.Tombstone(ids[2])

	var seen []storage.NodeID
	m.IterLive(func(id storage.NodeID) bool {
		seen = append(seen, id)
		return true
	})

	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}
}

func TestIdMapRestoreAdvancesCounter(t *testing.T) {
	m := storage.NewIdMap()
	m.Restore(100)
	next := m.Assign(0, false)
	require.Greater(t, next, storage.NodeID(100))
}
