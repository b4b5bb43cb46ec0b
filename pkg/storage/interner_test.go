package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

func TestInternerGetOrCreate(t *testing.T) {
	in := storage.NewInterner()
	id1 := in.GetOrCreate("Person")
	id2 := in.GetOrCreate("Person")
	id3 := in.GetOrCreate("Company")

	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotZero(t, id1)
}

// Within a snapshot, resolving a known name to its id and back returns
// the same name.
func TestInternerSnapshotStability(t *testing.T) {
	in := storage.NewInterner()
	names := []string{"Person", "Company", "KNOWS", "name", "age"}
	ids := make(map[string]storage.SymbolID)
	for _, n := range names {
		ids[n] = in.GetOrCreate(n)
	}

	snap := in.Snapshot()
	for _, n := range names {
		id, ok := snap.ID(n)
		require.True(t, ok)
		require.Equal(t, ids[n], id)

		name, ok := snap.Name(id)
		require.True(t, ok)
		require.Equal(t, n, name)
	}
}

func TestInternerSnapshotIsolatedFromLaterWrites(t *testing.T) {
	in := storage.NewInterner()
	in.GetOrCreate("A")
	snap := in.Snapshot()

	in.GetOrCreate("B")

	_, ok := snap.ID("B")
	require.False(t, ok, "snapshot must not observe symbols interned after it was taken")
}

func TestInternerBulkIntern(t *testing.T) {
	in := storage.NewInterner()
	ids := in.BulkIntern([]string{"A", "B", "A", "C", "B"})
	require.Equal(t, ids[0], ids[2])
	require.Equal(t, ids[1], ids[4])
	require.NotEqual(t, ids[0], ids[1])
	require.NotEqual(t, ids[0], ids[3])
}

func TestInternerRestorePreservesID(t *testing.T) {
	in := storage.NewInterner()
	in.Restore(5, "Restored")
	id := in.GetOrCreate("Restored")
	require.EqualValues(t, 5, id)

	next := in.GetOrCreate("Next")
	require.Greater(t, next, storage.SymbolID(5))
}
