package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/propval"
)

// appendRunToWAL must reproduce a frozen run exactly through Replay, so a
// compaction-time WAL rewrite loses none of the transactions committed
// past the compaction horizon.
func TestAppendRunToWALRoundTrip(t *testing.T) {
	mt := NewMemTable()
	mt.CreateNode(1, 77, true, []SymbolID{2})
	mt.CreateNode(2, 0, false, nil)
	mt.CreateEdge(EdgeKey{Src: 1, Rel: 3, Dst: 2})
	mt.CreateEdge(EdgeKey{Src: 1, Rel: 3, Dst: 2}) // multiplicity 2
	mt.SetNodeProperty(1, 4, propval.String("x"))
	mt.SetEdgeProperty(EdgeKey{Src: 1, Rel: 3, Dst: 2}, 5, propval.Int(9))
	mt.AddLabel(2, 6)
	mt.TombstoneNode(8)
	mt.TombstoneEdge(EdgeKey{Src: 9, Rel: 3, Dst: 9})
	run := mt.FreezeIntoRun(42)

	path := filepath.Join(t.TempDir(), "graph.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	require.NoError(t, appendRunToWAL(w, run))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	txs, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.EqualValues(t, 42, txs[0].TxID)

	back := NewMemTable()
	for _, rec := range txs[0].Records {
		require.NoError(t, applyRecordToMemTable(back, rec))
	}
	rebuilt := back.FreezeIntoRun(42)

	require.Equal(t, run.CreatedNodes, rebuilt.CreatedNodes)
	require.Equal(t, run.EdgesBySrc, rebuilt.EdgesBySrc)
	require.Equal(t, run.TombstonedNodes, rebuilt.TombstonedNodes)
	require.Equal(t, run.TombstonedEdges, rebuilt.TombstonedEdges)
	require.Equal(t, run.NodeProps, rebuilt.NodeProps)
	require.Equal(t, run.EdgeProps, rebuilt.EdgeProps)
	require.Equal(t, run.AddedLabels, rebuilt.AddedLabels)
	require.Equal(t, run.RemovedLabels, rebuilt.RemovedLabels)
}
