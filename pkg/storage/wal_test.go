package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/storage"
)

func writeTx(t *testing.T, w *storage.WAL, txid uint64, payloads ...string) {
	t.Helper()
	require.NoError(t, w.Append(storage.RecBeginTx, storage.EncodeUvarint(txid)))
	for _, p := range payloads {
		require.NoError(t, w.Append(storage.RecNodeCreate, []byte(p)))
	}
	require.NoError(t, w.Append(storage.RecCommit, nil))
	require.NoError(t, w.Sync())
}

func TestWALReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.wal")
	w, err := storage.OpenWAL(path)
	require.NoError(t, err)

	writeTx(t, w, 1, "a", "b")
	writeTx(t, w, 2, "c")
	require.NoError(t, w.Close())

	txs, err := storage.Replay(path)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.EqualValues(t, 1, txs[0].TxID)
	require.Len(t, txs[0].Records, 2)
	require.EqualValues(t, 2, txs[1].TxID)
	require.Len(t, txs[1].Records, 1)
}

// Truncating the WAL at any byte offset and replaying yields a prefix
// of committed transactions, never a partial one.
func TestWALTruncationYieldsCommittedPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.wal")
	w, err := storage.OpenWAL(path)
	require.NoError(t, err)
	writeTx(t, w, 1, "a")
	writeTx(t, w, 2, "b")
	require.NoError(t, w.Close())

	full, err := os.ReadFile(path)
	require.NoError(t, err)

	for cut := 0; cut <= len(full); cut++ {
		truncPath := filepath.Join(t.TempDir(), "cut.wal")
		require.NoError(t, os.WriteFile(truncPath, full[:cut], 0o644))

		txs, err := storage.Replay(truncPath)
		require.NoError(t, err, "cut=%d", cut)

		// Every returned transaction must be a full, valid one: either
		// {1} alone, or {1,2} — never a one-off mutation that never got a
		// BeginTx/Commit pair, and never more than were written.
		require.LessOrEqual(t, len(txs), 2)
		for i, tx := range txs {
			require.EqualValues(t, i+1, tx.TxID)
		}
	}
}

func TestWALTruncatedMidRecordDiscardsTrailingTx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.wal")
	w, err := storage.OpenWAL(path)
	require.NoError(t, err)
	writeTx(t, w, 1, "a")
	require.NoError(t, w.Append(storage.RecBeginTx, storage.EncodeUvarint(2)))
	require.NoError(t, w.Append(storage.RecNodeCreate, []byte("partial")))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	// No Commit record was ever written for txid=2: replay must only see
	// txid=1.
	txs, err := storage.Replay(path)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.EqualValues(t, 1, txs[0].TxID)
}

// A corrupt frame with intact data after it is structural damage, not a
// torn tail, and must refuse to replay.
func TestWALMidFileCorruptionSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.wal")
	w, err := storage.OpenWAL(path)
	require.NoError(t, err)
	writeTx(t, w, 1, "aaaa")
	writeTx(t, w, 2, "bbbb")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a payload byte inside the first transaction's NodeCreate frame:
	// the BeginTx frame occupies the first 10 bytes, the NodeCreate frame's
	// 8-byte header follows, so offset 20 lands in its payload.
	data[20] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = storage.Replay(path)
	var mismatch *storage.WALChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestWALEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.wal")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	txs, err := storage.Replay(path)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestWALMissingFile(t *testing.T) {
	txs, err := storage.Replay(filepath.Join(t.TempDir(), "nope.wal"))
	require.NoError(t, err)
	require.Empty(t, txs)
}
