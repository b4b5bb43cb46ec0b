package storage_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervus-db/nervusdb/pkg/config"
	"github.com/nervus-db/nervusdb/pkg/nervuscache"
	"github.com/nervus-db/nervusdb/pkg/propval"
	"github.com/nervus-db/nervusdb/pkg/storage"
)

func openTestEngine(t *testing.T) *storage.Engine {
	t.Helper()
	eng, err := storage.Open(t.TempDir(), config.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func neighborDsts(t *testing.T, snap *storage.Snapshot, src storage.NodeID, rel storage.SymbolID) []storage.NodeID {
	t.Helper()
	var out []storage.NodeID
	for k := range snap.Neighbors(src, &rel) {
		out = append(out, k.Dst)
	}
	return out
}

// Smoke test: one committed edge is visible to a fresh snapshot.
func TestEngineSmoke(t *testing.T) {
	eng := openTestEngine(t)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	personLabel, err := tx.GetOrCreateLabel("Person")
	require.NoError(t, err)
	knows, err := tx.GetOrCreateLabel("KNOWS")
	require.NoError(t, err)

	a, err := tx.CreateNode(10, true, personLabel)
	require.NoError(t, err)
	b, err := tx.CreateNode(20, true, personLabel)
	require.NoError(t, err)
	require.NoError(t, tx.CreateEdge(a, knows, b))
	require.NoError(t, tx.Commit())

	snap := eng.BeginRead()
	dsts := neighborDsts(t, snap, a, knows)
	require.Equal(t, []storage.NodeID{b}, dsts)
}

// A committed edge survives closing and reopening the engine.
func TestEnginePersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	eng, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	personLabel, err := tx.GetOrCreateLabel("Person")
	require.NoError(t, err)
	knows, err := tx.GetOrCreateLabel("KNOWS")
	require.NoError(t, err)
	a, err := tx.CreateNode(10, true, personLabel)
	require.NoError(t, err)
	b, err := tx.CreateNode(20, true, personLabel)
	require.NoError(t, err)
	require.NoError(t, tx.CreateEdge(a, knows, b))
	require.NoError(t, tx.Commit())
	require.NoError(t, eng.Close())

	reopened, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)
	defer reopened.Close()

	snap := reopened.BeginRead()
	dsts := neighborDsts(t, snap, a, knows)
	require.Equal(t, []storage.NodeID{b}, dsts)
}

// Compaction must not change what Neighbors returns.
func TestEngineCompactionPreservesNeighbors(t *testing.T) {
	eng := openTestEngine(t)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	knows, err := tx.GetOrCreateLabel("KNOWS")
	require.NoError(t, err)
	a, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	b, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	c, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	require.NoError(t, tx.CreateEdge(a, knows, b))
	require.NoError(t, tx.Commit())

	tx2, err := eng.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx2.CreateEdge(a, knows, c))
	require.NoError(t, tx2.Commit())

	before := eng.BeginRead()
	dsts := neighborDsts(t, before, a, knows)
	require.Len(t, dsts, 2)
	require.ElementsMatch(t, []storage.NodeID{b, c}, dsts)

	require.NoError(t, eng.Compact())

	after := eng.BeginRead()
	dsts = neighborDsts(t, after, a, knows)
	require.Len(t, dsts, 2)
	require.ElementsMatch(t, []storage.NodeID{b, c}, dsts)
}

// A property large enough to spill into the blob store round-trips
// through commit, compaction, and reopen.
func TestEngineLargePropertyOverflow(t *testing.T) {
	dir := t.TempDir()
	eng, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)

	payload := strings.Repeat("A", 10000)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	n, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	payloadKey, err := tx.GetOrCreateLabel("payload")
	require.NoError(t, err)
	require.NoError(t, tx.SetNodeProperty(n, payloadKey, propval.String(payload)))
	require.NoError(t, tx.Commit())

	assertPayload := func(snap *storage.Snapshot) {
		v, ok := snap.NodeProperty(n, payloadKey)
		require.True(t, ok)
		s, ok := v.AsString()
		require.True(t, ok)
		require.Equal(t, payload, s)
	}

	assertPayload(eng.BeginRead())

	require.NoError(t, eng.Compact())
	assertPayload(eng.BeginRead())

	require.NoError(t, eng.Close())
	reopened, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)
	defer reopened.Close()
	assertPayload(reopened.BeginRead())
}

// Snapshot isolation: a snapshot taken before a commit never observes
// that commit's writes, even after the commit completes.
func TestEngineSnapshotIsolation(t *testing.T) {
	eng := openTestEngine(t)

	tx0, err := eng.BeginWrite()
	require.NoError(t, err)
	knows, err := tx0.GetOrCreateLabel("KNOWS")
	require.NoError(t, err)
	a, err := tx0.CreateNode(0, false)
	require.NoError(t, err)
	b, err := tx0.CreateNode(0, false)
	require.NoError(t, err)
	require.NoError(t, tx0.Commit())

	before := eng.BeginRead()
	require.Empty(t, neighborDsts(t, before, a, knows))

	tx1, err := eng.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx1.CreateEdge(a, knows, b))
	require.NoError(t, tx1.Commit())

	require.Empty(t, neighborDsts(t, before, a, knows))

	after := eng.BeginRead()
	require.Equal(t, []storage.NodeID{b}, neighborDsts(t, after, a, knows))
}

// Compaction equivalence: a snapshot taken before Compact() must remain
// observationally equal to itself after compact() runs.
func TestEngineCompactionEquivalence(t *testing.T) {
	eng := openTestEngine(t)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	knows, err := tx.GetOrCreateLabel("KNOWS")
	require.NoError(t, err)
	a, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	b, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	require.NoError(t, tx.CreateEdge(a, knows, b))
	require.NoError(t, tx.Commit())

	s := eng.BeginRead()
	dstsBefore := neighborDsts(t, s, a, knows)

	require.NoError(t, eng.Compact())

	require.Equal(t, dstsBefore, neighborDsts(t, s, a, knows))
	require.True(t, s.IsLive(a))
	require.True(t, s.IsLive(b))
}

// An edge inserted k times is observed k times.
func TestEngineEdgeMultiplicity(t *testing.T) {
	eng := openTestEngine(t)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	knows, err := tx.GetOrCreateLabel("KNOWS")
	require.NoError(t, err)
	a, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	b, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.CreateEdge(a, knows, b))
	}
	require.NoError(t, tx.Commit())

	snap := eng.BeginRead()
	dsts := neighborDsts(t, snap, a, knows)
	require.Len(t, dsts, 3)
	require.Equal(t, 3, snap.EdgeMultiplicity(storage.EdgeKey{Src: a, Rel: knows, Dst: b}))
}

// Node tombstones accumulate across L0 runs as a union: a node
// tombstoned in any run is absent from the snapshot's enumeration.
func TestSnapshotTombstoneUnionAcrossRuns(t *testing.T) {
	eng := openTestEngine(t)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	n1, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	n2, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	n3, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	n4, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := eng.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx2.TombstoneNode(n1))
	require.NoError(t, tx2.TombstoneNode(n2))
	require.NoError(t, tx2.Commit())

	tx3, err := eng.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx3.TombstoneNode(n2))
	require.NoError(t, tx3.TombstoneNode(n3))
	require.NoError(t, tx3.Commit())

	snap := eng.BeginRead()
	var live []storage.NodeID
	for id := range snap.Nodes() {
		live = append(live, id)
	}
	require.Equal(t, []storage.NodeID{n4}, live)
	for _, dead := range []storage.NodeID{n1, n2, n3} {
		require.False(t, snap.IsLive(dead))
	}
}

// Rollback must not publish any writes.
func TestEngineRollbackDiscardsWrites(t *testing.T) {
	eng := openTestEngine(t)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	n, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	tx.Rollback()

	snap := eng.BeginRead()
	require.False(t, snap.IsLive(n))

	// The writer lock must be released so a subsequent transaction can
	// proceed.
	tx2, err := eng.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
}

// Compaction must not stall concurrent writers: the merge and disk write
// happen off to the side against an immutable snapshot, so write
// transactions opened while a compaction is in flight still commit, and
// commits that land mid-compaction survive both the swap and a reopen —
// whether they were folded into the new base or re-emitted into the
// rewritten WAL.
func TestEngineWritersProceedDuringCompaction(t *testing.T) {
	dir := t.TempDir()
	eng, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	rel, err := tx.GetOrCreateLabel("LINK")
	require.NoError(t, err)
	hub, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		n, err := tx.CreateNode(0, false)
		require.NoError(t, err)
		require.NoError(t, tx.CreateEdge(hub, rel, n))
	}
	require.NoError(t, tx.Commit())

	done := make(chan error, 1)
	go func() { done <- eng.Compact() }()

	for i := 0; i < 5; i++ {
		tx2, err := eng.BeginWrite()
		require.NoError(t, err)
		n, err := tx2.CreateNode(0, false)
		require.NoError(t, err)
		require.NoError(t, tx2.CreateEdge(hub, rel, n))
		require.NoError(t, tx2.Commit())
	}
	require.NoError(t, <-done)

	snap := eng.BeginRead()
	require.Len(t, neighborDsts(t, snap, hub, rel), 205)

	require.NoError(t, eng.Close())
	reopened, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)
	defer reopened.Close()
	require.Len(t, neighborDsts(t, reopened.BeginRead(), hub, rel), 205)
}

// A property cache must never serve stale values: the engine invalidates it
// wholesale on every commit, so a read after an overwrite sees the new
// value even when the old one was cached.
func TestEnginePropertyCacheInvalidatedOnCommit(t *testing.T) {
	eng := openTestEngine(t)
	c, err := nervuscache.New(128)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	eng.SetCache(c)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	key, err := tx.GetOrCreateLabel("name")
	require.NoError(t, err)
	n, err := tx.CreateNode(0, false)
	require.NoError(t, err)
	require.NoError(t, tx.SetNodeProperty(n, key, propval.String("old")))
	require.NoError(t, tx.Commit())

	snap := eng.BeginRead()
	v, ok := snap.NodeProperty(n, key)
	require.True(t, ok)
	s, _ := v.AsString()
	require.Equal(t, "old", s)
	c.Wait()

	tx2, err := eng.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tx2.SetNodeProperty(n, key, propval.String("new")))
	require.NoError(t, tx2.Commit())

	v, ok = eng.BeginRead().NodeProperty(n, key)
	require.True(t, ok)
	s, _ = v.AsString()
	require.Equal(t, "new", s)
}

// Labels interned mid-transaction must survive reopen with the same ids, so
// that a persisted base's SymbolID references still resolve correctly.
func TestEngineLabelPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	eng, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)

	tx, err := eng.BeginWrite()
	require.NoError(t, err)
	label, err := tx.GetOrCreateLabel("Person")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, eng.Close())

	reopened, err := storage.Open(dir, config.DefaultConfig())
	require.NoError(t, err)
	defer reopened.Close()

	snap := reopened.BeginRead()
	name, ok := snap.ResolveLabelName(label)
	require.True(t, ok)
	require.Equal(t, "Person", name)

	id, ok := snap.ResolveLabelID("Person")
	require.True(t, ok)
	require.Equal(t, label, id)
}
