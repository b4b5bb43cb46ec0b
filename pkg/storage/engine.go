package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/nervus-db/nervusdb/pkg/config"
	"github.com/nervus-db/nervusdb/pkg/propval"
)

// Engine orchestrates transactions, crash recovery, and background
// compaction over a single database directory: a Pager-backed data file, a
// WAL, a string interner, an id map, and a blob store, all folded into the
// snapshot lattice a Snapshot reads from.
//
// Writers are serialized: only one WriteTx may be open at a time. Readers
// never block a writer and never block each other — BeginRead is a single
// atomic pointer load.
type Engine struct {
	dir   string
	cfg   *config.Config
	pager *Pager
	wal   *WAL
	blobs *BlobStore

	interner *Interner
	ids      *IdMap

	writeMu  sync.Mutex // held for the duration of one WriteTx, and for a compaction's final swap
	base     *BaseGraph
	runs     []*L0Run
	nextTxID uint64

	current atomic.Pointer[Snapshot]
	cache   propertyCache

	// compactMu serializes whole compactions (manual and background) so
	// the pager and blob store have a single writer; writeMu is taken only
	// for a compaction's final swap.
	compactMu  sync.Mutex
	compacting atomic.Bool

	closeMu sync.Mutex
	closed  bool
}

const (
	dataFileName  = "graph.ndb"
	walFileName   = "graph.wal"
	baseFileName  = "base.bin"
	labelFileName = "labels.bin"
)

// Open opens (creating if necessary) the database directory at dir,
// replaying any WAL records left by a prior process that a persisted base
// does not already account for.
func Open(dir string, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	pager, err := OpenPager(filepath.Join(dir, dataFileName))
	if err != nil {
		return nil, fmt.Errorf("storage: opening data file: %w", err)
	}
	blobs := NewBlobStore(pager)

	base, interner, err := loadState(dir, blobs)
	if err != nil {
		pager.Close()
		return nil, fmt.Errorf("storage: loading persisted state: %w", err)
	}

	ids := NewIdMap()
	restoreIdsFromBase(ids, base)

	wal, err := OpenWAL(filepath.Join(dir, walFileName))
	if err != nil {
		pager.Close()
		return nil, fmt.Errorf("storage: opening wal: %w", err)
	}

	txs, err := Replay(filepath.Join(dir, walFileName))
	if err != nil {
		pager.Close()
		wal.Close()
		return nil, fmt.Errorf("storage: replaying wal: %w", err)
	}

	eng := &Engine{
		dir:      dir,
		cfg:      cfg,
		pager:    pager,
		wal:      wal,
		blobs:    blobs,
		interner: interner,
		ids:      ids,
		base:     base,
		nextTxID: uint64(base.TxID) + 1,
	}

	for _, tx := range txs {
		if tx.TxID <= uint64(base.TxID) {
			// Already folded into the persisted base by a prior compaction;
			// the WAL is only truncated after the base write is durable, so
			// a stale prefix can briefly coexist with the base that
			// supersedes it.
			continue
		}
		run, err := eng.replayTransaction(tx)
		if err != nil {
			pager.Close()
			wal.Close()
			return nil, fmt.Errorf("storage: applying wal tx %d: %w", tx.TxID, err)
		}
		eng.runs = append(eng.runs, run)
		if tx.TxID+1 > eng.nextTxID {
			eng.nextTxID = tx.TxID + 1
		}
	}

	eng.rebuildSnapshot()
	return eng, nil
}

// SetCache installs a read-side property cache (see pkg/nervuscache). A nil
// cache is always valid.
func (e *Engine) SetCache(c propertyCache) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.cache = c
	e.rebuildSnapshot()
}

// replayTransaction applies one committed transaction's records to a fresh
// MemTable, restoring interner and id-map state as it goes, and freezes the
// result into an L0Run.
func (e *Engine) replayTransaction(tx Transaction) (*L0Run, error) {
	mt := NewMemTable()
	for _, rec := range tx.Records {
		if rec.Kind == RecInternLabel {
			id, name, err := decodeInternLabel(rec.Payload)
			if err != nil {
				return nil, err
			}
			e.interner.Restore(id, name)
			continue
		}
		if rec.Kind == RecNodeCreate {
			id, hasExt, ext, labels, err := decodeNodeCreate(rec.Payload)
			if err != nil {
				return nil, err
			}
			e.ids.Restore(id)
			if hasExt {
				e.ids.RestoreExternal(id, ext)
			}
			mt.CreateNode(id, ext, hasExt, labels)
			continue
		}
		if err := applyRecordToMemTable(mt, rec); err != nil {
			return nil, err
		}
	}
	return mt.FreezeIntoRun(tx.TxID), nil
}

// restoreIdsFromBase fast-forwards a fresh IdMap so that ids already present
// in a persisted base are never reassigned.
func restoreIdsFromBase(ids *IdMap, base *BaseGraph) {
	for id := range base.Nodes {
		ids.Restore(id)
	}
}

// invalidator is implemented by cache.Cache (pkg/nervuscache). Checked via a
// type assertion rather than added to the propertyCache interface so that
// interface stays minimal for test doubles that don't need invalidation.
type invalidator interface {
	Invalidate()
}

// rebuildSnapshot publishes a new Snapshot reflecting the current base and
// runs. Callers must hold writeMu. Any installed cache is invalidated
// wholesale: keys are namespaced by snapshot horizon so stale entries are
// unreachable either way, but dropping them keeps superseded snapshots'
// entries from crowding out live ones.
func (e *Engine) rebuildSnapshot() {
	if inv, ok := e.cache.(invalidator); ok {
		inv.Invalidate()
	}
	runsCopy := append([]*L0Run(nil), e.runs...)
	snap := newSnapshot(e.base, runsCopy, e.interner.Snapshot(), e.cache)
	e.current.Store(snap)
}

// BeginRead returns the current coherent Snapshot. Wait-free: a single
// atomic pointer load, never blocked by a concurrent writer.
func (e *Engine) BeginRead() *Snapshot {
	return e.current.Load()
}

// BeginWrite opens a new write transaction, blocking until any other
// in-flight writer (or a compaction's final swap) finishes.
func (e *Engine) BeginWrite() (*WriteTx, error) {
	e.writeMu.Lock()
	if e.isClosed() {
		e.writeMu.Unlock()
		return nil, ErrStorageClosed
	}
	txid := e.nextTxID
	if err := e.wal.Append(RecBeginTx, EncodeUvarint(txid)); err != nil {
		e.writeMu.Unlock()
		return nil, err
	}
	return &WriteTx{eng: e, mt: NewMemTable(), txid: txid}, nil
}

func (e *Engine) isClosed() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	return e.closed
}

// Compact folds the base graph and every L0 run at or below the current
// horizon into a new base, persists it (and the interner) to disk, and
// trims the WAL. The expensive work — merging the layers, rebuilding both
// CSR segments, and writing the new base — happens off to the side
// against an immutable snapshot, so concurrent BeginWrite calls are never
// stalled behind it. Writers are excluded only for the final swap and,
// when commits landed mid-compaction, a WAL rewrite proportional to those
// retained transactions rather than to graph size.
func (e *Engine) Compact() error {
	e.compactMu.Lock()
	defer e.compactMu.Unlock()
	if e.isClosed() {
		return ErrStorageClosed
	}

	snap := e.BeginRead()
	if len(snap.runs) == 0 {
		return nil
	}
	horizon := snap.runs[len(snap.runs)-1].TxID
	newBase := buildCompactedBase(snap, horizon)

	// The pager (and therefore the blob store) is touched only by
	// compaction, which compactMu serializes, so no lock is needed for
	// the disk write.
	if err := saveState(e.dir, e.blobs, newBase, e.interner, e.cfg.BlobInlineThreshold); err != nil {
		return fmt.Errorf("storage: persisting compacted state: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.isClosed() {
		return ErrStorageClosed
	}

	var retained []*L0Run
	for _, r := range e.runs {
		if r.TxID > horizon {
			retained = append(retained, r)
		}
	}
	if len(retained) == 0 {
		if err := e.wal.Truncate(); err != nil {
			return fmt.Errorf("storage: truncating wal after compaction: %w", err)
		}
	} else {
		// Labels interned by the retained transactions may postdate the
		// interner state saveState persisted; save again so the rewritten
		// log can carry data records alone.
		if err := saveLabels(filepath.Join(e.dir, labelFileName), e.interner); err != nil {
			return fmt.Errorf("storage: persisting labels after compaction: %w", err)
		}
		if err := e.rewriteWAL(retained); err != nil {
			return fmt.Errorf("storage: rewriting wal after compaction: %w", err)
		}
	}

	e.base = newBase
	e.runs = retained
	e.rebuildSnapshot()
	return nil
}

// buildCompactedBase merges a snapshot's base and L0 runs into a fresh
// BaseGraph reflecting state as of horizon. Pure in-memory work over
// immutable inputs; safe to run concurrently with writers.
func buildCompactedBase(snap *Snapshot, horizon uint64) *BaseGraph {
	newBase := &BaseGraph{
		TxID:       NodeIDHorizon(horizon),
		Nodes:      make(map[NodeID]struct{}),
		NodeLabels: make(map[NodeID][]SymbolID),
		NodeProps:  make(map[NodeID]map[SymbolID]propval.Value),
		EdgeProps:  make(map[EdgeKey]map[SymbolID]propval.Value),
	}
	outBySrc := make(map[NodeID][]CSREdgeTarget)
	inByDst := make(map[NodeID][]CSREdgeTarget)

	for id := range snap.Nodes() {
		newBase.Nodes[id] = struct{}{}
		if labels, ok := snap.ResolveNodeLabels(id); ok && len(labels) > 0 {
			newBase.NodeLabels[id] = labels
		}
		if props := snap.NodeProperties(id); len(props) > 0 {
			newBase.NodeProps[id] = props
		}
		for _, k := range snap.accumulateOut(id) {
			outBySrc[id] = append(outBySrc[id], CSREdgeTarget{Rel: k.Rel, Dst: k.Dst})
			// The reverse segment reuses CSREdgeTarget with Dst holding the
			// original edge's source, matching Snapshot.accumulateIn's
			// documented convention.
			inByDst[k.Dst] = append(inByDst[k.Dst], CSREdgeTarget{Rel: k.Rel, Dst: id})
			if props := snap.EdgeProperties(k); len(props) > 0 {
				newBase.EdgeProps[k] = props
			}
		}
	}
	newBase.Out = BuildCSRSegment(outBySrc)
	newBase.In = BuildCSRSegment(inByDst)
	return newBase
}

// rewriteWAL atomically replaces the log with one containing only the
// given runs' transactions, re-emitted from their frozen in-memory form.
// Callers must hold writeMu so no writer appends to the log being
// replaced.
func (e *Engine) rewriteWAL(runs []*L0Run) error {
	tmpPath := filepath.Join(e.dir, walFileName+".tmp")
	os.Remove(tmpPath)
	w, err := OpenWAL(tmpPath)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if err := appendRunToWAL(w, run); err != nil {
			w.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := w.Sync(); err != nil {
		w.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	walPath := filepath.Join(e.dir, walFileName)
	if err := os.Rename(tmpPath, walPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	old := e.wal
	nw, err := OpenWAL(walPath)
	if err != nil {
		return err
	}
	e.wal = nw
	_ = old.Close()
	return nil
}

// Close flushes and closes every underlying file. Close does not implicitly
// compact; callers that want a compact-on-close policy call Compact first.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.closeMu.Lock()
	e.closed = true
	e.closeMu.Unlock()

	var firstErr error
	if err := e.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.pager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// WriteTx is a single write transaction: every mutation is appended to the
// WAL immediately (so a long transaction never holds an unbounded amount of
// unpersisted data in memory beyond its MemTable), but nothing becomes
// visible to readers until Commit succeeds.
type WriteTx struct {
	eng  *Engine
	mt   *MemTable
	txid uint64
	done bool
}

// TxID returns the transaction's assigned id.
func (tx *WriteTx) TxID() uint64 { return tx.txid }

// GetOrCreateLabel interns name (as a label, relationship type, or
// property key; the interner does not distinguish namespaces) and durably
// records the binding the first time it is created.
func (tx *WriteTx) GetOrCreateLabel(name string) (SymbolID, error) {
	id, created := tx.eng.interner.GetOrCreateChecked(name)
	if created {
		if err := tx.eng.wal.Append(RecInternLabel, encodeInternLabel(id, name)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// CreateNode assigns a fresh internal id, optionally bound to extID, with
// the given initial labels.
func (tx *WriteTx) CreateNode(extID uint64, hasExt bool, labels ...SymbolID) (NodeID, error) {
	id := tx.eng.ids.Assign(extID, hasExt)
	if err := tx.eng.wal.Append(RecNodeCreate, encodeNodeCreate(id, hasExt, extID, labels)); err != nil {
		return 0, err
	}
	tx.mt.CreateNode(id, extID, hasExt, labels)
	return id, nil
}

// CreateEdge appends a new (src, rel, dst) occurrence. Duplicate keys are
// permitted and increase the edge's observable multiplicity.
func (tx *WriteTx) CreateEdge(src NodeID, rel SymbolID, dst NodeID) error {
	key := EdgeKey{Src: src, Rel: rel, Dst: dst}
	if err := tx.eng.wal.Append(RecEdgeCreate, encodeEdgeKey(key)); err != nil {
		return err
	}
	tx.mt.CreateEdge(key)
	return nil
}

// SetNodeProperty stages a node property write.
func (tx *WriteTx) SetNodeProperty(id NodeID, key SymbolID, val propval.Value) error {
	if err := tx.eng.wal.Append(RecNodePropSet, encodeNodePropSet(id, key, val)); err != nil {
		return err
	}
	tx.mt.SetNodeProperty(id, key, val)
	return nil
}

// SetEdgeProperty stages an edge property write.
func (tx *WriteTx) SetEdgeProperty(src NodeID, rel SymbolID, dst NodeID, key SymbolID, val propval.Value) error {
	ek := EdgeKey{Src: src, Rel: rel, Dst: dst}
	if err := tx.eng.wal.Append(RecEdgePropSet, encodeEdgePropSet(ek, key, val)); err != nil {
		return err
	}
	tx.mt.SetEdgeProperty(ek, key, val)
	return nil
}

// TombstoneNode marks id deleted.
func (tx *WriteTx) TombstoneNode(id NodeID) error {
	if err := tx.eng.wal.Append(RecNodeTombstone, encodeNodeTombstone(id)); err != nil {
		return err
	}
	tx.mt.TombstoneNode(id)
	return nil
}

// TombstoneEdge removes every occurrence of (src, rel, dst).
func (tx *WriteTx) TombstoneEdge(src NodeID, rel SymbolID, dst NodeID) error {
	key := EdgeKey{Src: src, Rel: rel, Dst: dst}
	if err := tx.eng.wal.Append(RecEdgeTombstone, encodeEdgeKey(key)); err != nil {
		return err
	}
	tx.mt.TombstoneEdge(key)
	return nil
}

// AddLabel stages adding a label to an existing node.
func (tx *WriteTx) AddLabel(id NodeID, label SymbolID) error {
	if err := tx.eng.wal.Append(RecNodeLabelAdd, encodeNodeLabelOp(id, label)); err != nil {
		return err
	}
	tx.mt.AddLabel(id, label)
	return nil
}

// RemoveLabel stages removing a label from a node.
func (tx *WriteTx) RemoveLabel(id NodeID, label SymbolID) error {
	if err := tx.eng.wal.Append(RecNodeLabelRemove, encodeNodeLabelOp(id, label)); err != nil {
		return err
	}
	tx.mt.RemoveLabel(id, label)
	return nil
}

// Commit durably records the transaction (fsync is the linearization
// point), then publishes a new Snapshot reflecting it. After Commit
// returns, BeginRead observes the transaction's writes.
func (tx *WriteTx) Commit() error {
	if tx.done {
		return &WALProtocolError{Msg: "transaction already committed or rolled back"}
	}
	defer func() {
		tx.done = true
		tx.eng.writeMu.Unlock()
	}()

	if err := tx.eng.wal.Append(RecCommit, nil); err != nil {
		return err
	}
	if err := tx.eng.wal.Sync(); err != nil {
		return err
	}

	run := tx.mt.FreezeIntoRun(tx.txid)
	tx.eng.runs = append(tx.eng.runs, run)
	tx.eng.nextTxID = tx.txid + 1
	tx.eng.rebuildSnapshot()
	tx.eng.maybeCompactAsync()
	return nil
}

// maybeCompactAsync kicks off a background compaction once the number of
// accumulated L0 runs crosses the configured horizon. Callers must hold
// writeMu for the runs-length read; the spawned goroutine does its heavy
// work against an immutable snapshot and only contends for writeMu at the
// final swap. At most one background compaction runs at a time.
func (e *Engine) maybeCompactAsync() {
	h := e.cfg.CompactionHorizonRuns
	if h <= 0 || len(e.runs) < h {
		return
	}
	if !e.compacting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.compacting.Store(false)
		if err := e.Compact(); err != nil && !errors.Is(err, ErrStorageClosed) && !errors.Is(err, os.ErrClosed) {
			logger.Error("background compaction failed", "err", err)
		}
	}()
}

// Rollback discards the transaction. Records already appended to the WAL's
// buffer for this transaction are never fsynced under a Commit record, so
// replay (on crash or on the next successful commit resetting the WAL's
// in-transaction state at its next BeginTx) discards them as an incomplete
// trailing transaction; nothing becomes visible to readers.
func (tx *WriteTx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.eng.writeMu.Unlock()
}
