package storage

import "github.com/nervus-db/nervusdb/pkg/propval"

// Record kinds beyond the core create/tombstone/property set: labels
// added or removed from an already-created node need their own durable
// record so SET n:Label / REMOVE n:Label survive a crash.
const (
	RecNodeLabelAdd RecordKind = iota + 100
	RecNodeLabelRemove
)

func encodeNodeCreate(id NodeID, hasExt bool, ext uint64, labels []SymbolID) []byte {
	buf := appendUvarint(nil, uint64(id))
	if hasExt {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendUvarint(buf, ext)
	buf = appendUvarint(buf, uint64(len(labels)))
	for _, l := range labels {
		buf = appendUvarint(buf, uint64(l))
	}
	return buf
}

func decodeNodeCreate(payload []byte) (id NodeID, hasExt bool, ext uint64, labels []SymbolID, err error) {
	var n uint64
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	id = NodeID(n)
	if len(payload) < 1 {
		err = &WALProtocolError{Msg: "truncated NodeCreate"}
		return
	}
	hasExt = payload[0] != 0
	payload = payload[1:]
	ext, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	var count uint64
	count, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	labels = make([]SymbolID, count)
	for i := range labels {
		var l uint64
		l, payload, err = readUvarint(payload)
		if err != nil {
			return
		}
		labels[i] = SymbolID(l)
	}
	return
}

func encodeEdgeKey(k EdgeKey) []byte {
	buf := appendUvarint(nil, uint64(k.Src))
	buf = appendUvarint(buf, uint64(k.Rel))
	buf = appendUvarint(buf, uint64(k.Dst))
	return buf
}

func decodeEdgeKey(payload []byte) (EdgeKey, []byte, error) {
	src, payload, err := readUvarint(payload)
	if err != nil {
		return EdgeKey{}, nil, err
	}
	rel, payload, err := readUvarint(payload)
	if err != nil {
		return EdgeKey{}, nil, err
	}
	dst, payload, err := readUvarint(payload)
	if err != nil {
		return EdgeKey{}, nil, err
	}
	return EdgeKey{Src: NodeID(src), Rel: SymbolID(rel), Dst: NodeID(dst)}, payload, nil
}

func encodeNodePropSet(id NodeID, key SymbolID, val propval.Value) []byte {
	buf := appendUvarint(nil, uint64(id))
	buf = appendUvarint(buf, uint64(key))
	buf = appendBytes(buf, val.Encode())
	return buf
}

func decodeNodePropSet(payload []byte) (id NodeID, key SymbolID, val propval.Value, err error) {
	var n uint64
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	id = NodeID(n)
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	key = SymbolID(n)
	var raw []byte
	raw, _, err = readBytes(payload)
	if err != nil {
		return
	}
	val, _, err = propval.Decode(raw)
	return
}

func encodeEdgePropSet(key EdgeKey, propKey SymbolID, val propval.Value) []byte {
	buf := encodeEdgeKey(key)
	buf = appendUvarint(buf, uint64(propKey))
	buf = appendBytes(buf, val.Encode())
	return buf
}

func decodeEdgePropSet(payload []byte) (key EdgeKey, propKey SymbolID, val propval.Value, err error) {
	key, payload, err = decodeEdgeKey(payload)
	if err != nil {
		return
	}
	var n uint64
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	propKey = SymbolID(n)
	var raw []byte
	raw, _, err = readBytes(payload)
	if err != nil {
		return
	}
	val, _, err = propval.Decode(raw)
	return
}

func encodeNodeTombstone(id NodeID) []byte {
	return appendUvarint(nil, uint64(id))
}

func decodeNodeTombstone(payload []byte) (NodeID, error) {
	n, _, err := readUvarint(payload)
	return NodeID(n), err
}

func encodeInternLabel(id SymbolID, name string) []byte {
	buf := appendUvarint(nil, uint64(id))
	buf = appendBytes(buf, []byte(name))
	return buf
}

func decodeInternLabel(payload []byte) (id SymbolID, name string, err error) {
	var n uint64
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	id = SymbolID(n)
	var raw []byte
	raw, _, err = readBytes(payload)
	if err != nil {
		return
	}
	name = string(raw)
	return
}

func encodeNodeLabelOp(id NodeID, label SymbolID) []byte {
	buf := appendUvarint(nil, uint64(id))
	buf = appendUvarint(buf, uint64(label))
	return buf
}

func decodeNodeLabelOp(payload []byte) (id NodeID, label SymbolID, err error) {
	var n uint64
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	id = NodeID(n)
	n, payload, err = readUvarint(payload)
	if err != nil {
		return
	}
	label = SymbolID(n)
	return
}

// appendRunToWAL re-emits a frozen run as one complete WAL transaction,
// used when compaction rewrites the log to keep transactions newer than
// the compaction horizon durable. Within a frozen run an edge key appears
// in EdgesBySrc or TombstonedEdges but never both (creation after a
// tombstone resurrects, tombstoning removes pending creations), so
// emitting creations before tombstones reproduces the run exactly on
// replay.
func appendRunToWAL(w *WAL, run *L0Run) error {
	if err := w.Append(RecBeginTx, EncodeUvarint(run.TxID)); err != nil {
		return err
	}
	for id, rec := range run.CreatedNodes {
		if err := w.Append(RecNodeCreate, encodeNodeCreate(id, rec.HasExt, rec.ExtID, rec.Labels)); err != nil {
			return err
		}
	}
	for _, keys := range run.EdgesBySrc {
		for _, k := range keys {
			if err := w.Append(RecEdgeCreate, encodeEdgeKey(k)); err != nil {
				return err
			}
		}
	}
	for id, props := range run.NodeProps {
		for key, val := range props {
			if err := w.Append(RecNodePropSet, encodeNodePropSet(id, key, val)); err != nil {
				return err
			}
		}
	}
	for k, props := range run.EdgeProps {
		for key, val := range props {
			if err := w.Append(RecEdgePropSet, encodeEdgePropSet(k, key, val)); err != nil {
				return err
			}
		}
	}
	for id, labels := range run.AddedLabels {
		for _, l := range labels {
			if err := w.Append(RecNodeLabelAdd, encodeNodeLabelOp(id, l)); err != nil {
				return err
			}
		}
	}
	for id, labels := range run.RemovedLabels {
		for _, l := range labels {
			if err := w.Append(RecNodeLabelRemove, encodeNodeLabelOp(id, l)); err != nil {
				return err
			}
		}
	}
	for id := range run.TombstonedNodes {
		if err := w.Append(RecNodeTombstone, encodeNodeTombstone(id)); err != nil {
			return err
		}
	}
	for k := range run.TombstonedEdges {
		if err := w.Append(RecEdgeTombstone, encodeEdgeKey(k)); err != nil {
			return err
		}
	}
	return w.Append(RecCommit, nil)
}

// applyRecordToMemTable replays one decoded WAL record into a MemTable
// during recovery.
func applyRecordToMemTable(mt *MemTable, rec Record) error {
	switch rec.Kind {
	case RecNodeCreate:
		id, hasExt, ext, labels, err := decodeNodeCreate(rec.Payload)
		if err != nil {
			return err
		}
		mt.CreateNode(id, ext, hasExt, labels)
	case RecEdgeCreate:
		key, _, err := decodeEdgeKey(rec.Payload)
		if err != nil {
			return err
		}
		mt.CreateEdge(key)
	case RecNodePropSet:
		id, key, val, err := decodeNodePropSet(rec.Payload)
		if err != nil {
			return err
		}
		mt.SetNodeProperty(id, key, val)
	case RecEdgePropSet:
		key, propKey, val, err := decodeEdgePropSet(rec.Payload)
		if err != nil {
			return err
		}
		mt.SetEdgeProperty(key, propKey, val)
	case RecNodeTombstone:
		id, err := decodeNodeTombstone(rec.Payload)
		if err != nil {
			return err
		}
		mt.TombstoneNode(id)
	case RecEdgeTombstone:
		key, _, err := decodeEdgeKey(rec.Payload)
		if err != nil {
			return err
		}
		mt.TombstoneEdge(key)
	case RecNodeLabelAdd:
		id, label, err := decodeNodeLabelOp(rec.Payload)
		if err != nil {
			return err
		}
		mt.AddLabel(id, label)
	case RecNodeLabelRemove:
		id, label, err := decodeNodeLabelOp(rec.Payload)
		if err != nil {
			return err
		}
		mt.RemoveLabel(id, label)
	case RecInternLabel:
		// Applied directly to the Interner by the caller, not the
		// MemTable; see Engine.recover.
	default:
		return &WALProtocolError{Msg: "unknown record kind during replay"}
	}
	return nil
}
