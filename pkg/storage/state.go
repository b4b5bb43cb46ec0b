package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/nervus-db/nervusdb/pkg/propval"
)

// Persisted state uses a custom length-prefixed binary format rather than
// gob or encoding/json: propval.Value carries only unexported fields, so
// neither encodes it without a bespoke MarshalJSON/GobEncode anyway, and the
// varint-based layout here reuses the same codec.go helpers the WAL already
// depends on.
//
// base.bin: magic, txid, nodes (id, labels, properties), edges (src, rel,
// dst, properties). labels.bin: magic, (id, name) pairs. Both are written
// to a temp file and renamed into place so a crash mid-write never leaves a
// torn file behind; the WAL is only truncated after this rename succeeds,
// preserving crash consistency across compaction.

var stateMagic = [4]byte{'N', 'V', 'S', '1'}

const (
	propInline = 0
	propBlob   = 1
)

func loadState(dir string, blobs *BlobStore) (*BaseGraph, *Interner, error) {
	interner := NewInterner()
	if err := loadLabels(filepath.Join(dir, labelFileName), interner); err != nil {
		return nil, nil, err
	}

	base, err := loadBase(filepath.Join(dir, baseFileName), blobs)
	if err != nil {
		return nil, nil, err
	}
	return base, interner, nil
}

func loadLabels(path string, interner *Interner) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) < 4 || [4]byte{data[0], data[1], data[2], data[3]} != stateMagic {
		return &StorageCorruptedError{Msg: "labels.bin: bad magic"}
	}
	rest := data[4:]
	count, rest, err := readUvarint(rest)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		var id uint64
		id, rest, err = readUvarint(rest)
		if err != nil {
			return err
		}
		var nameBytes []byte
		nameBytes, rest, err = readBytes(rest)
		if err != nil {
			return err
		}
		interner.Restore(SymbolID(id), string(nameBytes))
	}
	return nil
}

func loadBase(path string, blobs *BlobStore) (*BaseGraph, error) {
	base := EmptyBaseGraph()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, err
	}
	if len(data) < 4 || [4]byte{data[0], data[1], data[2], data[3]} != stateMagic {
		return nil, &StorageCorruptedError{Msg: "base.bin: bad magic"}
	}
	rest := data[4:]

	var txid uint64
	txid, rest, err = readUvarint(rest)
	if err != nil {
		return nil, err
	}
	base.TxID = NodeIDHorizon(txid)

	var nodeCount uint64
	nodeCount, rest, err = readUvarint(rest)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nodeCount; i++ {
		var idRaw uint64
		idRaw, rest, err = readUvarint(rest)
		if err != nil {
			return nil, err
		}
		id := NodeID(idRaw)
		base.Nodes[id] = struct{}{}

		var labelCount uint64
		labelCount, rest, err = readUvarint(rest)
		if err != nil {
			return nil, err
		}
		if labelCount > 0 {
			labels := make([]SymbolID, labelCount)
			for j := range labels {
				var l uint64
				l, rest, err = readUvarint(rest)
				if err != nil {
					return nil, err
				}
				labels[j] = SymbolID(l)
			}
			base.NodeLabels[id] = labels
		}

		var props map[SymbolID]propval.Value
		props, rest, err = decodePropMap(rest, blobs)
		if err != nil {
			return nil, err
		}
		if len(props) > 0 {
			base.NodeProps[id] = props
		}
	}

	var edgeCount uint64
	edgeCount, rest, err = readUvarint(rest)
	if err != nil {
		return nil, err
	}
	outBySrc := make(map[NodeID][]CSREdgeTarget, edgeCount)
	inByDst := make(map[NodeID][]CSREdgeTarget, edgeCount)
	for i := uint64(0); i < edgeCount; i++ {
		var key EdgeKey
		key, rest, err = decodeEdgeKey(rest)
		if err != nil {
			return nil, err
		}
		var props map[SymbolID]propval.Value
		props, rest, err = decodePropMap(rest, blobs)
		if err != nil {
			return nil, err
		}
		if len(props) > 0 {
			base.EdgeProps[key] = props
		}
		outBySrc[key.Src] = append(outBySrc[key.Src], CSREdgeTarget{Rel: key.Rel, Dst: key.Dst})
		inByDst[key.Dst] = append(inByDst[key.Dst], CSREdgeTarget{Rel: key.Rel, Dst: key.Src})
	}
	base.Out = BuildCSRSegment(outBySrc)
	base.In = BuildCSRSegment(inByDst)

	return base, nil
}

func saveState(dir string, blobs *BlobStore, base *BaseGraph, interner *Interner, blobThreshold int) error {
	if err := saveLabels(filepath.Join(dir, labelFileName), interner); err != nil {
		return err
	}
	return saveBase(filepath.Join(dir, baseFileName), blobs, base, blobThreshold)
}

func saveLabels(path string, interner *Interner) error {
	snap := interner.Snapshot()
	buf := append([]byte(nil), stateMagic[:]...)

	names := snap.toName // unexported field access within the same package
	buf = appendUvarint(buf, uint64(len(names)))
	for id, name := range names {
		buf = appendUvarint(buf, uint64(id))
		buf = appendBytes(buf, []byte(name))
	}
	return writeFileAtomic(path, buf)
}

func saveBase(path string, blobs *BlobStore, base *BaseGraph, blobThreshold int) error {
	buf := append([]byte(nil), stateMagic[:]...)
	buf = appendUvarint(buf, uint64(base.TxID))

	nodeIDs := make([]NodeID, 0, len(base.Nodes))
	for id := range base.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	buf = appendUvarint(buf, uint64(len(nodeIDs)))
	for _, id := range nodeIDs {
		buf = appendUvarint(buf, uint64(id))
		labels := base.NodeLabels[id]
		buf = appendUvarint(buf, uint64(len(labels)))
		for _, l := range labels {
			buf = appendUvarint(buf, uint64(l))
		}
		var err error
		buf, err = encodePropMap(buf, base.NodeProps[id], blobs, blobThreshold)
		if err != nil {
			return err
		}
	}

	type edgeEntry struct {
		key   EdgeKey
		props map[SymbolID]propval.Value
	}
	var edges []edgeEntry
	for _, id := range nodeIDs {
		for _, t := range base.Out.Neighbors(id, nil) {
			key := EdgeKey{Src: id, Rel: t.Rel, Dst: t.Dst}
			edges = append(edges, edgeEntry{key: key, props: base.EdgeProps[key]})
		}
	}

	buf = appendUvarint(buf, uint64(len(edges)))
	for _, e := range edges {
		buf = append(buf, encodeEdgeKey(e.key)...)
		var err error
		buf, err = encodePropMap(buf, e.props, blobs, blobThreshold)
		if err != nil {
			return err
		}
	}

	return writeFileAtomic(path, buf)
}

func encodePropMap(buf []byte, props map[SymbolID]propval.Value, blobs *BlobStore, threshold int) ([]byte, error) {
	buf = appendUvarint(buf, uint64(len(props)))
	for k, v := range props {
		buf = appendUvarint(buf, uint64(k))
		encoded := v.Encode()
		if len(encoded) <= threshold {
			buf = append(buf, propInline)
			buf = appendBytes(buf, encoded)
			continue
		}
		handle, err := blobs.Write(encoded)
		if err != nil {
			return nil, err
		}
		buf = append(buf, propBlob)
		buf = appendUvarint(buf, uint64(handle.FirstPage))
		buf = appendUvarint(buf, handle.Length)
	}
	return buf, nil
}

func decodePropMap(data []byte, blobs *BlobStore) (map[SymbolID]propval.Value, []byte, error) {
	count, rest, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, rest, nil
	}
	out := make(map[SymbolID]propval.Value, count)
	for i := uint64(0); i < count; i++ {
		var keyRaw uint64
		keyRaw, rest, err = readUvarint(rest)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) < 1 {
			return nil, nil, &StorageCorruptedError{Msg: "truncated property marker"}
		}
		marker := rest[0]
		rest = rest[1:]

		var val propval.Value
		switch marker {
		case propInline:
			var raw []byte
			raw, rest, err = readBytes(rest)
			if err != nil {
				return nil, nil, err
			}
			val, _, err = propval.Decode(raw)
			if err != nil {
				return nil, nil, err
			}
		case propBlob:
			var firstPage, length uint64
			firstPage, rest, err = readUvarint(rest)
			if err != nil {
				return nil, nil, err
			}
			length, rest, err = readUvarint(rest)
			if err != nil {
				return nil, nil, err
			}
			raw, err := blobs.Read(BlobHandle{FirstPage: PageID(firstPage), Length: length})
			if err != nil {
				return nil, nil, err
			}
			val, _, err = propval.Decode(raw)
			if err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, &StorageCorruptedError{Msg: fmt.Sprintf("unknown property marker %d", marker)}
		}
		out[SymbolID(keyRaw)] = val
	}
	return out, rest, nil
}

// writeFileAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a torn file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	if _, err := w.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
