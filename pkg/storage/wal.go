// Write-ahead logging for NervusDB durability.
//
// Every committed transaction's mutations are framed and checksummed before
// being appended to the log, and fsynced before the transaction is
// considered durable. On open, the log is replayed from the head: records
// between a BeginTx and its matching Commit are buffered, and a checksum
// mismatch or truncation at the tail of the log silently discards the
// pending partial transaction and stops replay. That discard is not an
// error; it is the definition of crash recovery. A checksum mismatch with
// intact data after it is structural corruption and fails replay.
//
// Wire format: a sequence of `[len u32 LE][crc32 u32 LE][payload]` frames.
// CRC is IEEE 802.3 (the same polynomial stdlib hash/crc32.ChecksumIEEE
// uses), computed over payload only.
package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// RecordKind tags a single WAL record.
type RecordKind uint8

const (
	RecBeginTx RecordKind = iota
	RecNodeCreate
	RecEdgeCreate
	RecNodePropSet
	RecEdgePropSet
	RecNodeTombstone
	RecEdgeTombstone
	RecInternLabel
	RecCommit
)

// maxRecordLen bounds a single WAL record's payload size, guarding against a
// corrupt length prefix causing an unbounded read.
const maxRecordLen = 64 << 20 // 64 MiB

// Record is one decoded WAL entry.
type Record struct {
	Kind    RecordKind
	Payload []byte
}

// WAL is a framed, checksummed append-only log plus replay/recovery logic.
// Writers append under a single mutex; the log is otherwise append-only and
// never rewritten except by the Engine's compaction-time truncation.
type WAL struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// OpenWAL opens (creating if necessary) the WAL file at path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &WAL{file: f, writer: bufio.NewWriterSize(f, 64*1024), path: path}, nil
}

// Append writes one record's frame to the buffered writer. Callers must
// call Sync to make the write durable.
func (w *WAL) Append(kind RecordKind, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(payload)+1 > maxRecordLen {
		return &WALRecordTooLargeError{Len: uint32(len(payload) + 1)}
	}

	frame := make([]byte, 0, 9+len(payload))
	body := append([]byte{byte(kind)}, payload...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	frame = append(frame, lenBuf[:]...)

	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(body))
	frame = append(frame, crcBuf[:]...)
	frame = append(frame, body...)

	_, err := w.writer.Write(frame)
	return err
}

// Sync flushes buffered records and fsyncs the underlying file. This is the
// durability linearization point: a commit is durable once Sync returns
// nil for the frame containing its Commit record.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Truncate discards the log and starts a fresh, empty one. Used by
// compaction once every record below the compaction horizon has been
// folded into the base.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.writer.Reset(w.file)
	return w.file.Sync()
}

// Transaction groups the records recorded between a BeginTx and its
// matching Commit.
type Transaction struct {
	TxID    uint64
	Records []Record
}

// Replay scans the WAL from the beginning and returns every fully committed
// transaction, in order. A transaction whose Commit record never arrives
// (because of a truncated file, or a checksum failure in the log's last
// frame) is silently discarded, and replay stops at that point: any record
// flushed-and-fsynced before a Commit is recoverable, and trailing
// partial data is dropped rather than treated as an error. A checksum
// failure in a frame with further data after it returns a
// *WALChecksumMismatchError.
func Replay(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var committed []Transaction
	var pending []Record
	var pendingTxID uint64
	inTx := false
	offset := int64(0)

	for {
		frameOffset := offset
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			break // clean EOF or short read: stop, nothing pending is lost
		}
		offset += 4
		length := binary.LittleEndian.Uint32(lenBuf[:])
		if length == 0 || length > maxRecordLen {
			logger.Warn("wal: discarding partial transaction at truncation boundary", "offset", frameOffset)
			break
		}

		var crcBuf [4]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			break
		}
		offset += 4
		wantCRC := binary.LittleEndian.Uint32(crcBuf[:])

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			break // truncated trailing record: discard and stop
		}
		offset += int64(length)

		if crc32.ChecksumIEEE(body) != wantCRC {
			// A bad frame at the very tail is the torn tail of a crashed
			// write and is silently discarded. A bad frame with intact
			// data after it is structural corruption and must refuse to
			// load.
			if _, err := r.Peek(1); err == nil {
				logger.Error("wal: checksum mismatch before intact data", "offset", frameOffset)
				return nil, &WALChecksumMismatchError{Offset: frameOffset}
			}
			logger.Warn("wal: checksum mismatch at tail, discarding partial transaction", "offset", frameOffset)
			break
		}

		kind := RecordKind(body[0])
		payload := body[1:]

		switch kind {
		case RecBeginTx:
			txID, n := binary.Uvarint(payload)
			if n <= 0 {
				return nil, &WALProtocolError{Msg: "malformed BeginTx payload"}
			}
			inTx = true
			pendingTxID = txID
			pending = pending[:0]
		case RecCommit:
			if !inTx {
				return nil, &WALProtocolError{Msg: "Commit without matching BeginTx"}
			}
			committed = append(committed, Transaction{TxID: pendingTxID, Records: append([]Record(nil), pending...)})
			inTx = false
			pending = pending[:0]
		default:
			if !inTx {
				return nil, &WALProtocolError{Msg: fmt.Sprintf("record kind %d outside a transaction", kind)}
			}
			pending = append(pending, Record{Kind: kind, Payload: payload})
		}
	}

	if inTx {
		logger.Warn("wal: discarding incomplete trailing transaction", "txid", pendingTxID)
	}

	return committed, nil
}

// EncodeUvarint is a small helper for record payloads that lead with a
// varint-encoded id (BeginTx, NodeCreate, ...).
func EncodeUvarint(n uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	w := binary.PutUvarint(buf, n)
	return buf[:w]
}
