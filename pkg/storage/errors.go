// Package storage implements NervusDB's log-structured graph storage
// engine: a fixed-size pager, a checksummed write-ahead log, a string/label
// interner, an external-to-internal node id map, a blob overflow area, an
// in-memory write buffer (MemTable), immutable frozen L0 runs, a
// compressed-sparse-row segment layout for the compacted base, a coherent
// Snapshot capability, and the Engine that orchestrates transactions and
// background compaction.
//
// Design Principles:
//   - Crash consistency via write-ahead logging with checksummed records
//   - Snapshot isolation: readers never observe uncommitted or future writes
//   - Single-writer, many-reader concurrency
//   - Immutable once-published data structures shared by reference
//
// Example Usage:
//
//	eng, err := storage.Open("/path/to/db", config.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Close()
//
//	tx, _ := eng.BeginWrite()
//	person, _ := tx.GetOrCreateLabel("Person")
//	knows, _ := tx.GetOrCreateLabel("KNOWS")
//	a, _ := tx.CreateNode(10, true, person)
//	b, _ := tx.CreateNode(20, true, person)
//	tx.CreateEdge(a, knows, b)
//	tx.Commit()
//
//	snap := eng.BeginRead()
//	for e := range snap.Neighbors(a, nil) {
//		fmt.Println(e)
//	}
package storage

import (
	"errors"
	"fmt"
)

// Error kinds surfaced externally, matching the spec's fatal/recoverable
// split (see pkg/storage/log.go for which of these are logged before
// returning).
var (
	// ErrInvalidMagic is returned when a data file's header does not match
	// the expected magic bytes.
	ErrInvalidMagic = errors.New("storage: invalid magic")

	// ErrStorageClosed is returned by any operation on a closed Engine.
	ErrStorageClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("storage: not found")

	// ErrWriterBusy is returned if a second concurrent write transaction is
	// attempted (the engine serializes writers internally, so callers will
	// ordinarily block instead of seeing this; it is reserved for
	// try-lock style APIs).
	ErrWriterBusy = errors.New("storage: a write transaction is already in progress")
)

// UnsupportedPageSizeError reports an on-disk page size the pager does not
// support.
type UnsupportedPageSizeError struct {
	Size uint64
}

func (e *UnsupportedPageSizeError) Error() string {
	return fmt.Sprintf("storage: unsupported page size %d", e.Size)
}

// PageIDOutOfRangeError reports an access to a page id beyond the file's
// current extent.
type PageIDOutOfRangeError struct {
	ID uint64
}

func (e *PageIDOutOfRangeError) Error() string {
	return fmt.Sprintf("storage: page id %d out of range", e.ID)
}

// PageNotAllocatedError reports an access to a page id that was never
// allocated.
type PageNotAllocatedError struct {
	ID uint64
}

func (e *PageNotAllocatedError) Error() string {
	return fmt.Sprintf("storage: page id %d not allocated", e.ID)
}

// WALRecordTooLargeError reports a WAL record whose declared length exceeds
// the configured maximum.
type WALRecordTooLargeError struct {
	Len uint32
}

func (e *WALRecordTooLargeError) Error() string {
	return fmt.Sprintf("storage: wal record too large (%d bytes)", e.Len)
}

// WALChecksumMismatchError reports a WAL record whose CRC32 does not match
// its payload while further data follows it in the log, so it cannot be the
// torn tail of a crashed write.
type WALChecksumMismatchError struct {
	Offset int64
}

func (e *WALChecksumMismatchError) Error() string {
	return fmt.Sprintf("storage: wal checksum mismatch at offset %d", e.Offset)
}

// WALProtocolError reports a structural violation of the WAL framing
// protocol (out-of-order record kinds, an unknown record kind, etc).
type WALProtocolError struct {
	Msg string
}

func (e *WALProtocolError) Error() string {
	return fmt.Sprintf("storage: wal protocol error: %s", e.Msg)
}

// StorageCorruptedError reports damage to persisted structures discovered
// outside any recoverable window.
type StorageCorruptedError struct {
	Msg string
}

func (e *StorageCorruptedError) Error() string {
	return fmt.Sprintf("storage: corrupted: %s", e.Msg)
}
