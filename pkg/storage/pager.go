package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// PageSize is the fixed size, in bytes, of every page the Pager allocates.
const PageSize = 8192

// magicBytes is the 16-byte file header magic identifying a NervusDB data
// file, padded to 16 bytes.
var magicBytes = [16]byte{'N', 'E', 'R', 'V', 'U', 'S', 'D', 'B', 'v', '2', 0, 0, 0, 0, 0, 0}

const (
	fileVersionMajor uint32 = 2
	fileVersionMinor uint32 = 0
	headerSize              = 16 + 4 + 4 // magic + major + minor
)

// PageID identifies a fixed-size page within a data file.
type PageID uint64

// Pager is a fixed-size page allocator over a single data file. It owns the
// file header (magic + version) and rejects out-of-range or unallocated
// page ids. Pages beyond the current extent are zero-initialized the first
// time they are allocated.
//
// Pager is not safe for concurrent use without external synchronization;
// the Engine serializes all writer access and readers only ever read
// immutable, already-written pages.
type Pager struct {
	file      *os.File
	pageCount uint64
}

// OpenPager opens (creating if necessary) the data file at path and
// validates or writes its header.
func OpenPager(path string) (*Pager, error) {
	existed := true
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		existed = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	p := &Pager{file: f}
	if !existed {
		if err := p.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := p.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	dataBytes := info.Size() - headerSize
	if dataBytes < 0 {
		dataBytes = 0
	}
	p.pageCount = uint64(dataBytes) / PageSize
	return p, nil
}

func (p *Pager) writeHeader() error {
	buf := make([]byte, headerSize)
	copy(buf[0:16], magicBytes[:])
	binary.BigEndian.PutUint32(buf[16:20], fileVersionMajor)
	binary.BigEndian.PutUint32(buf[20:24], fileVersionMinor)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return err
	}
	return p.file.Sync()
}

func (p *Pager) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(io.NewSectionReader(p.file, 0, headerSize), buf); err != nil {
		logger.Error("pager: failed reading header", "err", err)
		return fmt.Errorf("storage: reading header: %w", err)
	}
	if string(buf[0:16]) != string(magicBytes[:]) {
		logger.Error("pager: invalid magic")
		return ErrInvalidMagic
	}
	major := binary.BigEndian.Uint32(buf[16:20])
	if major != fileVersionMajor {
		err := &UnsupportedPageSizeError{Size: uint64(major)}
		logger.Error("pager: unsupported version", "major", major)
		return err
	}
	return nil
}

// PageCount returns the number of pages currently allocated.
func (p *Pager) PageCount() uint64 { return p.pageCount }

// Allocate reserves the next page id and returns it, zero-initialized.
func (p *Pager) Allocate() (PageID, error) {
	id := PageID(p.pageCount)
	zero := make([]byte, PageSize)
	if err := p.WritePage(id, zero); err != nil {
		return 0, err
	}
	p.pageCount++
	return id, nil
}

func (p *Pager) offset(id PageID) int64 {
	return headerSize + int64(id)*PageSize
}

// ReadPage reads the full contents of page id.
func (p *Pager) ReadPage(id PageID) ([]byte, error) {
	if uint64(id) >= p.pageCount {
		logger.Error("pager: page id out of range", "id", uint64(id))
		return nil, &PageIDOutOfRangeError{ID: uint64(id)}
	}
	buf := make([]byte, PageSize)
	if _, err := p.file.ReadAt(buf, p.offset(id)); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// WritePage overwrites the full contents of page id. id must already be
// allocated, or be exactly the next sequential id (used internally by
// Allocate).
func (p *Pager) WritePage(id PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("storage: page write must be exactly %d bytes, got %d", PageSize, len(data))
	}
	if uint64(id) > p.pageCount {
		return &PageNotAllocatedError{ID: uint64(id)}
	}
	_, err := p.file.WriteAt(data, p.offset(id))
	return err
}

// Sync flushes the underlying file to stable storage.
func (p *Pager) Sync() error {
	return p.file.Sync()
}

// Close releases the underlying file handle.
func (p *Pager) Close() error {
	return p.file.Close()
}
