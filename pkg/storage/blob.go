package storage

import "encoding/binary"

// blobChainHeaderSize is the per-page bookkeeping overhead in a blob chain
// page: next page id (8 bytes) + payload length in this page (4 bytes).
const blobChainHeaderSize = 8 + 4
const blobPagePayload = PageSize - blobChainHeaderSize

// BlobHandle replaces an oversized property value in storage. Reads
// transparently materialize the handle back into the original bytes.
type BlobHandle struct {
	FirstPage PageID
	Length    uint64
}

// BlobStore stores property values that exceed the inline threshold as a
// chain of fixed-size pages. The exact on-disk chain layout is an
// implementation detail; only the
// round-trip property (decode(write(v)) == v) is required, which this
// layout satisfies.
type BlobStore struct {
	pager *Pager
}

// NewBlobStore wraps a Pager with blob chain read/write support.
func NewBlobStore(pager *Pager) *BlobStore {
	return &BlobStore{pager: pager}
}

// Write spills data across as many chained pages as needed and returns a
// handle to the chain's first page.
func (b *BlobStore) Write(data []byte) (BlobHandle, error) {
	if len(data) == 0 {
		return BlobHandle{FirstPage: 0, Length: 0}, nil
	}

	// Allocate every page up front so each page's header can record the
	// next page id as it is written.
	numPages := (len(data) + blobPagePayload - 1) / blobPagePayload
	pageIDs := make([]PageID, numPages)
	for i := 0; i < numPages; i++ {
		id, err := b.pager.Allocate()
		if err != nil {
			return BlobHandle{}, err
		}
		pageIDs[i] = id
	}

	for i := 0; i < numPages; i++ {
		start := i * blobPagePayload
		end := start + blobPagePayload
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]

		page := make([]byte, PageSize)
		var next PageID = ^PageID(0) // sentinel: no next page
		if i+1 < numPages {
			next = pageIDs[i+1]
		}
		binary.BigEndian.PutUint64(page[0:8], uint64(next))
		binary.BigEndian.PutUint32(page[8:12], uint32(len(chunk)))
		copy(page[blobChainHeaderSize:], chunk)

		if err := b.pager.WritePage(pageIDs[i], page); err != nil {
			return BlobHandle{}, err
		}
	}

	return BlobHandle{FirstPage: pageIDs[0], Length: uint64(len(data))}, nil
}

// Read materializes the full byte sequence referenced by h.
func (b *BlobStore) Read(h BlobHandle) ([]byte, error) {
	if h.Length == 0 {
		return nil, nil
	}

	out := make([]byte, 0, h.Length)
	page := h.FirstPage
	for {
		data, err := b.pager.ReadPage(page)
		if err != nil {
			return nil, err
		}
		next := PageID(binary.BigEndian.Uint64(data[0:8]))
		chunkLen := binary.BigEndian.Uint32(data[8:12])
		out = append(out, data[blobChainHeaderSize:blobChainHeaderSize+int(chunkLen)]...)

		if next == ^PageID(0) {
			break
		}
		page = next
	}
	return out, nil
}
