package storage

import "encoding/binary"

// appendUvarint appends n to buf as an unsigned varint.
func appendUvarint(buf []byte, n uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	w := binary.PutUvarint(tmp[:], n)
	return append(buf, tmp[:w]...)
}

// appendBytes appends a varint length prefix followed by data.
func appendBytes(buf []byte, data []byte) []byte {
	buf = appendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// readUvarint reads an unsigned varint from the front of data, returning
// the value and the remaining slice.
func readUvarint(data []byte) (uint64, []byte, error) {
	n, w := binary.Uvarint(data)
	if w <= 0 {
		return 0, nil, &WALProtocolError{Msg: "truncated varint"}
	}
	return n, data[w:], nil
}

// readBytes reads a varint-length-prefixed byte slice from the front of
// data, returning the slice and the remainder.
func readBytes(data []byte) ([]byte, []byte, error) {
	n, rest, err := readUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, &WALProtocolError{Msg: "truncated byte field"}
	}
	return rest[:n], rest[n:], nil
}
