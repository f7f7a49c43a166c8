// Copyright 2025 Certen Protocol
//
// Canonical binary codec helpers
// Everything that is signed, hashed or posted to the DA layer is encoded
// with these primitives so the signing bytes, the hashing bytes and the
// wire bytes are the same bytes.

package types

import (
	"encoding/binary"
	"fmt"
)

// appendBytes appends a u32 big-endian length prefix followed by the data.
func appendBytes(out []byte, b []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(b)))
	return append(out, b...)
}

// readBytes consumes a length-prefixed byte string, returning the data and
// the new offset.
func readBytes(b []byte, off int) ([]byte, int, error) {
	if len(b) < off+4 {
		return nil, 0, fmt.Errorf("codec: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if len(b) < off+n {
		return nil, 0, fmt.Errorf("codec: truncated byte string (want %d)", n)
	}
	data := make([]byte, n)
	copy(data, b[off:off+n])
	return data, off + n, nil
}

// readU64 consumes a big-endian uint64.
func readU64(b []byte, off int) (uint64, int, error) {
	if len(b) < off+8 {
		return 0, 0, fmt.Errorf("codec: truncated uint64")
	}
	return binary.BigEndian.Uint64(b[off : off+8]), off + 8, nil
}

// readHash consumes 32 bytes.
func readHash(b []byte, off int) ([32]byte, int, error) {
	var h [32]byte
	if len(b) < off+32 {
		return h, 0, fmt.Errorf("codec: truncated hash")
	}
	copy(h[:], b[off:off+32])
	return h, off + 32, nil
}
