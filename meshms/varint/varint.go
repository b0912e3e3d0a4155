// Package varint packs and unpacks unsigned integers in a
// length-self-describing form, any unambiguous encoding is acceptable
// as long as pack/unpack/measure agree; this wraps the standard
// library's unsigned LEB128 varint, the same encoding protobuf (and so
// most of this module's own CBOR/protobuf-adjacent dependencies)
// already speaks, rather than hand-rolling a second one.
package varint

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	// ErrBufferTooSmall is returned by Unpack when buf does not
	// contain a complete varint.
	ErrBufferTooSmall = errors.New("varint: buffer too short")

	// ErrOverflow is returned by Unpack when the encoded value would
	// overflow 64 bits.
	ErrOverflow = errors.New("varint: value overflows 64 bits")
)

// Pack writes v into buf and returns the number of bytes written. buf
// must have at least Measure(v) bytes of capacity.
func Pack(v uint64, buf []byte) int {
	return binary.PutUvarint(buf, v)
}

// PackTo appends the varint encoding of v to buf and returns the
// number of bytes written.
func PackTo(buf *bytes.Buffer, v uint64) int {
	var scratch [binary.MaxVarintLen64]byte
	n := Pack(v, scratch[:])
	buf.Write(scratch[:n])
	return n
}

// Unpack reads a varint from the front of buf, returning the decoded
// value and the number of bytes consumed.
func Unpack(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	switch {
	case n == 0:
		return 0, 0, ErrBufferTooSmall
	case n < 0:
		return 0, 0, ErrOverflow
	default:
		return v, n, nil
	}
}

// Measure returns the number of bytes Pack(v, ...) would write.
func Measure(v uint64) int {
	var scratch [binary.MaxVarintLen64]byte
	return binary.PutUvarint(scratch[:], v)
}
