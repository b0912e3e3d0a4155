// Package ply implements the per-participant ply format: framing of
// typed records inside a ply payload and a tail-first reader over that
// payload.
package ply

import (
	"bytes"
	"encoding/binary"

	"github.com/rhizomelabs/meshms/meshms"
)

// FooterLength is the size in bytes of a record's trailing footer.
const FooterLength = 2

// AppendRecord writes payload followed by its two-byte footer
// BE16((len(payload)<<4)|(type&0xF)) to buf, and returns the number of
// bytes written.
func AppendRecord(buf *bytes.Buffer, t meshms.RecordType, payload []byte) (int, error) {
	if len(payload) > meshms.MaxRecordLength {
		return 0, meshms.ErrRecordTooLarge
	}
	footer := (uint16(len(payload)) << 4) | uint16(t&0xF)
	n, err := buf.Write(payload)
	if err != nil {
		return n, err
	}
	var fb [FooterLength]byte
	binary.BigEndian.PutUint16(fb[:], footer)
	if _, err := buf.Write(fb[:]); err != nil {
		return n, err
	}
	return n + FooterLength, nil
}

// DecodeFooter unpacks a two-byte big-endian footer into its record
// type and length.
func DecodeFooter(footer [FooterLength]byte) (meshms.RecordType, int) {
	v := binary.BigEndian.Uint16(footer[:])
	length := int(v >> 4)
	t := meshms.RecordType(v & 0xF)
	return t, length
}
