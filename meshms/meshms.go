// Package meshms implements the core of a store-and-forward mesh
// messaging layer built on top of a content-addressed bundle store.
// Two participants identified by long-term public keys ("SIDs")
// exchange text messages as an append-only encrypted journal ("ply")
// per direction; delivery, read, and acknowledgement state are
// reconstructed by scanning plies backwards. This package holds the
// identifiers and record types shared by every other meshms/...
// package.
package meshms

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// SIDLength is the length in bytes of a subscriber identifier.
const SIDLength = 32

// BIDLength is the length in bytes of a bundle identifier.
const BIDLength = 32

// SID is a participant's long-term public key, totally ordered by
// lexicographic byte comparison.
type SID [SIDLength]byte

// Compare returns -1, 0, or 1 as s is less than, equal to, or greater
// than other, by lexicographic byte order.
func (s SID) Compare(other SID) int {
	return bytes.Compare(s[:], other[:])
}

// IsZero reports whether s is the zero value.
func (s SID) IsZero() bool {
	return s == SID{}
}

func (s SID) String() string {
	return hex.EncodeToString(s[:])
}

// SIDFromHex parses a hex-encoded SID. Hex parsing on every boundary
// that accepts a SID is strict: wrong length or invalid hex is an error.
func SIDFromHex(s string) (SID, error) {
	var sid SID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return sid, fmt.Errorf("meshms: invalid SID hex %q: %w", s, err)
	}
	if len(raw) != SIDLength {
		return sid, fmt.Errorf("meshms: SID must be %d bytes, got %d", SIDLength, len(raw))
	}
	copy(sid[:], raw)
	return sid, nil
}

// BID is an opaque, content-addressed identifier for a ply bundle in
// the store.
type BID [BIDLength]byte

func (b BID) String() string {
	return hex.EncodeToString(b[:])
}

// IsZero reports whether b is the zero value (no bundle yet).
func (b BID) IsZero() bool {
	return b == BID{}
}

// BIDFromHex parses a hex-encoded BID.
func BIDFromHex(s string) (BID, error) {
	var bid BID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return bid, fmt.Errorf("meshms: invalid BID hex %q: %w", s, err)
	}
	if len(raw) != BIDLength {
		return bid, fmt.Errorf("meshms: BID must be %d bytes, got %d", BIDLength, len(raw))
	}
	copy(bid[:], raw)
	return bid, nil
}

// RecordType identifies the kind of a framed record inside a ply
// payload.
type RecordType uint8

const (
	// RecordACK names the offset up to which the writer has observed
	// the peer's ply.
	RecordACK RecordType = 0x1
	// RecordMessage carries a NUL-terminated text message.
	RecordMessage RecordType = 0x2
	// RecordBIDReference is reserved; the core never emits it.
	RecordBIDReference RecordType = 0x3
)

func (t RecordType) String() string {
	switch t {
	case RecordACK:
		return "ACK"
	case RecordMessage:
		return "MESSAGE"
	case RecordBIDReference:
		return "BID_REFERENCE"
	default:
		return fmt.Sprintf("RecordType(0x%x)", uint8(t))
	}
}

// ServiceMeshMS2 is the store service tag used to discover ply
// manifests belonging to this protocol version.
const ServiceMeshMS2 = "MeshMS2"

// Service tag used for the self-addressed conversation-index bundle,
// set by bundle.Derive. It is "file" rather than "MeshMS2", so
// discovery's MeshMS2 query never lists the bundle as a ply.
const ServiceConversationBundle = "file"

// MaxRecordLength is the largest payload length the footer encoding
// can express: 12 bits of length packed alongside a 4-bit type in a
// 16-bit footer.
const MaxRecordLength = 1<<12 - 1
