package store

import (
	"crypto/sha512"

	"filippo.io/edwards25519"

	"github.com/rhizomelabs/meshms/meshms"
)

// DeriveBIDFromSeed deterministically derives a bundle identifier from
// an arbitrary seed string: the seed is hashed down to a scalar and
// multiplied by the edwards25519 base point, the same low-level curve
// arithmetic used elsewhere in this codebase when key material is
// needed beyond what crypto/ed25519 exposes directly (see DESIGN.md).
//
// This is deliberately not a full Ed25519 keypair derivation (the
// store's manifest signing material is an external concern); it only
// needs to be deterministic and collision-resistant so that the same
// owning SID always recovers the same conversation-bundle BID.
func DeriveBIDFromSeed(seed []byte) meshms.BID {
	h := sha512.Sum512(seed)
	s, err := edwards25519.NewScalar().SetUniformBytes(h[:])
	if err != nil {
		// SetUniformBytes only fails on a wrong-length input; h is
		// always 64 bytes, so this is unreachable.
		panic("meshms/store: unreachable: " + err.Error())
	}
	point := new(edwards25519.Point).ScalarBaseMult(s)

	var bid meshms.BID
	copy(bid[:], point.Bytes())
	return bid
}
