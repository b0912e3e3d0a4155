// Package index implements the conversation and conversation index:
// per-peer cursor state, keyed and ordered by peer SID.
package index

import "github.com/rhizomelabs/meshms/meshms"

// PlyDescriptor is the store-side metadata the index keeps about one
// side of a conversation's pair of plies.
type PlyDescriptor struct {
	BID     meshms.BID
	Version uint64
	Size    int64
	Tail    int64
}

// Conversation is the per-peer cursor state the index tracks.
type Conversation struct {
	Them meshms.SID

	MyPly    *PlyDescriptor
	TheirPly *PlyDescriptor

	FoundMyPly    bool
	FoundTheirPly bool

	// TheirLastMessage is the offset of the last seen MESSAGE
	// record's end in TheirPly.
	TheirLastMessage int64

	// TheirSize is TheirPly.Size at the moment TheirLastMessage was
	// computed, used to skip re-scans.
	TheirSize int64

	// ReadOffset is the user-advanced read marker, bounded above by
	// TheirLastMessage.
	ReadOffset int64
}

// MarkRead advances ReadOffset to at most TheirLastMessage and never
// backwards: an offset past their_last_message clamps, and an offset
// below the current read_offset is a no-op.
func (c *Conversation) MarkRead(offset int64) {
	if offset > c.TheirLastMessage {
		offset = c.TheirLastMessage
	}
	if offset > c.ReadOffset {
		c.ReadOffset = offset
	}
}
