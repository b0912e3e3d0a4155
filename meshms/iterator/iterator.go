// Package iterator implements the message iterator: a
// reverse-chronological walk that interleaves a conversation's two
// plies into a single ordered stream of sent and received messages.
package iterator

import (
	"bytes"
	"context"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/ply"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/varint"
)

var log = logging.MustGetLogger("meshms.iterator")

// Direction reports which side of the conversation a Message came
// from.
type Direction uint8

const (
	// Sent is a message this identity authored.
	Sent Direction = iota
	// Received is a message the peer authored.
	Received
)

func (d Direction) String() string {
	if d == Received {
		return "received"
	}
	return "sent"
}

// Message is one yielded step of the iteration.
type Message struct {
	Direction Direction
	Text      string
	// Offset is the end-offset of the record within its ply, the same
	// value an ACK would reference.
	Offset int64
	// Delivered reports whether the peer has acknowledged a sent
	// message; always true for a received one.
	Delivered bool
	// Read reports whether a received message falls at or before the
	// conversation's read marker; always true for a sent message.
	Read bool
}

// Iterator walks a conversation backwards in time across both plies.
//
// sender_reader (mine) carries this identity's own records: MESSAGE
// records it authored, and ACK records it appended acknowledging the
// peer's messages. recipient_reader (their) carries the peer's own
// records the same way. An ACK found while walking mine never marks
// one of my own sent messages delivered — it instead opens a window
// (inAck/endRange) over their ply, within which the peer's messages
// are surfaced as received. Whether a sent message is itself delivered
// is decided once, at Open, from the peer's own last ACK of me.
type Iterator struct {
	conv *index.Conversation

	mine  *ply.Reader // sender_reader
	their *ply.Reader // recipient_reader

	receivedReadOffset int64

	// sentAckOffset is the offset into my_ply up to which the peer has
	// acknowledged receipt, decoded from their_ply's own last ACK at
	// Open. recipientAckOffset is that ACK's own record end-offset,
	// kept for the CLI's delivered marker row.
	sentAckOffset      int64
	recipientAckOffset int64

	// inAck/endRange bound a walk over their ply triggered by an ACK
	// found on mine: only messages with offset >= endRange are
	// surfaced as received, matching what that ACK claims to cover.
	inAck    bool
	endRange int64
}

// Open opens both plies of conv (whichever are present), determines
// the peer's last acknowledgement of my sent messages, and positions
// the iterator ready for the first Prev call.
func Open(ctx context.Context, st store.Store, conv *index.Conversation) (*Iterator, error) {
	it := &Iterator{conv: conv, receivedReadOffset: conv.ReadOffset}
	if !conv.FoundMyPly {
		return it, nil
	}
	mr, err := ply.Open(ctx, st, conv.MyPly.BID)
	if err != nil {
		return nil, err
	}
	it.mine = mr

	if !conv.FoundTheirPly {
		return it, nil
	}
	tr, err := ply.Open(ctx, st, conv.TheirPly.BID)
	if err != nil {
		it.Close()
		return nil, err
	}
	it.their = tr

	found, err := tr.FindPrev(meshms.RecordACK)
	if err != nil {
		it.Close()
		return nil, err
	}
	if found {
		ack, _, decErr := decodeAck(tr.Record())
		if decErr != nil {
			log.Warningf("iterator: malformed ACK in their_ply, ignoring: %s", decErr)
		} else {
			it.sentAckOffset = ack
			it.recipientAckOffset = tr.EndOffset()
		}
	}
	tr.SeekEnd()

	return it, nil
}

// Close releases both underlying ply readers.
func (it *Iterator) Close() error {
	if it.mine != nil {
		it.mine.Close()
	}
	if it.their != nil {
		it.their.Close()
	}
	return nil
}

// RecipientAckOffset is the record end-offset of the peer's own last
// ACK of my messages, as found at Open. Zero if none was found.
func (it *Iterator) RecipientAckOffset() int64 { return it.recipientAckOffset }

// ReceivedReadOffset is the conversation's read marker as snapshotted
// at Open.
func (it *Iterator) ReceivedReadOffset() int64 { return it.receivedReadOffset }

// Prev returns the next message moving backwards in time, or
// ok=false with a nil error once both plies are exhausted.
func (it *Iterator) Prev() (Message, bool, error) {
	if it.inAck {
		msg, ok, err := it.tryRecipientMessage()
		if err != nil {
			return Message{}, false, err
		}
		if ok {
			return msg, true, nil
		}
		it.inAck = false
	}
	return it.stepMine()
}

// tryRecipientMessage looks for the previous MESSAGE record on their
// ply, skipping any interleaved ACK records. It reports ok=false, with
// no error, both when their ply is exhausted and when the next
// MESSAGE found falls outside the current ACK window — in both cases
// the caller clears inAck and falls through to sender_reader.
func (it *Iterator) tryRecipientMessage() (Message, bool, error) {
	found, err := it.their.FindPrev(meshms.RecordMessage)
	if err != nil {
		return Message{}, false, err
	}
	if !found {
		return Message{}, false, nil
	}
	offset := it.their.EndOffset()
	if offset < it.endRange {
		return Message{}, false, nil
	}
	text := decodeMessageText(it.their.Record())
	return Message{
		Direction: Received,
		Text:      text,
		Offset:    offset,
		Delivered: true,
		Read:      offset <= it.receivedReadOffset,
	}, true, nil
}

// stepMine reads the previous record on sender_reader (my_ply). An
// ACK opens a window over their ply and recurses; a MESSAGE is
// surfaced as sent.
func (it *Iterator) stepMine() (Message, bool, error) {
	if it.mine == nil {
		return Message{}, false, nil
	}
	found, err := it.mine.ReadPrev()
	if err != nil || !found {
		return Message{}, false, err
	}
	switch it.mine.Type() {
	case meshms.RecordACK:
		ack, delta, decErr := decodeAck(it.mine.Record())
		if decErr != nil {
			log.Warningf("iterator: malformed ACK in my_ply, skipping: %s", decErr)
			return it.Prev()
		}
		if it.their == nil {
			return it.Prev()
		}
		it.their.SeekTo(ack)
		if delta > 0 {
			it.endRange = ack - delta
		} else {
			it.endRange = 0
		}
		it.inAck = true
		return it.Prev()
	case meshms.RecordMessage:
		text := decodeMessageText(it.mine.Record())
		offset := it.mine.EndOffset()
		return Message{
			Direction: Sent,
			Text:      text,
			Offset:    offset,
			Delivered: it.sentAckOffset != 0 && offset <= it.sentAckOffset,
			Read:      true,
		}, true, nil
	default:
		return it.Prev()
	}
}

// decodeAck unpacks an ACK payload: a mandatory ack_offset varint
// followed by an optional delta varint. delta is 0 when absent.
func decodeAck(payload []byte) (ack int64, delta int64, err error) {
	a, n, err := varint.Unpack(payload)
	if err != nil {
		return 0, 0, meshms.ErrMalformedAck
	}
	ack = int64(a)
	if n >= len(payload) {
		return ack, 0, nil
	}
	d, _, err := varint.Unpack(payload[n:])
	if err != nil {
		return ack, 0, nil
	}
	return ack, int64(d), nil
}

// decodeMessageText strips the single trailing NUL a MESSAGE record's
// payload is terminated with and applies NFC normalisation, matching
// the form outgoing text is normalised to before it is ever written.
func decodeMessageText(payload []byte) string {
	payload = bytes.TrimSuffix(payload, []byte{0})
	return norm.NFC.String(string(payload))
}
