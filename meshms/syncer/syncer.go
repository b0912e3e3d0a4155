// Package syncer implements the synchroniser: for each conversation,
// detect new incoming messages and append ACK records so the peer can
// eventually learn what has been received.
package syncer

import (
	"bytes"
	"context"

	"gopkg.in/eapache/channels.v1"
	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/metrics"
	"github.com/rhizomelabs/meshms/meshms/ply"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/varint"
)

var log = logging.MustGetLogger("meshms.syncer")

// Result is a small sum type in place of an overloaded {-1, 0, 1}
// return code: Clean and Dirty can never be mistaken for each other by
// a wrong integer comparison.
type Result uint8

const (
	// Clean means the conversation had nothing new to acknowledge.
	Clean Result = iota
	// Dirty means cursor state changed and should be persisted.
	Dirty
)

func (r Result) String() string {
	if r == Dirty {
		return "dirty"
	}
	return "clean"
}

// Outcome is the per-conversation result of one synchroniser pass.
type Outcome struct {
	Conv   *index.Conversation
	Result Result
	Err    error
}

// SyncAll walks idx in SID order and calls SyncOne for each
// conversation. Conversations are fed through an eapache/channels
// infinite queue by a goroutine walking the index, so that a slow
// append on one conversation never blocks that walk from enqueueing
// the rest of the pass.
func SyncAll(ctx context.Context, st store.Store, kr store.Keyring, mySID meshms.SID, idx *index.Index, m *metrics.Metrics) []Outcome {
	q := channels.NewInfiniteChannel()
	go func() {
		_ = idx.ForEach(func(c *index.Conversation) error {
			q.In() <- c
			return nil
		})
		q.Close()
	}()

	outcomes := make([]Outcome, 0, idx.Len())
	for v := range q.Out() {
		conv := v.(*index.Conversation)
		res, err := SyncOne(ctx, st, kr, mySID, conv)
		outcomes = append(outcomes, Outcome{Conv: conv, Result: res, Err: err})
		if m != nil {
			m.SyncPasses.Inc()
			switch {
			case err != nil && meshms.ErrGazumped == err:
				m.Gazumped.Inc()
			case err != nil && meshms.ErrStoreInconsistent == err:
				m.StoreInconsist.Inc()
			case err != nil:
				// other failures count only towards SyncPasses
			case res == Dirty:
				m.SyncDirty.Inc()
			default:
				m.SyncClean.Inc()
			}
		}
		if err != nil {
			log.Warningf("sync: conversation them=%s: %s", conv.Them, err)
		}
	}
	return outcomes
}

// SyncOne reconciles one conversation against the peer's latest ply.
func SyncOne(ctx context.Context, st store.Store, kr store.Keyring, mySID meshms.SID, conv *index.Conversation) (Result, error) {
	if !conv.FoundTheirPly {
		return Clean, nil
	}
	if conv.TheirSize == conv.TheirPly.Size {
		return Clean, nil
	}

	tr, err := ply.Open(ctx, st, conv.TheirPly.BID)
	if err != nil {
		return Clean, err
	}
	defer tr.Close()

	found, err := tr.FindPrev(meshms.RecordMessage)
	if err != nil {
		return Clean, err
	}
	if !found {
		return Clean, nil
	}
	conv.TheirLastMessage = tr.EndOffset()

	previousAck := readPreviousAck(ctx, st, conv)

	if previousAck >= conv.TheirLastMessage {
		conv.TheirSize = conv.TheirPly.Size
		return Dirty, nil
	}

	status, err := appendAck(ctx, st, kr, mySID, conv, previousAck)
	if err != nil {
		return Dirty, err
	}
	switch {
	case status == store.StatusNew:
		conv.TheirSize = conv.TheirPly.Size
		return Dirty, nil
	case status.Gazumped():
		return Dirty, meshms.ErrGazumped
	default:
		return Dirty, meshms.ErrStoreInconsistent
	}
}

// readPreviousAck returns the ack_offset of my_ply's last ACK record,
// or 0 if my_ply doesn't exist yet or its last ACK is absent or
// malformed.
func readPreviousAck(ctx context.Context, st store.Store, conv *index.Conversation) int64 {
	if !conv.FoundMyPly {
		return 0
	}
	mr, err := ply.Open(ctx, st, conv.MyPly.BID)
	if err != nil {
		return 0
	}
	defer mr.Close()

	found, err := mr.FindPrev(meshms.RecordACK)
	if err != nil || !found {
		return 0
	}
	v, _, err := varint.Unpack(mr.Record())
	if err != nil {
		return 0
	}
	return int64(v)
}

// appendAck builds and appends a new ACK record to conv's my_ply,
// creating it first if it doesn't exist yet.
func appendAck(ctx context.Context, st store.Store, kr store.Keyring, mySID meshms.SID, conv *index.Conversation, previousAck int64) (store.FinaliseStatus, error) {
	var m *store.Manifest
	var err error
	if conv.FoundMyPly {
		m, _, err = st.RetrieveManifest(ctx, conv.MyPly.BID)
		if err != nil {
			return store.StatusError, err
		}
	} else {
		m, err = st.NewManifest(ctx, mySID, conv.Them)
		if err != nil {
			return store.StatusError, err
		}
		if err := st.FillManifest(ctx, m, mySID); err != nil {
			return store.StatusError, err
		}
	}

	authentic, err := kr.AuthenticateAuthor(m)
	if err != nil {
		return store.StatusError, err
	}
	if !authentic {
		return store.StatusError, meshms.ErrNotAuthentic
	}

	var payload bytes.Buffer
	varint.PackTo(&payload, uint64(conv.TheirLastMessage))
	if previousAck != 0 {
		varint.PackTo(&payload, uint64(conv.TheirLastMessage-previousAck))
	}

	var record bytes.Buffer
	if _, err := ply.AppendRecord(&record, meshms.RecordACK, payload.Bytes()); err != nil {
		return store.StatusError, err
	}

	status, err := st.AppendJournal(ctx, m, 0, record.Bytes())
	if err != nil {
		return status, err
	}
	if status == store.StatusNew {
		conv.MyPly = &index.PlyDescriptor{BID: m.BID, Version: m.Version, Size: *m.Filesize, Tail: m.Tail}
		conv.FoundMyPly = true
	}
	return status, nil
}
