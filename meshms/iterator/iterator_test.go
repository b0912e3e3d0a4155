package iterator_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/iterator"
	"github.com/rhizomelabs/meshms/meshms/ply"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/store/memstore"
	"github.com/rhizomelabs/meshms/meshms/varint"
)

func appendMessage(t *testing.T, ctx context.Context, st store.Store, m *store.Manifest, text string) {
	t.Helper()
	var record bytes.Buffer
	_, err := ply.AppendRecord(&record, meshms.RecordMessage, append([]byte(text), 0))
	require.NoError(t, err)
	_, err = st.AppendJournal(ctx, m, 0, record.Bytes())
	require.NoError(t, err)
}

func appendAck(t *testing.T, ctx context.Context, st store.Store, m *store.Manifest, ackOffset int64) {
	t.Helper()
	var payload bytes.Buffer
	varint.PackTo(&payload, uint64(ackOffset))
	var record bytes.Buffer
	_, err := ply.AppendRecord(&record, meshms.RecordACK, payload.Bytes())
	require.NoError(t, err)
	_, err = st.AppendJournal(ctx, m, 0, record.Bytes())
	require.NoError(t, err)
}

func TestIteratorInterleavesSentAndReceived(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{9})

	var alice, bob meshms.SID
	alice[0], bob[0] = 1, 2

	mine, err := st.NewManifest(ctx, alice, bob)
	require.NoError(t, err)
	appendMessage(t, ctx, st, mine, "hi bob")

	theirs, err := st.NewManifest(ctx, bob, alice)
	require.NoError(t, err)
	appendMessage(t, ctx, st, theirs, "hi alice")

	// Alice acknowledges Bob's message in her own ply (mine): this is
	// what opens the window that surfaces it as received.
	appendAck(t, ctx, st, mine, *theirs.Filesize)
	// Bob acknowledges Alice's message in his own ply (theirs, from
	// Alice's point of view): this is what marks Alice's sent message
	// delivered.
	appendAck(t, ctx, st, theirs, *mine.Filesize)

	conv := &index.Conversation{Them: bob}
	conv.MyPly = &index.PlyDescriptor{BID: mine.BID}
	conv.FoundMyPly = true
	conv.TheirPly = &index.PlyDescriptor{BID: theirs.BID}
	conv.FoundTheirPly = true
	conv.ReadOffset = 0

	it, err := iterator.Open(ctx, st, conv)
	require.NoError(t, err)
	defer it.Close()

	var got []iterator.Message
	for {
		msg, ok, err := it.Prev()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, msg)
	}

	require.Len(t, got, 2)
	byText := map[string]iterator.Message{}
	for _, m := range got {
		byText[m.Text] = m
	}

	sent, ok := byText["hi bob"]
	require.True(t, ok)
	require.Equal(t, iterator.Sent, sent.Direction)
	require.True(t, sent.Delivered, "sent message should be delivered once the peer's own ply carries an ACK of it")

	received, ok := byText["hi alice"]
	require.True(t, ok)
	require.Equal(t, iterator.Received, received.Direction)
	require.False(t, received.Read)
}

func TestIteratorGatesReceivedMessagesOutsideAckRange(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{11})

	var alice, bob meshms.SID
	alice[0], bob[0] = 1, 2

	mine, err := st.NewManifest(ctx, alice, bob)
	require.NoError(t, err)

	theirs, err := st.NewManifest(ctx, bob, alice)
	require.NoError(t, err)
	appendMessage(t, ctx, st, theirs, "first")
	firstEnd := *theirs.Filesize
	appendMessage(t, ctx, st, theirs, "second")

	// Alice has only acknowledged Bob's ply up to the end of "first";
	// "second" falls outside every ACK window and must not surface.
	appendAck(t, ctx, st, mine, firstEnd)

	conv := &index.Conversation{Them: bob}
	conv.MyPly = &index.PlyDescriptor{BID: mine.BID}
	conv.FoundMyPly = true
	conv.TheirPly = &index.PlyDescriptor{BID: theirs.BID}
	conv.FoundTheirPly = true

	it, err := iterator.Open(ctx, st, conv)
	require.NoError(t, err)
	defer it.Close()

	var got []iterator.Message
	for {
		msg, ok, err := it.Prev()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, msg)
	}

	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].Text)
}

func TestIteratorSentMessageNotDeliveredWithoutPeerAck(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{12})

	var alice, bob meshms.SID
	alice[0], bob[0] = 1, 2

	mine, err := st.NewManifest(ctx, alice, bob)
	require.NoError(t, err)
	appendMessage(t, ctx, st, mine, "hi bob")

	conv := &index.Conversation{Them: bob}
	conv.MyPly = &index.PlyDescriptor{BID: mine.BID}
	conv.FoundMyPly = true

	it, err := iterator.Open(ctx, st, conv)
	require.NoError(t, err)
	defer it.Close()

	msg, ok, err := it.Prev()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, iterator.Sent, msg.Direction)
	require.False(t, msg.Delivered)

	_, ok, err = it.Prev()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIteratorEmptyConversationYieldsNothing(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{10})
	conv := &index.Conversation{}

	it, err := iterator.Open(ctx, st, conv)
	require.NoError(t, err)
	defer it.Close()

	_, ok, err := it.Prev()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "sent", iterator.Sent.String())
	require.Equal(t, "received", iterator.Received.String())
}
