package syncer_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/keyring"
	"github.com/rhizomelabs/meshms/meshms/ply"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/store/memstore"
	"github.com/rhizomelabs/meshms/meshms/syncer"
)

func appendMessage(t *testing.T, ctx context.Context, st store.Store, kr *keyring.Keyring, m *store.Manifest, text string) {
	t.Helper()
	authentic, err := kr.AuthenticateAuthor(m)
	require.NoError(t, err)
	require.True(t, authentic)

	var record bytes.Buffer
	_, err = ply.AppendRecord(&record, meshms.RecordMessage, append([]byte(text), 0))
	require.NoError(t, err)

	status, err := st.AppendJournal(ctx, m, 0, record.Bytes())
	require.NoError(t, err)
	require.Equal(t, store.StatusNew, status)
}

func TestSyncOneAppendsAckForNewMessage(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{1})
	kr := keyring.New()

	var alice, bob meshms.SID
	alice[0], bob[0] = 1, 2
	kr.AddSecret(bob, []byte("bob-secret-material-bob-secret!"))

	// bob's ply to alice, with one message already appended.
	theirPly, err := st.NewManifest(ctx, bob, alice)
	require.NoError(t, err)
	require.NoError(t, st.FillManifest(ctx, theirPly, bob))
	appendMessage(t, ctx, st, kr, theirPly, "hello alice")

	conv := &index.Conversation{Them: bob}
	conv.TheirPly = &index.PlyDescriptor{BID: theirPly.BID, Version: theirPly.Version, Size: *theirPly.Filesize, Tail: theirPly.Tail}
	conv.FoundTheirPly = true

	kr.AddSecret(alice, []byte("alice-secret-material-alice-sec!"))

	res, err := syncer.SyncOne(ctx, st, kr, alice, conv)
	require.NoError(t, err)
	require.Equal(t, syncer.Dirty, res)
	require.True(t, conv.FoundMyPly)
	require.Equal(t, *theirPly.Filesize, conv.TheirSize)

	mr, err := ply.Open(ctx, st, conv.MyPly.BID)
	require.NoError(t, err)
	defer mr.Close()
	found, err := mr.FindPrev(meshms.RecordACK)
	require.NoError(t, err)
	require.True(t, found)
}

func TestSyncOneIsCleanWhenNothingChanged(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{2})
	kr := keyring.New()

	conv := &index.Conversation{}
	res, err := syncer.SyncOne(ctx, st, kr, meshms.SID{}, conv)
	require.NoError(t, err)
	require.Equal(t, syncer.Clean, res)
}

func TestSyncOneSkipsWhenSizeUnchanged(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{3})
	kr := keyring.New()

	var alice, bob meshms.SID
	alice[0], bob[0] = 1, 2

	theirPly, err := st.NewManifest(ctx, bob, alice)
	require.NoError(t, err)

	conv := &index.Conversation{Them: bob}
	conv.TheirPly = &index.PlyDescriptor{BID: theirPly.BID, Size: *theirPly.Filesize}
	conv.FoundTheirPly = true
	conv.TheirSize = conv.TheirPly.Size

	res, err := syncer.SyncOne(ctx, st, kr, alice, conv)
	require.NoError(t, err)
	require.Equal(t, syncer.Clean, res)
}

func TestResultString(t *testing.T) {
	require.Equal(t, "clean", syncer.Clean.String())
	require.Equal(t, "dirty", syncer.Dirty.String())
}
