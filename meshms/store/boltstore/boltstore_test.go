package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/store/boltstore"
)

func open(t *testing.T) *boltstore.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := boltstore.Open(filepath.Join(dir, "meshms.db"), [32]byte{0x42})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAppendJournalAndRetrieve(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	var alice, bob meshms.SID
	alice[0], bob[0] = 1, 2

	m, err := st.NewManifest(ctx, alice, bob)
	require.NoError(t, err)

	status, err := st.AppendJournal(ctx, m, 0, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, store.StatusNew, status)

	got, payloadStatus, err := st.RetrieveManifest(ctx, m.BID)
	require.NoError(t, err)
	require.Equal(t, store.StatusStored, payloadStatus)
	require.Equal(t, uint64(1), got.Version)

	dr, err := st.OpenDecryptingReader(ctx, got)
	require.NoError(t, err)
	defer dr.Close()
	buf := make([]byte, 5)
	_, err = dr.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestNewManifestFromSeedIsDeterministic(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	seed := []byte("a-fixed-seed")
	m1, created1, err := st.NewManifestFromSeed(ctx, seed)
	require.NoError(t, err)
	require.True(t, created1)

	m2, created2, err := st.NewManifestFromSeed(ctx, seed)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, m1.BID, m2.BID)
}

func TestQueryMeshMSManifestsFiltersByParticipant(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	var alice, bob, carol meshms.SID
	alice[0], bob[0], carol[0] = 1, 2, 3

	m1, err := st.NewManifest(ctx, alice, bob)
	require.NoError(t, err)
	_, err = st.AppendJournal(ctx, m1, 0, []byte("x"))
	require.NoError(t, err)

	m2, err := st.NewManifest(ctx, carol, bob)
	require.NoError(t, err)
	_, err = st.AppendJournal(ctx, m2, 0, []byte("y"))
	require.NoError(t, err)

	rows, err := st.QueryMeshMSManifests(ctx, alice, nil)
	require.NoError(t, err)
	defer rows.Close()

	var n int
	for rows.Next() {
		n++
		require.Equal(t, alice, rows.Row().Sender)
	}
	require.Equal(t, 1, n)
}
