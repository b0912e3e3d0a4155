package bundle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/bundle"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/keyring"
	"github.com/rhizomelabs/meshms/meshms/store/memstore"
)

func TestDeriveIsDeterministic(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{4})
	kr := keyring.New()

	var alice meshms.SID
	alice[0] = 1
	kr.AddSecret(alice, []byte("alice-long-term-secret-material!"))

	m1, created1, err := bundle.Derive(ctx, st, kr, alice)
	require.NoError(t, err)
	require.True(t, created1)

	m2, created2, err := bundle.Derive(ctx, st, kr, alice)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, m1.BID, m2.BID)
}

func TestDeriveWithoutSecretFails(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{5})
	kr := keyring.New()

	_, _, err := bundle.Derive(ctx, st, kr, meshms.SID{})
	require.ErrorIs(t, err, meshms.ErrNotFound)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{6})
	kr := keyring.New()

	var alice, bob, carol meshms.SID
	alice[0], bob[0], carol[0] = 1, 2, 3
	kr.AddSecret(alice, []byte("alice-long-term-secret-material!"))

	m, _, err := bundle.Derive(ctx, st, kr, alice)
	require.NoError(t, err)

	idx := index.New()
	cb := idx.GetOrCreate(bob)
	cb.TheirSize = 100
	cb.TheirLastMessage = 80
	cb.ReadOffset = 40
	cc := idx.GetOrCreate(carol)
	cc.TheirSize = 9
	cc.TheirLastMessage = 9
	cc.ReadOffset = 9

	require.NoError(t, bundle.Write(ctx, st, m, idx))

	got, err := bundle.Read(ctx, st, m)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())

	gotBob, ok := got.Get(bob)
	require.True(t, ok)
	require.Equal(t, int64(100), gotBob.TheirSize)
	require.Equal(t, int64(80), gotBob.TheirLastMessage)
	require.Equal(t, int64(40), gotBob.ReadOffset)

	gotCarol, ok := got.Get(carol)
	require.True(t, ok)
	require.Equal(t, int64(9), gotCarol.TheirSize)
}

func TestReadOfNeverWrittenBundleIsEmpty(t *testing.T) {
	ctx := context.Background()
	st := memstore.New([32]byte{7})
	kr := keyring.New()

	var alice meshms.SID
	alice[0] = 1
	kr.AddSecret(alice, []byte("alice-long-term-secret-material!"))

	m, _, err := bundle.Derive(ctx, st, kr, alice)
	require.NoError(t, err)

	idx, err := bundle.Read(ctx, st, m)
	require.NoError(t, err)
	require.Equal(t, 0, idx.Len())
}
