package varint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhizomelabs/meshms/meshms/varint"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 2, 127, 128, 300, 1<<12 - 1, 1 << 20, 1<<63 - 1}
	for _, v := range values {
		buf := make([]byte, 10)
		n := varint.Pack(v, buf)
		require.Equal(t, varint.Measure(v), n)

		got, read, err := varint.Unpack(buf[:n])
		require.NoError(t, err)
		require.Equal(t, n, read)
		require.Equal(t, v, got)
	}
}

func TestUnpackBufferTooSmall(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80} // continuation bits set throughout, never terminates
	_, _, err := varint.Unpack(buf)
	require.ErrorIs(t, err, varint.ErrBufferTooSmall)
}

func TestUnpackEmpty(t *testing.T) {
	_, _, err := varint.Unpack(nil)
	require.ErrorIs(t, err, varint.ErrBufferTooSmall)
}
