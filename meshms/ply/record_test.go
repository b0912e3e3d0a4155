package ply_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/ply"
)

func TestAppendDecodeFooter(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hi\x00")
	n, err := ply.AppendRecord(&buf, meshms.RecordMessage, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload)+ply.FooterLength, n)

	b := buf.Bytes()
	require.Equal(t, payload, b[:len(payload)])

	var footer [2]byte
	copy(footer[:], b[len(payload):])
	typ, length := ply.DecodeFooter(footer)
	require.Equal(t, meshms.RecordMessage, typ)
	require.Equal(t, len(payload), length)
}

func TestAppendRecordTooLarge(t *testing.T) {
	var buf bytes.Buffer
	_, err := ply.AppendRecord(&buf, meshms.RecordMessage, make([]byte, meshms.MaxRecordLength+1))
	require.ErrorIs(t, err, meshms.ErrRecordTooLarge)
}
