// Package bundle implements the conversation bundle: a self-addressed,
// deterministically derived manifest that persists a conversation
// index's cursor state so it survives a process restart without
// rescanning every ply from scratch.
package bundle

import (
	"bytes"
	"context"
	"encoding/hex"

	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/varint"
)

var log = logging.MustGetLogger("meshms.bundle")

// recordVersion is the single format tag that leads a conversation
// bundle payload, once, ahead of all records; an unrecognised leading
// byte causes the whole payload to be ignored (an empty index) rather
// than treated as fatal corruption.
const recordVersion = 0x01

// seedPrefix and seedSuffix derive the bundle's deterministic seed by
// bracketing the hex-encoded secret so the derived BID can never
// collide with an ordinary ply's.
const (
	seedPrefix = "incorrection"
	seedSuffix = "concentrativeness"
)

// Derive computes the conversation bundle's manifest, deriving its
// seed from mySID's own secret via kr. The bundle is self-addressed:
// sender and recipient are both mySID.
func Derive(ctx context.Context, st store.Store, kr store.Keyring, mySID meshms.SID) (*store.Manifest, bool, error) {
	secret, ok := kr.FindSID(mySID)
	if !ok {
		return nil, false, meshms.ErrNotFound
	}
	seed := []byte(seedPrefix + hex.EncodeToString(secret) + seedSuffix)
	m, created, err := st.NewManifestFromSeed(ctx, seed)
	if err != nil {
		return nil, false, err
	}
	m.Service = meshms.ServiceConversationBundle
	m.Sender, m.Recipient = mySID, mySID
	return m, created, nil
}

// Read parses a conversation bundle's payload into an Index, skipping
// any trailing bytes that don't form a complete record: malformed
// trailing data is ignored, not fatal.
func Read(ctx context.Context, st store.Store, m *store.Manifest) (*index.Index, error) {
	idx := index.New()

	fresh, status, err := st.RetrieveManifest(ctx, m.BID)
	if err != nil {
		return nil, err
	}
	if status != store.StatusStored {
		return idx, nil
	}

	dr, err := st.OpenDecryptingReader(ctx, fresh)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(dr); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if len(data) == 0 {
		return idx, nil
	}
	if data[0] != recordVersion {
		log.Warningf("bundle: unrecognised record tag 0x%x, ignoring payload", data[0])
		return idx, nil
	}
	data = data[1:]

	for len(data) > 0 {
		if len(data) < 32 {
			break
		}
		var them meshms.SID
		copy(them[:], data[:32])
		data = data[32:]

		lastMsg, n, err := varint.Unpack(data)
		if err != nil {
			break
		}
		data = data[n:]
		readOff, n, err := varint.Unpack(data)
		if err != nil {
			break
		}
		data = data[n:]
		size, n, err := varint.Unpack(data)
		if err != nil {
			break
		}
		data = data[n:]

		conv := idx.GetOrCreate(them)
		conv.TheirLastMessage = int64(lastMsg)
		conv.ReadOffset = int64(readOff)
		conv.TheirSize = int64(size)
	}
	return idx, nil
}

// Write serialises idx and commits it as a full rewrite of m's
// payload, mapping the finalise outcome to the core's gazumped/
// inconsistent sentinels the way the synchroniser does.
func Write(ctx context.Context, st store.Store, m *store.Manifest, idx *index.Index) error {
	w, err := st.OpenWrite(ctx, m)
	if err != nil {
		return err
	}

	var failed error
	wroteTag := false
	err = idx.ForEach(func(c *index.Conversation) error {
		var rec bytes.Buffer
		if !wroteTag {
			rec.WriteByte(recordVersion)
			wroteTag = true
		}
		rec.Write(c.Them[:])
		varint.PackTo(&rec, uint64(c.TheirLastMessage))
		varint.PackTo(&rec, uint64(c.ReadOffset))
		varint.PackTo(&rec, uint64(c.TheirSize))
		_, werr := w.Write(rec.Bytes())
		return werr
	})
	if err != nil {
		failed = err
	}
	if !wroteTag {
		if _, werr := w.Write([]byte{recordVersion}); werr != nil && failed == nil {
			failed = werr
		}
	}

	if failed != nil {
		_ = w.Fail()
		return failed
	}

	status, err := w.Finish()
	if err != nil {
		return err
	}
	switch {
	case status == store.StatusNew:
		return nil
	case status.Gazumped():
		return meshms.ErrGazumped
	default:
		return meshms.ErrStoreInconsistent
	}
}
