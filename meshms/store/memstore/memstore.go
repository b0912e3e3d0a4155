// Package memstore is a pure in-memory Store implementation used by
// unit tests and the Ginkgo end-to-end suite. Payloads are sealed with
// golang.org/x/crypto/nacl/secretbox under a per-bundle key derived
// with golang.org/x/crypto/hkdf, the same secretbox+hkdf pattern
// disk.go and stream/stream.go use for at-rest/in-flight encryption.
package memstore

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/store"
)

var log = logging.MustGetLogger("meshms.store.mem")

type entry struct {
	manifest   *store.Manifest
	plaintext  []byte
	nonce      [24]byte
	ciphertext []byte
}

// Store is an in-memory, content-addressed bundle store.
type Store struct {
	mu           sync.Mutex
	masterSecret [32]byte
	byBID        map[meshms.BID]*entry
}

// New constructs an empty Store. masterSecret seeds the per-bundle
// payload encryption keys; a fresh random one is fine for tests, a
// persisted one is needed for a long-lived instance.
func New(masterSecret [32]byte) *Store {
	return &Store{
		masterSecret: masterSecret,
		byBID:        make(map[meshms.BID]*entry),
	}
}

func (s *Store) payloadKey(bid meshms.BID) [32]byte {
	h := hkdf.New(sha256.New, s.masterSecret[:], bid[:], []byte("meshms-payload"))
	var key [32]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		panic("memstore: hkdf read failed: " + err.Error())
	}
	return key
}

func (s *Store) reseal(e *entry, key [32]byte) error {
	if _, err := crand.Read(e.nonce[:]); err != nil {
		return err
	}
	e.ciphertext = secretbox.Seal(nil, e.plaintext, &e.nonce, &key)
	return nil
}

type readCloser struct{ *bytes.Reader }

func (readCloser) Close() error { return nil }

func newReadCloser(b []byte) store.DecryptingReader { return readCloser{bytes.NewReader(b)} }

// RetrieveManifest implements store.Store.
func (s *Store) RetrieveManifest(ctx context.Context, bid meshms.BID) (*store.Manifest, store.PayloadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byBID[bid]
	if !ok {
		return nil, store.StatusUnknown, meshms.ErrNotFound
	}
	status := store.StatusStored
	if len(e.plaintext) == 0 {
		status = store.StatusEmpty
	}
	return e.manifest, status, nil
}

// OpenDecryptingReader implements store.Store.
func (s *Store) OpenDecryptingReader(ctx context.Context, m *store.Manifest) (store.DecryptingReader, error) {
	s.mu.Lock()
	e, ok := s.byBID[m.BID]
	s.mu.Unlock()
	if !ok {
		return nil, meshms.ErrNotFound
	}
	if !m.PayloadEncryption {
		return newReadCloser(append([]byte(nil), e.plaintext...)), nil
	}
	key := s.payloadKey(m.BID)
	out, ok2 := secretbox.Open(nil, e.ciphertext, &e.nonce, &key)
	if !ok2 {
		return nil, errors.New("memstore: secretbox authentication failed")
	}
	return newReadCloser(out), nil
}

// NewManifest implements store.Store.
func (s *Store) NewManifest(ctx context.Context, sender, recipient meshms.SID) (*store.Manifest, error) {
	size := int64(0)
	return &store.Manifest{
		Service:           meshms.ServiceMeshMS2,
		Sender:            sender,
		Recipient:         recipient,
		Filesize:          &size,
		Tail:              0,
		PayloadEncryption: true,
	}, nil
}

// NewManifestFromSeed implements store.Store.
func (s *Store) NewManifestFromSeed(ctx context.Context, seed []byte) (*store.Manifest, bool, error) {
	bid := store.DeriveBIDFromSeed(seed)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byBID[bid]; ok {
		return e.manifest, false, nil
	}
	size := int64(0)
	m := &store.Manifest{BID: bid, Filesize: &size, PayloadEncryption: true}
	s.byBID[bid] = &entry{manifest: m}
	return m, true, nil
}

// FillManifest implements store.Store.
func (s *Store) FillManifest(ctx context.Context, m *store.Manifest, author meshms.SID) error {
	m.Author = author
	m.Authored = true
	return nil
}

// AppendJournal implements store.Store. The core always calls this
// with offset 0, meaning "append at the store's current tail"; any
// other offset is rejected.
func (s *Store) AppendJournal(ctx context.Context, m *store.Manifest, offset int64, data []byte) (store.FinaliseStatus, error) {
	if offset != 0 {
		return store.StatusInvalid, errors.New("memstore: only append-at-tail (offset=0) is supported")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.BID.IsZero() {
		var raw [16]byte
		if _, err := crand.Read(raw[:]); err != nil {
			return store.StatusError, err
		}
		h := sha256.Sum256(append([]byte("meshms-ply:"), raw[:]...))
		copy(m.BID[:], h[:])
	}
	e, ok := s.byBID[m.BID]
	if !ok {
		e = &entry{manifest: m}
		s.byBID[m.BID] = e
	}
	e.plaintext = append(e.plaintext, data...)
	m.Version++
	size := int64(len(e.plaintext))
	m.Filesize = &size
	e.manifest = m

	key := s.payloadKey(m.BID)
	if err := s.reseal(e, key); err != nil {
		return store.StatusError, err
	}
	log.Debugf("append bid=%s version=%d size=%d", m.BID, m.Version, size)
	return store.StatusNew, nil
}

type writer struct {
	s    *Store
	m    *store.Manifest
	buf  bytes.Buffer
	done bool
}

func (w *writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *writer) Fail() error {
	w.done = true
	return nil
}

func (w *writer) Finish() (store.FinaliseStatus, error) {
	if w.done {
		return store.StatusError, errors.New("memstore: writer already finished")
	}
	w.done = true

	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byBID[w.m.BID]
	if !ok {
		e = &entry{manifest: w.m}
		s.byBID[w.m.BID] = e
	}
	e.plaintext = append([]byte(nil), w.buf.Bytes()...)
	w.m.Version++
	size := int64(len(e.plaintext))
	w.m.Filesize = &size
	e.manifest = w.m

	key := s.payloadKey(w.m.BID)
	if err := s.reseal(e, key); err != nil {
		return store.StatusError, err
	}
	return store.StatusNew, nil
}

// OpenWrite implements store.Store.
func (s *Store) OpenWrite(ctx context.Context, m *store.Manifest) (store.Writer, error) {
	return &writer{s: s, m: m}, nil
}

type rowIterator struct {
	rows []store.Row
	idx  int
}

func (it *rowIterator) Next() bool {
	it.idx++
	return it.idx <= len(it.rows)
}

func (it *rowIterator) Row() store.Row { return it.rows[it.idx-1] }
func (it *rowIterator) Err() error     { return nil }
func (it *rowIterator) Close() error   { return nil }

// QueryMeshMSManifests implements store.Store.
func (s *Store) QueryMeshMSManifests(ctx context.Context, mySID meshms.SID, peer *meshms.SID) (store.RowIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []store.Row
	for bid, e := range s.byBID {
		m := e.manifest
		if m.Service != meshms.ServiceMeshMS2 {
			continue
		}
		isSender := m.Sender == mySID
		isRecipient := m.Recipient == mySID
		if !isSender && !isRecipient {
			continue
		}
		if peer != nil {
			other := m.Recipient
			if isRecipient {
				other = m.Sender
			}
			if other != *peer {
				continue
			}
		}
		size := int64(0)
		if m.Filesize != nil {
			size = *m.Filesize
		}
		rows = append(rows, store.Row{
			BID: bid, Version: m.Version, Size: size, Tail: m.Tail,
			Sender: m.Sender, Recipient: m.Recipient,
		})
	}
	return &rowIterator{rows: rows}, nil
}

var _ store.Store = (*Store)(nil)
