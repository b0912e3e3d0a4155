// Package boltstore is a go.etcd.io/bbolt-backed persistent Store, the
// on-disk counterpart to memstore. Manifests are serialised with
// github.com/fxamacker/cbor/v2, the same envelope codec ratchet.go
// uses for its own on-disk structures, and payloads are sealed with
// secretbox+hkdf exactly as memstore seals them, so a caller can swap
// between the two backends without changing its encryption model.
package boltstore

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/store"
)

var log = logging.MustGetLogger("meshms.store.bolt")

var (
	bucketManifests = []byte("manifests")
	bucketPayloads  = []byte("payloads")
	bucketNonces    = []byte("nonces")
)

// manifestRecord is the CBOR-on-disk shape of a store.Manifest; BID is
// carried as raw bytes since meshms.BID has no CBOR marshaller of its
// own.
type manifestRecord struct {
	BID               []byte
	Service           string
	Sender            []byte
	Recipient         []byte
	Version           uint64
	Filesize          *int64
	Tail              int64
	PayloadEncryption bool
	Author            []byte
	Authored          bool
}

func toRecord(m *store.Manifest) manifestRecord {
	return manifestRecord{
		BID: m.BID[:], Service: m.Service, Sender: m.Sender[:], Recipient: m.Recipient[:],
		Version: m.Version, Filesize: m.Filesize, Tail: m.Tail,
		PayloadEncryption: m.PayloadEncryption, Author: m.Author[:], Authored: m.Authored,
	}
}

func fromRecord(r manifestRecord) *store.Manifest {
	m := &store.Manifest{
		Service: r.Service, Version: r.Version, Filesize: r.Filesize,
		Tail: r.Tail, PayloadEncryption: r.PayloadEncryption, Authored: r.Authored,
	}
	copy(m.BID[:], r.BID)
	copy(m.Sender[:], r.Sender)
	copy(m.Recipient[:], r.Recipient)
	copy(m.Author[:], r.Author)
	return m
}

// Store is a bbolt-backed bundle store. One *bbolt.DB instance should
// be shared by exactly one Store.
type Store struct {
	db           *bbolt.DB
	masterSecret [32]byte
}

// Open opens (creating if absent) path as a bbolt database and
// prepares the buckets boltstore uses.
func Open(path string, masterSecret [32]byte) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketManifests, bucketPayloads, bucketNonces} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, masterSecret: masterSecret}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) payloadKey(bid meshms.BID) [32]byte {
	h := hkdf.New(sha256.New, s.masterSecret[:], bid[:], []byte("meshms-payload"))
	var key [32]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		panic("boltstore: hkdf read failed: " + err.Error())
	}
	return key
}

// RetrieveManifest implements store.Store.
func (s *Store) RetrieveManifest(ctx context.Context, bid meshms.BID) (*store.Manifest, store.PayloadStatus, error) {
	var m *store.Manifest
	var status store.PayloadStatus
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketManifests).Get(bid[:])
		if raw == nil {
			return meshms.ErrNotFound
		}
		var rec manifestRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return &meshms.StoreError{Op: "decode_manifest", BID: bid, Err: err}
		}
		m = fromRecord(rec)
		payload := tx.Bucket(bucketPayloads).Get(bid[:])
		if len(payload) == 0 {
			status = store.StatusEmpty
		} else {
			status = store.StatusStored
		}
		return nil
	})
	if err != nil {
		return nil, store.StatusUnknown, err
	}
	return m, status, nil
}

// OpenDecryptingReader implements store.Store.
func (s *Store) OpenDecryptingReader(ctx context.Context, m *store.Manifest) (store.DecryptingReader, error) {
	var plaintext []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		ciphertext := tx.Bucket(bucketPayloads).Get(m.BID[:])
		if ciphertext == nil {
			return meshms.ErrNotFound
		}
		if !m.PayloadEncryption {
			plaintext = append([]byte(nil), ciphertext...)
			return nil
		}
		nonceRaw := tx.Bucket(bucketNonces).Get(m.BID[:])
		if len(nonceRaw) != 24 {
			return errors.New("boltstore: missing or malformed nonce")
		}
		var nonce [24]byte
		copy(nonce[:], nonceRaw)
		key := s.payloadKey(m.BID)
		out, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
		if !ok {
			return errors.New("boltstore: secretbox authentication failed")
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &readCloser{plaintext}, nil
}

type readCloser struct{ b []byte }

func (r *readCloser) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
func (readCloser) Close() error { return nil }

// NewManifest implements store.Store.
func (s *Store) NewManifest(ctx context.Context, sender, recipient meshms.SID) (*store.Manifest, error) {
	size := int64(0)
	return &store.Manifest{
		Service: meshms.ServiceMeshMS2, Sender: sender, Recipient: recipient,
		Filesize: &size, PayloadEncryption: true,
	}, nil
}

// NewManifestFromSeed implements store.Store.
func (s *Store) NewManifestFromSeed(ctx context.Context, seed []byte) (*store.Manifest, bool, error) {
	bid := store.DeriveBIDFromSeed(seed)
	var m *store.Manifest
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		raw := b.Get(bid[:])
		if raw != nil {
			var rec manifestRecord
			if err := cbor.Unmarshal(raw, &rec); err != nil {
				return err
			}
			m = fromRecord(rec)
			return nil
		}
		size := int64(0)
		m = &store.Manifest{BID: bid, Filesize: &size, PayloadEncryption: true}
		enc, err := cbor.Marshal(toRecord(m))
		if err != nil {
			return err
		}
		created = true
		return b.Put(bid[:], enc)
	})
	if err != nil {
		return nil, false, err
	}
	return m, created, nil
}

// FillManifest implements store.Store.
func (s *Store) FillManifest(ctx context.Context, m *store.Manifest, author meshms.SID) error {
	m.Author = author
	m.Authored = true
	return nil
}

// AppendJournal implements store.Store.
func (s *Store) AppendJournal(ctx context.Context, m *store.Manifest, offset int64, data []byte) (store.FinaliseStatus, error) {
	if offset != 0 {
		return store.StatusInvalid, errors.New("boltstore: only append-at-tail (offset=0) is supported")
	}
	if m.BID.IsZero() {
		var raw [16]byte
		if _, err := crand.Read(raw[:]); err != nil {
			return store.StatusError, err
		}
		h := sha256.Sum256(append([]byte("meshms-ply:"), raw[:]...))
		copy(m.BID[:], h[:])
	}

	var status store.FinaliseStatus
	err := s.db.Update(func(tx *bbolt.Tx) error {
		payloads := tx.Bucket(bucketPayloads)
		plaintext := append(append([]byte(nil), payloads.Get(m.BID[:])...), data...)

		m.Version++
		size := int64(len(plaintext))
		m.Filesize = &size

		var nonce [24]byte
		if _, err := crand.Read(nonce[:]); err != nil {
			return err
		}
		key := s.payloadKey(m.BID)
		ciphertext := secretbox.Seal(nil, plaintext, &nonce, &key)

		enc, err := cbor.Marshal(toRecord(m))
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketManifests).Put(m.BID[:], enc); err != nil {
			return err
		}
		if err := payloads.Put(m.BID[:], ciphertext); err != nil {
			return err
		}
		return tx.Bucket(bucketNonces).Put(m.BID[:], nonce[:])
	})
	if err != nil {
		return store.StatusError, err
	}
	status = store.StatusNew
	log.Debugf("append bid=%s version=%d size=%d", m.BID, m.Version, *m.Filesize)
	return status, nil
}

type writer struct {
	s    *Store
	m    *store.Manifest
	buf  []byte
	done bool
}

func (w *writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *writer) Fail() error {
	w.done = true
	return nil
}

func (w *writer) Finish() (store.FinaliseStatus, error) {
	if w.done {
		return store.StatusError, errors.New("boltstore: writer already finished")
	}
	w.done = true

	m := w.m
	err := w.s.db.Update(func(tx *bbolt.Tx) error {
		m.Version++
		size := int64(len(w.buf))
		m.Filesize = &size

		var nonce [24]byte
		if _, err := crand.Read(nonce[:]); err != nil {
			return err
		}
		key := w.s.payloadKey(m.BID)
		ciphertext := secretbox.Seal(nil, w.buf, &nonce, &key)

		enc, err := cbor.Marshal(toRecord(m))
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketManifests).Put(m.BID[:], enc); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPayloads).Put(m.BID[:], ciphertext); err != nil {
			return err
		}
		return tx.Bucket(bucketNonces).Put(m.BID[:], nonce[:])
	})
	if err != nil {
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

func (it *rowIterator) Next() bool { it.idx++; return it.idx <= len(it.rows) }
func (it *rowIterator) Row() store.Row { return it.rows[it.idx-1] }
func (it *rowIterator) Err() error     { return nil }
func (it *rowIterator) Close() error   { return nil }

// QueryMeshMSManifests implements store.Store.
func (s *Store) QueryMeshMSManifests(ctx context.Context, mySID meshms.SID, peer *meshms.SID) (store.RowIterator, error) {
	var rows []store.Row
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManifests).ForEach(func(k, v []byte) error {
			var rec manifestRecord
			if err := cbor.Unmarshal(v, &rec); err != nil {
				log.Warningf("boltstore: skipping undecodable manifest bid=%x: %s", k, err)
				return nil
			}
			if rec.Service != meshms.ServiceMeshMS2 {
				return nil
			}
			m := fromRecord(rec)
			isSender := m.Sender == mySID
			isRecipient := m.Recipient == mySID
			if !isSender && !isRecipient {
				return nil
			}
			if peer != nil {
				other := m.Recipient
				if isRecipient {
					other = m.Sender
				}
				if other != *peer {
					return nil
				}
			}
			size := int64(0)
			if m.Filesize != nil {
				size = *m.Filesize
			}
			rows = append(rows, store.Row{
				BID: m.BID, Version: m.Version, Size: size, Tail: m.Tail,
				Sender: m.Sender, Recipient: m.Recipient,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &rowIterator{rows: rows}, nil
}

var _ store.Store = (*Store)(nil)
