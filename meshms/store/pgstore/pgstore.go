// Package pgstore is a PostgreSQL-backed Store using
// github.com/jackc/pgx v3's database/sql driver. It is the
// multi-process backend: memstore and boltstore each assume a single
// owning process, while pgstore lets several meshms instances share
// one bundle store the way a real mesh node and its tools would.
package pgstore

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"io"

	_ "github.com/jackc/pgx/stdlib"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/store"
)

var log = logging.MustGetLogger("meshms.store.pg")

const schema = `
CREATE TABLE IF NOT EXISTS meshms_manifests (
	bid                bytea PRIMARY KEY,
	service            text NOT NULL,
	sender             bytea NOT NULL,
	recipient          bytea NOT NULL,
	version            bigint NOT NULL,
	tail               bigint NOT NULL,
	payload_encryption boolean NOT NULL,
	author             bytea NOT NULL,
	authored           boolean NOT NULL,
	payload            bytea NOT NULL,
	nonce              bytea NOT NULL
);
`

// Store is a pgx-backed bundle store.
type Store struct {
	db           *sql.DB
	masterSecret [32]byte
}

// Open connects to dsn and ensures the schema exists.
func Open(dsn string, masterSecret [32]byte) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, masterSecret: masterSecret}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) payloadKey(bid meshms.BID) [32]byte {
	h := hkdf.New(sha256.New, s.masterSecret[:], bid[:], []byte("meshms-payload"))
	var key [32]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		panic("pgstore: hkdf read failed: " + err.Error())
	}
	return key
}

func scanManifest(row interface {
	Scan(...interface{}) error
}) (*store.Manifest, []byte, []byte, error) {
	var bid, sender, recipient, author, payload, nonce []byte
	m := &store.Manifest{}
	var filesize sql.NullInt64
	err := row.Scan(&bid, &m.Service, &sender, &recipient, &m.Version, &m.Tail,
		&m.PayloadEncryption, &author, &m.Authored, &payload, &nonce)
	if err != nil {
		return nil, nil, nil, err
	}
	copy(m.BID[:], bid)
	copy(m.Sender[:], sender)
	copy(m.Recipient[:], recipient)
	copy(m.Author[:], author)
	size := int64(len(payload))
	if m.PayloadEncryption && size > 0 {
		size -= secretbox.Overhead
	}
	filesize.Int64 = size
	filesize.Valid = true
	m.Filesize = &filesize.Int64
	return m, payload, nonce, nil
}

// RetrieveManifest implements store.Store.
func (s *Store) RetrieveManifest(ctx context.Context, bid meshms.BID) (*store.Manifest, store.PayloadStatus, error) {
	row := s.db.QueryRowContext(ctx, `SELECT bid, service, sender, recipient, version, tail,
		payload_encryption, author, authored, payload, nonce
		FROM meshms_manifests WHERE bid = $1`, bid[:])
	m, payload, _, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.StatusUnknown, meshms.ErrNotFound
	}
	if err != nil {
		return nil, store.StatusUnknown, &meshms.StoreError{Op: "retrieve_manifest", BID: bid, Err: err}
	}
	status := store.StatusStored
	if len(payload) == 0 {
		status = store.StatusEmpty
	}
	return m, status, nil
}

// OpenDecryptingReader implements store.Store.
func (s *Store) OpenDecryptingReader(ctx context.Context, m *store.Manifest) (store.DecryptingReader, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, nonce FROM meshms_manifests WHERE bid = $1`, m.BID[:])
	var payload, nonceRaw []byte
	if err := row.Scan(&payload, &nonceRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, meshms.ErrNotFound
		}
		return nil, err
	}
	if !m.PayloadEncryption {
		return &readCloser{payload}, nil
	}
	if len(nonceRaw) != 24 {
		return nil, errors.New("pgstore: missing or malformed nonce")
	}
	var nonce [24]byte
	copy(nonce[:], nonceRaw)
	key := s.payloadKey(m.BID)
	out, ok := secretbox.Open(nil, payload, &nonce, &key)
	if !ok {
		return nil, errors.New("pgstore: secretbox authentication failed")
	}
	return &readCloser{out}, nil
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
	m, status, err := s.RetrieveManifest(ctx, bid)
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, meshms.ErrNotFound) {
		return nil, false, err
	}
	_ = status

	size := int64(0)
	fresh := &store.Manifest{BID: bid, Filesize: &size, PayloadEncryption: true}
	_, err = s.db.ExecContext(ctx, `INSERT INTO meshms_manifests
		(bid, service, sender, recipient, version, tail, payload_encryption, author, authored, payload, nonce)
		VALUES ($1, '', $2, $3, 0, 0, true, $4, false, '', '')`,
		bid[:], fresh.Sender[:], fresh.Recipient[:], fresh.Author[:])
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
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
		return store.StatusInvalid, errors.New("pgstore: only append-at-tail (offset=0) is supported")
	}
	if m.BID.IsZero() {
		var raw [16]byte
		if _, err := crand.Read(raw[:]); err != nil {
			return store.StatusError, err
		}
		h := sha256.Sum256(append([]byte("meshms-ply:"), raw[:]...))
		copy(m.BID[:], h[:])
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.StatusError, err
	}
	defer tx.Rollback()

	var existing []byte
	err = tx.QueryRowContext(ctx, `SELECT payload FROM meshms_manifests WHERE bid = $1 FOR UPDATE`, m.BID[:]).Scan(&existing)
	plaintext := append([]byte(nil), existing...)
	if m.PayloadEncryption && len(plaintext) > 0 {
		nonceRaw := make([]byte, 24)
		if err := tx.QueryRowContext(ctx, `SELECT nonce FROM meshms_manifests WHERE bid = $1`, m.BID[:]).Scan(&nonceRaw); err == nil {
			var nonce [24]byte
			copy(nonce[:], nonceRaw)
			key := s.payloadKey(m.BID)
			if out, ok := secretbox.Open(nil, plaintext, &nonce, &key); ok {
				plaintext = out
			}
		}
	}
	plaintext = append(plaintext, data...)

	m.Version++
	size := int64(len(plaintext))
	m.Filesize = &size

	var nonce [24]byte
	if _, err := crand.Read(nonce[:]); err != nil {
		return store.StatusError, err
	}
	key := s.payloadKey(m.BID)
	ciphertext := secretbox.Seal(nil, plaintext, &nonce, &key)

	_, err = tx.ExecContext(ctx, `INSERT INTO meshms_manifests
		(bid, service, sender, recipient, version, tail, payload_encryption, author, authored, payload, nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bid) DO UPDATE SET
			service = EXCLUDED.service, version = EXCLUDED.version, tail = EXCLUDED.tail,
			payload_encryption = EXCLUDED.payload_encryption, author = EXCLUDED.author,
			authored = EXCLUDED.authored, payload = EXCLUDED.payload, nonce = EXCLUDED.nonce`,
		m.BID[:], m.Service, m.Sender[:], m.Recipient[:], m.Version, m.Tail,
		m.PayloadEncryption, m.Author[:], m.Authored, ciphertext, nonce[:])
	if err != nil {
		return store.StatusError, err
	}
	if err := tx.Commit(); err != nil {
		return store.StatusError, err
	}
	log.Debugf("append bid=%s version=%d size=%d", m.BID, m.Version, size)
	return store.StatusNew, nil
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
		return store.StatusError, errors.New("pgstore: writer already finished")
	}
	w.done = true

	m := w.m
	m.Version++
	size := int64(len(w.buf))
	m.Filesize = &size

	var nonce [24]byte
	if _, err := crand.Read(nonce[:]); err != nil {
		return store.StatusError, err
	}
	key := w.s.payloadKey(m.BID)
	ciphertext := secretbox.Seal(nil, w.buf, &nonce, &key)

	_, err := w.s.db.Exec(`INSERT INTO meshms_manifests
		(bid, service, sender, recipient, version, tail, payload_encryption, author, authored, payload, nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (bid) DO UPDATE SET
			version = EXCLUDED.version, payload = EXCLUDED.payload, nonce = EXCLUDED.nonce`,
		m.BID[:], m.Service, m.Sender[:], m.Recipient[:], m.Version, m.Tail,
		m.PayloadEncryption, m.Author[:], m.Authored, ciphertext, nonce[:])
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
	rows *sql.Rows
}

func (it *rowIterator) Next() bool { return it.rows.Next() }
func (it *rowIterator) Row() store.Row {
	var bid, sender, recipient []byte
	var version uint64
	var size, tail int64
	_ = it.rows.Scan(&bid, &sender, &recipient, &version, &size, &tail)
	var row store.Row
	copy(row.BID[:], bid)
	copy(row.Sender[:], sender)
	copy(row.Recipient[:], recipient)
	row.Version, row.Size, row.Tail = version, size, tail
	return row
}
func (it *rowIterator) Err() error   { return it.rows.Err() }
func (it *rowIterator) Close() error { return it.rows.Close() }

// QueryMeshMSManifests implements store.Store.
func (s *Store) QueryMeshMSManifests(ctx context.Context, mySID meshms.SID, peer *meshms.SID) (store.RowIterator, error) {
	var rows *sql.Rows
	var err error
	if peer == nil {
		rows, err = s.db.QueryContext(ctx, `SELECT bid, sender, recipient, version,
			length(payload), tail FROM meshms_manifests
			WHERE service = $1 AND (sender = $2 OR recipient = $2)`,
			meshms.ServiceMeshMS2, mySID[:])
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT bid, sender, recipient, version,
			length(payload), tail FROM meshms_manifests
			WHERE service = $1 AND ((sender = $2 AND recipient = $3) OR (sender = $3 AND recipient = $2))`,
			meshms.ServiceMeshMS2, mySID[:], (*peer)[:])
	}
	if err != nil {
		return nil, err
	}
	return &rowIterator{rows: rows}, nil
}

var _ store.Store = (*Store)(nil)
