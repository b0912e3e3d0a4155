// Package store defines the bundle-store and keyring contracts that
// the meshms core consumes. The store itself — manifest persistence,
// payload encryption, journal append, finalisation, signing — is an
// external collaborator; this package only fixes the interface shape
// and carries the handful of concrete backends (memstore, boltstore,
// pgstore) used to develop and test against it.
package store

import (
	"context"
	"io"

	"github.com/rhizomelabs/meshms/meshms"
)

// PayloadStatus is the state of a manifest's payload in the store.
type PayloadStatus int

const (
	// StatusUnknown is the zero value; no manifest was found.
	StatusUnknown PayloadStatus = iota
	// StatusStored indicates the payload is present and readable.
	StatusStored
	// StatusEmpty indicates a manifest with a zero-length payload
	// (a freshly created, never-appended bundle).
	StatusEmpty
	// StatusOther covers any payload state the ply reader and
	// conversation bundle refuse to open (e.g. still arriving).
	StatusOther
)

// FinaliseStatus is the outcome of a finalise (or append-journal)
// call.
type FinaliseStatus int

const (
	// StatusNew indicates this call committed a new version.
	StatusNew FinaliseStatus = iota
	// StatusSame indicates the store already has this exact content.
	StatusSame
	// StatusDuplicate indicates a duplicate of an existing version.
	StatusDuplicate
	// StatusOld indicates a later version already exists: the
	// caller lost the race.
	StatusOld
	// StatusError is a fatal failure of this operation.
	StatusError
	// StatusInconsistent indicates the store detected an internal
	// inconsistency.
	StatusInconsistent
	// StatusFake indicates the manifest failed authenticity checks.
	StatusFake
	// StatusInvalid indicates a structurally invalid manifest.
	StatusInvalid
)

// Gazumped reports whether status represents a lost version race.
func (s FinaliseStatus) Gazumped() bool {
	return s == StatusSame || s == StatusDuplicate || s == StatusOld
}

// Inconsistent reports whether status represents a store-side
// inconsistency that should be logged and propagated.
func (s FinaliseStatus) Inconsistent() bool {
	return s == StatusInconsistent || s == StatusFake || s == StatusInvalid
}

// Manifest describes a ply bundle's store-side metadata. Filesize is a
// pointer because the ply reader must distinguish "zero" from "unset".
type Manifest struct {
	BID               meshms.BID
	Service           string
	Sender            meshms.SID
	Recipient         meshms.SID
	Version           uint64
	Filesize          *int64
	Tail              int64
	PayloadEncryption bool

	// Author and Authored record who last attached signing material
	// via FillManifest, so a Keyring can decide AuthenticateAuthor
	// without reaching back into the store.
	Author   meshms.SID
	Authored bool
}

// Row is one manifest observed during discovery.
type Row struct {
	BID       meshms.BID
	Version   uint64
	Size      int64
	Tail      int64
	Sender    meshms.SID
	Recipient meshms.SID
}

// RowIterator enumerates discovery rows. Invalid rows (e.g. unparsable
// hex at the store boundary) are skipped by the producer with a
// logged warning rather than surfaced here.
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// DecryptingReader is a forward-only decrypting stream over a
// manifest's payload: the underlying decryption is single-pass, so
// callers that need tail-first access (meshms/ply) read the whole
// thing into memory once at open time rather than seeking the stream
// itself.
type DecryptingReader interface {
	io.Reader
	io.Closer
}

// Writer is a full-payload rewrite handle used by the conversation
// bundle; unlike AppendJournal this replaces the payload rather than
// extending it.
type Writer interface {
	io.Writer
	// Finish commits the write and returns the finalise outcome.
	Finish() (FinaliseStatus, error)
	// Fail abandons the write without committing.
	Fail() error
}

// Keyring maps SIDs to keypairs and authenticates manifest authorship.
// The keyring and store handles are process-wide collaborators whose
// lifecycle sits outside the core; callers pass them in explicitly
// rather than reaching for package-level state.
type Keyring interface {
	// FindSID returns the keypair owning sid, or ok=false if the
	// keyring has no secret for it.
	FindSID(sid meshms.SID) (secret []byte, ok bool)
	// AuthenticateAuthor reports whether m's claimed sender is
	// authentic according to the signing material attached to it.
	AuthenticateAuthor(m *Manifest) (bool, error)
}

// Store is the bundle-store contract consumed by the meshms core.
type Store interface {
	// QueryMeshMSManifests enumerates manifests with
	// service=MeshMS2 where mySID is sender or recipient and, when
	// peer is non-nil, the peer appears in the other role.
	QueryMeshMSManifests(ctx context.Context, mySID meshms.SID, peer *meshms.SID) (RowIterator, error)

	// RetrieveManifest fetches a manifest by BID along with its
	// payload status.
	RetrieveManifest(ctx context.Context, bid meshms.BID) (*Manifest, PayloadStatus, error)

	// OpenDecryptingReader opens a decrypting reader over m's
	// payload. Callers must have already checked m's payload status
	// is StatusStored or StatusEmpty.
	OpenDecryptingReader(ctx context.Context, m *Manifest) (DecryptingReader, error)

	// NewManifest creates a fresh, non-seeded manifest for a new ply
	// owned by sender and addressed to recipient. The manifest is not
	// yet persisted until an AppendJournal call or a Writer's Finish
	// commits it.
	NewManifest(ctx context.Context, sender, recipient meshms.SID) (*Manifest, error)

	// NewManifestFromSeed deterministically derives a manifest (its
	// BID, not a full keypair) from seed, for the self-addressed
	// conversation bundle. created reports whether this is the first
	// time the bundle has been derived in this store.
	NewManifestFromSeed(ctx context.Context, seed []byte) (m *Manifest, created bool, err error)

	// FillManifest attaches author's signing material to m.
	FillManifest(ctx context.Context, m *Manifest, author meshms.SID) error

	// AppendJournal appends data to m's payload starting at offset
	// (the core always uses offset 0, appending at the store's own
	// idea of the current tail) and finalises the result, returning
	// the finalise outcome.
	AppendJournal(ctx context.Context, m *Manifest, offset int64, data []byte) (FinaliseStatus, error)

	// OpenWrite begins a full-payload rewrite of m, used by the
	// conversation bundle.
	OpenWrite(ctx context.Context, m *Manifest) (Writer, error)
}
