package meshms

import "errors"

// Sentinel errors for each failure kind the core distinguishes, named
// the way ratchet.go names its Err* sentinels. Callers that need
// structured context wrap one of these so errors.Is still matches the
// sentinel.
var (
	// ErrNotFound covers a SID absent from the keyring or a manifest
	// missing from the store.
	ErrNotFound = errors.New("meshms: not found")

	// ErrInvalidManifest covers a service tag mismatch or an
	// unsigned/malformed manifest at retrieval.
	ErrInvalidManifest = errors.New("meshms: invalid manifest")

	// ErrInvalidPayload covers a payload status other than
	// STORED/EMPTY or an unset filesize. A footer claiming an
	// impossible record length is reported by the ply reader as
	// end-of-ply, not as this error.
	ErrInvalidPayload = errors.New("meshms: invalid payload")

	// ErrTruncated marks a record that straddles the ply tail. The
	// ply reader does not return it: it reports such a record as
	// plain end-of-ply (recoverable), so its callers see no
	// difference between "no more records" and "truncated mid-record".
	ErrTruncated = errors.New("meshms: ply truncated mid-record")

	// ErrGazumped marks a finalise that returned SAME/DUPLICATE/OLD:
	// another writer won the version race. Not retried by the core.
	ErrGazumped = errors.New("meshms: gazumped by a concurrent writer")

	// ErrStoreInconsistent covers INCONSISTENT/FAKE/INVALID finalise
	// outcomes.
	ErrStoreInconsistent = errors.New("meshms: store reported an inconsistent bundle")

	// ErrMalformedAck marks an ACK payload whose varint decode
	// failed. The iterator treats the previous ACK offset as 0 and
	// continues; the synchroniser treats it as absent.
	ErrMalformedAck = errors.New("meshms: malformed ACK payload")

	// ErrNotAuthentic is returned when the keyring cannot
	// authenticate the author of a manifest we are about to append
	// to.
	ErrNotAuthentic = errors.New("meshms: manifest author not authentic")

	// ErrSelfConversation is returned when a send targets the
	// sender's own SID as recipient.
	ErrSelfConversation = errors.New("meshms: the sender and recipient can't be the same")

	// ErrEmptyMessage is returned when a send is attempted with a
	// zero-length message body.
	ErrEmptyMessage = errors.New("meshms: message body must not be empty")

	// ErrRecordTooLarge is returned by the ply record codec when a
	// record payload would not fit in the 12 bits of length the
	// footer encoding carries.
	ErrRecordTooLarge = errors.New("meshms: record payload exceeds maximum length")
)

// StoreError wraps an underlying store I/O failure with the operation
// that failed, without discarding the original error for
// errors.Is/errors.As.
type StoreError struct {
	Op  string
	BID BID
	Err error
}

func (e *StoreError) Error() string {
	if e.BID.IsZero() {
		return "meshms: store: " + e.Op + ": " + e.Err.Error()
	}
	return "meshms: store: " + e.Op + " (bid " + e.BID.String() + "): " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }
