// Package keyring implements the store.Keyring contract consumed by
// the meshms core: SID -> secret mapping and manifest authorship
// authentication. Secrets are held in
// github.com/awnumar/memguard locked buffers, the way ratchet.go
// already protects ratchet key material in this codebase — a keyring
// is exactly where a real long-term identity secret lives.
package keyring

import (
	"sync"

	"github.com/awnumar/memguard"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/store"
)

// Keyring is an in-process SID -> secret map, one entry per identity
// this process has the private key for.
type Keyring struct {
	mu   sync.RWMutex
	keys map[meshms.SID]*memguard.LockedBuffer
}

// New constructs an empty Keyring.
func New() *Keyring {
	return &Keyring{keys: make(map[meshms.SID]*memguard.LockedBuffer)}
}

// AddSecret stores secret under sid in locked memory. The caller's
// copy of secret is wiped.
func (k *Keyring) AddSecret(sid meshms.SID, secret []byte) {
	buf := memguard.NewBufferFromBytes(secret)
	k.mu.Lock()
	defer k.mu.Unlock()
	if old, ok := k.keys[sid]; ok {
		old.Destroy()
	}
	k.keys[sid] = buf
}

// Destroy wipes every secret held by the keyring.
func (k *Keyring) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, buf := range k.keys {
		buf.Destroy()
	}
	k.keys = make(map[meshms.SID]*memguard.LockedBuffer)
}

// FindSID implements store.Keyring. The returned slice is a copy; the
// locked buffer itself is never handed out.
func (k *Keyring) FindSID(sid meshms.SID) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	buf, ok := k.keys[sid]
	if !ok || buf.IsDestroyed() {
		return nil, false
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, true
}

// AuthenticateAuthor implements store.Keyring: a manifest is authentic
// if it was filled in (signed) by its own claimed sender and this
// keyring holds that sender's secret — i.e. it is a ply we ourselves
// produced. Plies observed from peers are never "authenticated" by our
// own keyring; that check belongs to whichever process owns the peer's
// identity.
func (k *Keyring) AuthenticateAuthor(m *store.Manifest) (bool, error) {
	if !m.Authored || m.Author != m.Sender {
		return false, nil
	}
	_, ok := k.FindSID(m.Author)
	return ok, nil
}

var _ store.Keyring = (*Keyring)(nil)
