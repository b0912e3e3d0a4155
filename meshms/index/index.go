package index

import (
	"bytes"

	"gitlab.com/yawning/avl.git"

	"github.com/rhizomelabs/meshms/meshms"
)

func compareConversations(a, b interface{}) int {
	ca := a.(*Conversation)
	cb := b.(*Conversation)
	return bytes.Compare(ca.Them[:], cb.Them[:])
}

// Index is the conversation index: a binary search tree keyed by peer
// SID, with in-order (SID-ordered) iteration and at most one entry per
// peer. It is backed by gitlab.com/yawning/avl.git, the same
// self-balancing tree server/internal/decoy/decoy.go already uses for
// an ETA-ordered index — reusing it here sidesteps the
// parent-pointer/rebalancing concerns a hand-rolled tree would raise
// (see DESIGN.md).
type Index struct {
	tree *avl.Tree
}

// New constructs an empty Index.
func New() *Index {
	return &Index{tree: avl.New(compareConversations)}
}

// GetOrCreate returns the existing conversation for them, or inserts
// and returns a new empty one. Duplicates are absorbed: a second
// GetOrCreate for the same peer returns the same *Conversation.
func (idx *Index) GetOrCreate(them meshms.SID) *Conversation {
	if c, ok := idx.Get(them); ok {
		return c
	}
	node := idx.tree.Insert(&Conversation{Them: them})
	return node.Value.(*Conversation)
}

// Get returns the conversation for them, if one exists.
func (idx *Index) Get(them meshms.SID) (*Conversation, bool) {
	node := idx.tree.Get(&Conversation{Them: them})
	if node == nil {
		return nil, false
	}
	return node.Value.(*Conversation), true
}

// Len is the number of conversations in the index.
func (idx *Index) Len() int { return idx.tree.Len() }

// ForEach visits every conversation in SID order; the synchroniser
// relies on this ordering to walk the index deterministically.
// Mutating the tree from within fn is not supported: conversations may
// be mutated in place, but none may be inserted or removed during the
// walk.
func (idx *Index) ForEach(fn func(*Conversation) error) error {
	iter := idx.tree.Iterator(avl.Forward)
	for n := iter.First(); n != nil; n = iter.Next() {
		if err := fn(n.Value.(*Conversation)); err != nil {
			return err
		}
	}
	return nil
}

// All returns every conversation in SID order, as a slice.
func (idx *Index) All() []*Conversation {
	out := make([]*Conversation, 0, idx.Len())
	_ = idx.ForEach(func(c *Conversation) error {
		out = append(out, c)
		return nil
	})
	return out
}
