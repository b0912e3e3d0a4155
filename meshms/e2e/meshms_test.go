package e2e_test

import (
	"bytes"
	"context"
	crand "crypto/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/bundle"
	"github.com/rhizomelabs/meshms/meshms/discovery"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/iterator"
	"github.com/rhizomelabs/meshms/meshms/keyring"
	"github.com/rhizomelabs/meshms/meshms/ply"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/store/memstore"
	"github.com/rhizomelabs/meshms/meshms/syncer"
)

// identity bundles a participant's SID, keyring, and own view of the
// conversation index, mirroring what one meshms process instance holds
// in memory between discovery/sync passes.
type identity struct {
	sid meshms.SID
	kr  *keyring.Keyring
	idx *index.Index
}

func newIdentity(secret byte) identity {
	var sid meshms.SID
	_, err := crand.Read(sid[:])
	Expect(err).NotTo(HaveOccurred())

	kr := keyring.New()
	kr.AddSecret(sid, []byte{secret, secret, secret, secret})
	return identity{sid: sid, kr: kr, idx: index.New()}
}

func send(ctx context.Context, st store.Store, from identity, to meshms.SID, text string) {
	conv := from.idx.GetOrCreate(to)

	var m *store.Manifest
	var err error
	if conv.FoundMyPly {
		m, _, err = st.RetrieveManifest(ctx, conv.MyPly.BID)
	} else {
		m, err = st.NewManifest(ctx, from.sid, to)
	}
	Expect(err).NotTo(HaveOccurred())
	Expect(st.FillManifest(ctx, m, from.sid)).To(Succeed())

	var buf bytes.Buffer
	_, err = ply.AppendRecord(&buf, meshms.RecordMessage, append([]byte(text), 0))
	Expect(err).NotTo(HaveOccurred())

	status, err := st.AppendJournal(ctx, m, 0, buf.Bytes())
	Expect(err).NotTo(HaveOccurred())
	Expect(status).To(Equal(store.StatusNew))

	conv.MyPly = &index.PlyDescriptor{BID: m.BID, Version: m.Version, Size: *m.Filesize, Tail: m.Tail}
	conv.FoundMyPly = true
}

func rescan(ctx context.Context, st store.Store, who identity) {
	_, err := discovery.Run(ctx, st, who.idx, who.sid, nil)
	Expect(err).NotTo(HaveOccurred())
}

func readAll(ctx context.Context, st store.Store, conv *index.Conversation) []iterator.Message {
	it, err := iterator.Open(ctx, st, conv)
	Expect(err).NotTo(HaveOccurred())
	defer it.Close()

	var out []iterator.Message
	for {
		msg, ok, err := it.Prev()
		Expect(err).NotTo(HaveOccurred())
		if !ok {
			break
		}
		out = append(out, msg)
	}
	return out
}

var _ = Describe("a conversation between two participants sharing a bundle store", func() {
	var (
		ctx        context.Context
		st         store.Store
		alice, bob identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		var masterSecret [32]byte
		_, err := crand.Read(masterSecret[:])
		Expect(err).NotTo(HaveOccurred())
		st = memstore.New(masterSecret)
		alice = newIdentity(0xa1)
		bob = newIdentity(0xb2)
	})

	It("delivers messages and reconciles acknowledgements in both directions", func() {
		send(ctx, st, alice, bob.sid, "hello bob")
		send(ctx, st, alice, bob.sid, "are you there")

		rescan(ctx, st, bob)
		bobConv, ok := bob.idx.Get(alice.sid)
		Expect(ok).To(BeTrue())

		// Bob must sync at least once before he can read anything: the
		// iterator never surfaces a thread until the reader has a
		// my_ply of their own, and here that ply only comes into being
		// by acknowledging alice's ply.
		syncer.SyncAll(ctx, st, bob.kr, bob.sid, bob.idx, nil)

		msgs := readAll(ctx, st, bobConv)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Text).To(Equal("are you there"))
		Expect(msgs[0].Direction).To(Equal(iterator.Received))
		Expect(msgs[1].Text).To(Equal("hello bob"))

		rescan(ctx, st, alice)
		aliceConv, ok := alice.idx.Get(bob.sid)
		Expect(ok).To(BeTrue())

		aliceMsgs := readAll(ctx, st, aliceConv)
		Expect(aliceMsgs).To(HaveLen(2))
		for _, m := range aliceMsgs {
			Expect(m.Direction).To(Equal(iterator.Sent))
			Expect(m.Delivered).To(BeTrue())
		}
	})

	It("marks only messages at or before the read offset as read", func() {
		send(ctx, st, alice, bob.sid, "first")
		send(ctx, st, alice, bob.sid, "second")

		rescan(ctx, st, bob)
		bobConv, _ := bob.idx.Get(alice.sid)

		// the synchroniser pass is what establishes TheirLastMessage,
		// and gives bob the my_ply his own thread view requires
		syncer.SyncAll(ctx, st, bob.kr, bob.sid, bob.idx, nil)

		msgs := readAll(ctx, st, bobConv)
		Expect(msgs).To(HaveLen(2))
		for _, m := range msgs {
			Expect(m.Read).To(BeFalse())
		}

		bobConv.MarkRead(bobConv.TheirLastMessage)
		msgsAfter := readAll(ctx, st, bobConv)
		for _, m := range msgsAfter {
			Expect(m.Read).To(BeTrue())
		}
	})

	It("runs a synchroniser pass over an empty index without error", func() {
		outcomes := syncer.SyncAll(ctx, st, alice.kr, alice.sid, alice.idx, nil)
		Expect(outcomes).To(BeEmpty())
	})
})

var _ = Describe("the conversation bundle", func() {
	var (
		ctx   context.Context
		st    store.Store
		alice identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		var masterSecret [32]byte
		_, err := crand.Read(masterSecret[:])
		Expect(err).NotTo(HaveOccurred())
		st = memstore.New(masterSecret)
		alice = newIdentity(0xc3)
	})

	It("persists conversation cursor state across a simulated restart", func() {
		bob := newIdentity(0xd4)
		send(ctx, st, alice, bob.sid, "persist me")

		m, created, err := bundle.Derive(ctx, st, alice.kr, alice.sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())

		Expect(bundle.Write(ctx, st, m, alice.idx)).To(Succeed())

		// A fresh process derives the same manifest and reads back the
		// same cursor state without rescanning any ply.
		m2, created2, err := bundle.Derive(ctx, st, alice.kr, alice.sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(created2).To(BeFalse())
		Expect(m2.BID).To(Equal(m.BID))

		restored, err := bundle.Read(ctx, st, m2)
		Expect(err).NotTo(HaveOccurred())

		orig, _ := alice.idx.Get(bob.sid)
		conv, ok := restored.Get(bob.sid)
		Expect(ok).To(BeTrue())
		Expect(conv.TheirLastMessage).To(Equal(orig.TheirLastMessage))
		Expect(conv.ReadOffset).To(Equal(orig.ReadOffset))
		Expect(conv.TheirSize).To(Equal(orig.TheirSize))
	})

	It("derives the same BID for the same identity secret every time", func() {
		m1, _, err := bundle.Derive(ctx, st, alice.kr, alice.sid)
		Expect(err).NotTo(HaveOccurred())
		m2, _, err := bundle.Derive(ctx, st, alice.kr, alice.sid)
		Expect(err).NotTo(HaveOccurred())
		Expect(m1.BID).To(Equal(m2.BID))
	})
})
