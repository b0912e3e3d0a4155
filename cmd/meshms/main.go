// Command meshms is a CLI front end for the store-and-forward mesh
// messaging core: list known conversations, send a message, list or
// read the messages in one conversation.
package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/bundle"
	"github.com/rhizomelabs/meshms/meshms/config"
	"github.com/rhizomelabs/meshms/meshms/discovery"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/iterator"
	"github.com/rhizomelabs/meshms/meshms/keyring"
	"github.com/rhizomelabs/meshms/meshms/metrics"
	"github.com/rhizomelabs/meshms/meshms/ply"
	"github.com/rhizomelabs/meshms/meshms/store"
	"github.com/rhizomelabs/meshms/meshms/store/boltstore"
	"github.com/rhizomelabs/meshms/meshms/store/memstore"
	"github.com/rhizomelabs/meshms/meshms/store/pgstore"
	"github.com/rhizomelabs/meshms/meshms/syncer"
)

var log = logging.MustGetLogger("meshms")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "meshms:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	top := flag.NewFlagSet("meshms", flag.ExitOnError)
	configPath := top.String("config", "meshms.toml", "path to a TOML configuration file")
	showVersion := top.Bool("version", false, "print version information and exit")
	metricsAddr := top.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	top.Parse(args)

	if *showVersion {
		fmt.Println(versioninfo.Short())
		return nil
	}

	rest := top.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: meshms [-config path] <list-conversations|send|list-messages|read-messages> ...")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging.Level)

	mySID, err := meshms.SIDFromHex(cfg.SID)
	if err != nil {
		return fmt.Errorf("config sid: %w", err)
	}
	secret, err := hex.DecodeString(cfg.Secret)
	if err != nil {
		return fmt.Errorf("config secret: %w", err)
	}
	masterSecret := sha256.Sum256(secret)

	st, err := openStore(cfg.Store, masterSecret)
	if err != nil {
		return err
	}

	kr := keyring.New()
	kr.AddSecret(mySID, secret)
	defer kr.Destroy()

	m := metrics.New(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	ctx := context.Background()
	bundleManifest, _, err := bundle.Derive(ctx, st, kr, mySID)
	if err != nil {
		return err
	}
	idx, err := bundle.Read(ctx, st, bundleManifest)
	if err != nil {
		return err
	}
	n, err := discovery.Run(ctx, st, idx, mySID, nil)
	if err != nil {
		return err
	}
	m.DiscoveryRows.Add(float64(n))
	log.Infof("discovery: merged %d manifest rows into %d conversations", n, idx.Len())
	syncer.SyncAll(ctx, st, kr, mySID, idx, m)

	var cmdErr error
	switch rest[0] {
	case "list-conversations":
		cmdErr = cmdListConversations(idx, rest[1:])
	case "send":
		cmdErr = cmdSend(ctx, st, kr, mySID, idx, rest[1:])
	case "list-messages", "read-messages":
		cmdErr = cmdMessages(ctx, st, idx, rest[1:], rest[0] == "read-messages")
	default:
		cmdErr = fmt.Errorf("unknown subcommand %q", rest[0])
	}
	if cmdErr != nil {
		return cmdErr
	}
	return bundle.Write(ctx, st, bundleManifest, idx)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server: %s", err)
	}
}

func setupLogging(level string) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
	))
	lvl, err := logging.LogLevel(level)
	if err != nil {
		lvl = logging.INFO
	}
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
}

func openStore(cfg config.StoreConfig, masterSecret [32]byte) (store.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return memstore.New(masterSecret), nil
	case "bolt":
		return boltstore.Open(cfg.Path, masterSecret)
	case "postgres":
		return pgstore.Open(cfg.DSN, masterSecret)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// cmdListConversations prints conv.Them/last/read columns for a page of
// the index, starting at offset and stopping after count rows. A
// negative count means no limit.
func cmdListConversations(idx *index.Index, args []string) error {
	fs := flag.NewFlagSet("list-conversations", flag.ExitOnError)
	offset := fs.Int("offset", 0, "skip this many conversations before printing")
	count := fs.Int("count", -1, "print at most this many conversations; negative means no limit")
	fs.Parse(args)

	all := idx.All()
	if *offset < 0 || *offset > len(all) {
		*offset = len(all)
	}
	page := all[*offset:]
	if *count >= 0 && *count < len(page) {
		page = page[:*count]
	}
	for _, c := range page {
		fmt.Printf("%s\tlast=%d\tread=%d\n", c.Them, c.TheirLastMessage, c.ReadOffset)
	}
	return nil
}

func cmdSend(ctx context.Context, st store.Store, kr store.Keyring, mySID meshms.SID, idx *index.Index, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "recipient SID, hex-encoded")
	text := fs.String("message", "", "message body")
	fs.Parse(args)

	them, err := meshms.SIDFromHex(*to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	if them == mySID {
		return meshms.ErrSelfConversation
	}
	if *text == "" {
		return meshms.ErrEmptyMessage
	}

	conv := idx.GetOrCreate(them)

	var m *store.Manifest
	if conv.FoundMyPly {
		m, _, err = st.RetrieveManifest(ctx, conv.MyPly.BID)
	} else {
		m, err = st.NewManifest(ctx, mySID, them)
	}
	if err != nil {
		return err
	}
	if err := st.FillManifest(ctx, m, mySID); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := ply.AppendRecord(&buf, meshms.RecordMessage, append([]byte(norm.NFC.String(*text)), 0)); err != nil {
		return err
	}

	status, err := st.AppendJournal(ctx, m, 0, buf.Bytes())
	if err != nil {
		return err
	}
	if status != store.StatusNew {
		return fmt.Errorf("send: %v", status)
	}
	conv.MyPly = &index.PlyDescriptor{BID: m.BID, Version: m.Version, Size: *m.Filesize, Tail: m.Tail}
	conv.FoundMyPly = true

	return nil
}

// cmdMessages prints a conversation's messages in the iterator's own
// reverse-chronological order, each row numbered from 0 upward as
// printed. A synthetic "ACK\tdelivered" row is inserted above the
// first sent message found delivered, and a "MARK\tread" row above the
// first received message found read — each marker prints once, at the
// first boundary the top-down walk crosses. read-messages additionally
// advances the conversation's read marker to offset, or to the whole
// conversation when offset is negative.
func cmdMessages(ctx context.Context, st store.Store, idx *index.Index, args []string, markRead bool) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	with := fs.String("with", "", "peer SID, hex-encoded")
	offset := fs.Int64("offset", -1, "read-messages: mark read up to this offset, clamped to their_last_message; negative marks the whole conversation read")
	fs.Parse(args)

	them, err := meshms.SIDFromHex(*with)
	if err != nil {
		return fmt.Errorf("-with: %w", err)
	}
	conv, ok := idx.Get(them)
	if !ok {
		return meshms.ErrNotFound
	}

	it, err := iterator.Open(ctx, st, conv)
	if err != nil {
		return err
	}
	defer it.Close()

	id := 0
	markedDelivered := false
	markedRead := false
	for {
		msg, ok, err := it.Prev()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		switch msg.Direction {
		case iterator.Sent:
			if msg.Delivered && !markedDelivered {
				fmt.Printf("_id=%d\t(%d)\tACK\tdelivered\n", id, it.RecipientAckOffset())
				id++
				markedDelivered = true
			}
			fmt.Printf("_id=%d\t(%d)\t>\t%s\n", id, msg.Offset, msg.Text)
			id++
		case iterator.Received:
			if msg.Read && !markedRead {
				fmt.Printf("_id=%d\t(%d)\tMARK\tread\n", id, it.ReceivedReadOffset())
				id++
				markedRead = true
			}
			fmt.Printf("_id=%d\t(%d)\t<\t%s\n", id, msg.Offset, msg.Text)
			id++
		}
	}

	if markRead {
		readTo := conv.TheirLastMessage
		if *offset >= 0 {
			readTo = *offset
		}
		conv.MarkRead(readTo)
	}
	return nil
}
