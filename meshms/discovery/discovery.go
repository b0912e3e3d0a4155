// Package discovery enumerates conversations from the bundle store,
// seeding or updating the conversation index from whatever plies the
// store already knows about for the local SID.
package discovery

import (
	"context"
	"errors"

	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/index"
	"github.com/rhizomelabs/meshms/meshms/store"
)

var log = logging.MustGetLogger("meshms.discovery")

// errNotOurConversation marks a row whose sender and recipient are
// both foreign to mySID; it should never happen given a correct
// QueryMeshMSManifests filter, but discovery tolerates it the same way
// it tolerates any other malformed row: log and skip, don't abort
// enumeration.
var errNotOurConversation = errors.New("discovery: row does not involve the local SID")

// Run queries st for every MeshMS2 manifest involving mySID (and, if
// peer is non-nil, restricted to that one peer) and merges the result
// into idx. Returns the number of rows successfully merged.
func Run(ctx context.Context, st store.Store, idx *index.Index, mySID meshms.SID, peer *meshms.SID) (int, error) {
	rows, err := st.QueryMeshMSManifests(ctx, mySID, peer)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int
	for rows.Next() {
		row := rows.Row()
		if err := mergeRow(idx, mySID, row); err != nil {
			log.Warningf("discovery: skipping row bid=%s: %s", row.BID, err)
			continue
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, nil
}

func mergeRow(idx *index.Index, mySID meshms.SID, row store.Row) error {
	var them meshms.SID
	var mine bool
	switch {
	case row.Sender == mySID:
		them = row.Recipient
		mine = true
	case row.Recipient == mySID:
		them = row.Sender
		mine = false
	default:
		return errNotOurConversation
	}

	conv := idx.GetOrCreate(them)
	desc := &index.PlyDescriptor{
		BID:     row.BID,
		Version: row.Version,
		Size:    row.Size,
		Tail:    row.Tail,
	}
	if mine {
		// A ply version observed locally must not decrease: a row
		// from an older scan never regresses what we've already
		// recorded.
		if !conv.FoundMyPly || desc.Version >= conv.MyPly.Version {
			conv.MyPly = desc
			conv.FoundMyPly = true
		}
	} else {
		if !conv.FoundTheirPly || desc.Version >= conv.TheirPly.Version {
			conv.TheirPly = desc
			conv.FoundTheirPly = true
		}
	}
	return nil
}
