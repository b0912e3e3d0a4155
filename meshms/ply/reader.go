package ply

import (
	"context"
	"io"

	"gopkg.in/op/go-logging.v1"

	"github.com/rhizomelabs/meshms/meshms"
	"github.com/rhizomelabs/meshms/meshms/store"
)

var log = logging.MustGetLogger("meshms.ply")

// Reader is a tail-first, buffered reader over a ply's decrypted
// payload. The underlying decrypting stream is single-pass, so Open
// buffers the whole payload once; plies are typically small enough
// that this is cheaper than a seekable re-decrypt on every read.
type Reader struct {
	bid    meshms.BID
	buffer []byte
	tail   int64
	length int64
	offset int64

	// fields describing the most recently read record
	recordType      meshms.RecordType
	recordLength    int
	recordEndOffset int64
	record          []byte
}

// Open retrieves bid's manifest, opens a decrypting reader over its
// payload, and buffers it in full. offset and length both start at the
// manifest's filesize.
func Open(ctx context.Context, st store.Store, bid meshms.BID) (*Reader, error) {
	m, status, err := st.RetrieveManifest(ctx, bid)
	if err != nil {
		return nil, err
	}
	if status != store.StatusStored && status != store.StatusEmpty {
		return nil, meshms.ErrInvalidPayload
	}
	if m.Filesize == nil {
		return nil, meshms.ErrInvalidPayload
	}

	dr, err := st.OpenDecryptingReader(ctx, m)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	buf, err := io.ReadAll(dr)
	if err != nil {
		return nil, &meshms.StoreError{Op: "open_decrypting_reader", BID: bid, Err: err}
	}

	filesize := *m.Filesize
	r := &Reader{
		bid:    bid,
		buffer: buf,
		tail:   m.Tail,
		length: filesize,
		offset: filesize,
	}
	log.Debugf("opened ply bid=%s size=%d tail=%d", bid, filesize, m.Tail)
	return r, nil
}

// Offset is the ply reader's current position: the start of the last
// record read by ReadPrev, or the end of the payload if nothing has
// been read yet.
func (r *Reader) Offset() int64 { return r.offset }

// Length is the ply's logical size at the time it was opened.
func (r *Reader) Length() int64 { return r.length }

// EndOffset is one past the last byte of the most recently read
// record's footer — the value an ACK referencing this record would
// encode.
func (r *Reader) EndOffset() int64 { return r.recordEndOffset }

// Type is the type of the most recently read record.
func (r *Reader) Type() meshms.RecordType { return r.recordType }

// Record is the payload bytes of the most recently read record. The
// slice is only valid until the next ReadPrev call.
func (r *Reader) Record() []byte { return r.record }

// SeekEnd repositions the reader at the end of the ply, as if freshly
// opened, without re-reading the payload.
func (r *Reader) SeekEnd() { r.offset = r.length }

// SeekTo repositions the reader's offset, clamped to [0, Length()]. The
// message iterator uses this to reposition the recipient-ply reader to
// an ACK's claimed offset.
func (r *Reader) SeekTo(off int64) {
	switch {
	case off < 0:
		r.offset = 0
	case off > r.length:
		r.offset = r.length
	default:
		r.offset = off
	}
}

// ReadPrev reads the record immediately preceding the reader's current
// offset: (a) offset<=2 is end-of-ply; (b) the footer is read from the
// two bytes before offset; (c) a record claiming to reach before the
// ply's tail is truncation, reported as end-of-ply; (d) otherwise the
// record is decoded and offset moves to its start. ok is false with a
// nil error at end-of-ply.
func (r *Reader) ReadPrev() (ok bool, err error) {
	if r.offset <= 2 {
		return false, nil
	}

	recordEndOffset := r.offset
	footerStart := r.offset - FooterLength
	var footer [FooterLength]byte
	copy(footer[:], r.buffer[footerStart:r.offset])
	typ, length := DecodeFooter(footer)

	if int64(length)+FooterLength > r.offset {
		// The record would straddle the tail: truncated, treated as
		// end-of-ply rather than an error.
		return false, nil
	}
	recordStart := r.offset - int64(length) - FooterLength
	if recordStart < r.tail {
		return false, nil
	}

	r.record = append(r.record[:0], r.buffer[recordStart:recordStart+int64(length)]...)
	r.recordType = typ
	r.recordLength = length
	r.recordEndOffset = recordEndOffset
	r.offset = recordStart
	return true, nil
}

// FindPrev repeats ReadPrev until a record of type t is found, the ply
// is exhausted, or an error occurs.
func (r *Reader) FindPrev(t meshms.RecordType) (bool, error) {
	for {
		ok, err := r.ReadPrev()
		if err != nil || !ok {
			return false, err
		}
		if r.recordType == t {
			return true, nil
		}
	}
}

// Close releases the reader's buffers. Open already closes the
// decrypting payload stream once the payload is buffered; the reader
// then holds only heap buffers for the duration of one synchroniser or
// iterator pass, and Close lets that memory go.
func (r *Reader) Close() error {
	r.buffer = nil
	r.record = nil
	return nil
}
