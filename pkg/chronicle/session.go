package chronicle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/automerge/automerge-go"
)

// session is the caller-held state for one peer. The engine's own encoding keeps only the
// shared heads, so the envelope also records the heads the peer last reported and the heads
// this side last advertised. Together they decide whether anything is left to send.
//
// Wire layout: magic, version, then the engine state and two head lists, each
// length-prefixed with a uvarint. A head list count of 0 means unknown, n+1 means n heads.
type session struct {
	engine []byte

	theirHeads []string
	theirKnown bool

	sentHeads []string
	sentKnown bool
}

const (
	sessionMagic   = 0x63
	sessionVersion = 1
)

var errTruncated = errors.New("truncated sync state")

// converged reports whether the peer is at heads and has been told so.
func (s *session) converged(heads []string) bool {
	return s.theirKnown && s.sentKnown && slices.Equal(s.theirHeads, heads) && slices.Equal(s.sentHeads, heads)
}

func (s *session) announced(heads []string) bool {
	return s.sentKnown && slices.Equal(s.sentHeads, heads)
}

func (s *session) markSent(heads []string) {
	s.sentHeads, s.sentKnown = heads, true
}

func (s *session) markTheirs(heads []string) {
	s.theirHeads, s.theirKnown = heads, true
}

func (s *session) encode() []byte {
	out := []byte{sessionMagic, sessionVersion}
	out = binary.AppendUvarint(out, uint64(len(s.engine)))
	out = append(out, s.engine...)
	out = appendHeads(out, s.theirHeads, s.theirKnown)
	out = appendHeads(out, s.sentHeads, s.sentKnown)
	return out
}

func appendHeads(out []byte, heads []string, known bool) []byte {
	if !known {
		return binary.AppendUvarint(out, 0)
	}
	out = binary.AppendUvarint(out, uint64(len(heads))+1)
	for _, h := range heads {
		out = binary.AppendUvarint(out, uint64(len(h)))
		out = append(out, h...)
	}
	return out
}

func decodeSession(raw []byte) (*session, error) {
	s := &session{}
	if len(raw) == 0 {
		return s, nil
	}
	if len(raw) < 2 || raw[0] != sessionMagic {
		return nil, fmt.Errorf("not a sync state")
	}
	if raw[1] != sessionVersion {
		return nil, fmt.Errorf("unsupported sync state version %d", raw[1])
	}
	r := envelopeReader{buf: raw[2:]}
	engine, err := r.bytes()
	if err != nil {
		return nil, err
	}
	s.engine = engine
	if s.theirHeads, s.theirKnown, err = r.heads(); err != nil {
		return nil, err
	}
	if s.sentHeads, s.sentKnown, err = r.heads(); err != nil {
		return nil, err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after sync state", len(r.buf))
	}
	return s, nil
}

type envelopeReader struct {
	buf []byte
}

func (r *envelopeReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		return 0, errTruncated
	}
	r.buf = r.buf[n:]
	return v, nil
}

func (r *envelopeReader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)) {
		return nil, errTruncated
	}
	out := r.buf[:n:n]
	r.buf = r.buf[n:]
	return out, nil
}

func (r *envelopeReader) heads() ([]string, bool, error) {
	count, err := r.uvarint()
	if err != nil || count == 0 {
		return nil, false, err
	}
	if count-1 > uint64(len(r.buf)) {
		return nil, false, errTruncated
	}
	heads := make([]string, 0, count-1)
	for i := uint64(1); i < count; i++ {
		h, err := r.bytes()
		if err != nil {
			return nil, false, err
		}
		heads = append(heads, string(h))
	}
	return heads, true, nil
}

// headStrings returns hashes as sorted hex strings so head sets compare with slices.Equal.
func headStrings(hashes []automerge.ChangeHash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	slices.Sort(out)
	return out
}
