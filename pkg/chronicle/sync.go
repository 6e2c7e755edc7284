package chronicle

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// A peer relationship moves from uninitialized (no session) to exchanging, and is converged
// whenever GenerateMessage returns no message. Any later mutation on either side reopens the
// exchange on the next call. Session bytes are owned by the caller: one per ordered peer
// pair, persisted between calls, and never shared between peers. The same document and the
// same session bytes always give the same answer; nothing about a peer is kept in between.

// GenerateMessage produces the next message for the peer tracked by prior. A nil or empty
// prior starts a fresh session. msg is nil when the peer has reported this document's heads
// and has been told them. The returned session must replace prior before the next call for
// this peer.
func (c *Chronicle) GenerateMessage(prior []byte) (msg []byte, session []byte, err error) {
	sess, ss, err := c.openSession(prior)
	if err != nil {
		c.metrics.ObserveGenerate(false, err)
		return nil, nil, documentError("generateSyncMessage", err)
	}
	heads := headStrings(c.doc.Heads())
	if !sess.converged(heads) {
		if m, valid := ss.GenerateMessage(); valid && m != nil {
			msg = m.Bytes()
			sess.markSent(heads)
		}
	}
	sess.engine = ss.Save()
	c.metrics.ObserveGenerate(msg != nil, nil)
	c.logger.Debug("generated sync message", "bytes", len(msg), "heads", len(heads))
	return msg, sess.encode(), nil
}

// ReceiveMessage applies a peer's message and immediately tries to produce a response.
// Messages from one peer must be received in the order that peer generated them. On error
// neither the document nor prior is changed and no session is returned.
func (c *Chronicle) ReceiveMessage(msg []byte, prior []byte) (resp []byte, session []byte, err error) {
	if len(msg) == 0 {
		err := fmt.Errorf("empty sync message")
		c.metrics.ObserveReceive(err)
		return nil, nil, documentError("receiveSyncMessage", err)
	}
	sess, ss, err := c.openSession(prior)
	if err != nil {
		c.metrics.ObserveReceive(err)
		return nil, nil, documentError("receiveSyncMessage", err)
	}
	// ReceiveMessage decodes msg before applying anything, so a malformed message fails here
	// without touching the document.
	received, err := ss.ReceiveMessage(msg)
	if err != nil {
		c.metrics.ObserveReceive(err)
		c.logger.Warn("rejected sync message", "bytes", len(msg), "err", err)
		return nil, nil, documentError("receiveSyncMessage", fmt.Errorf("failed to receive message: %w", err))
	}
	c.metrics.ObserveReceive(nil)
	if received != nil {
		sess.markTheirs(headStrings(received.Heads()))
	}

	heads := headStrings(c.doc.Heads())
	if m, valid := ss.GenerateMessage(); valid && m != nil {
		resp = m.Bytes()
	} else if !sess.announced(heads) {
		// The engine stays quiet once the heads match, but the sender has not heard ours yet
		// and would keep asking. Answer with a heads-only message from a decoded copy.
		if ack, err := automerge.LoadSyncState(c.doc, ss.Save()); err == nil {
			if m, valid := ack.GenerateMessage(); valid && m != nil {
				resp = m.Bytes()
			}
		}
	}
	if resp != nil {
		sess.markSent(heads)
	}
	sess.engine = ss.Save()
	c.logger.Debug("received sync message", "bytes", len(msg), "response", len(resp), "heads", len(heads))
	return resp, sess.encode(), nil
}

func (c *Chronicle) openSession(prior []byte) (*session, *automerge.SyncState, error) {
	sess, err := decodeSession(prior)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode sync state: %w", err)
	}
	if len(sess.engine) == 0 {
		return sess, automerge.NewSyncState(c.doc), nil
	}
	ss, err := automerge.LoadSyncState(c.doc, sess.engine)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode sync state: %w", err)
	}
	return sess, ss, nil
}

// GenerateResult is the JSON shape of a generate call.
type GenerateResult struct {
	Message    *string `json:"message"`
	SyncState  string  `json:"syncState"`
	HasMessage bool    `json:"hasMessage"`
}

// ReceiveResult is the JSON shape of a receive call.
type ReceiveResult struct {
	ResponseMessage *string `json:"responseMessage"`
	SyncState       string  `json:"syncState"`
	HasResponse     bool    `json:"hasResponse"`
}

// GenerateSyncMessage is GenerateMessage with base64 session and message. An empty prior
// means no session yet.
func (c *Chronicle) GenerateSyncMessage(priorB64 string) (*GenerateResult, error) {
	prior, err := DecodeBase64(priorB64)
	if err != nil {
		return nil, serializationError("generateSyncMessage", fmt.Errorf("invalid sync state: %w", err))
	}
	msg, session, err := c.GenerateMessage(prior)
	if err != nil {
		return nil, err
	}
	out := &GenerateResult{SyncState: EncodeBase64(session), HasMessage: msg != nil}
	if msg != nil {
		encoded := EncodeBase64(msg)
		out.Message = &encoded
	}
	return out, nil
}

// ReceiveSyncMessage is ReceiveMessage with base64 message, session and response.
func (c *Chronicle) ReceiveSyncMessage(msgB64, priorB64 string) (*ReceiveResult, error) {
	msg, err := DecodeBase64(msgB64)
	if err != nil {
		return nil, serializationError("receiveSyncMessage", fmt.Errorf("invalid message: %w", err))
	}
	prior, err := DecodeBase64(priorB64)
	if err != nil {
		return nil, serializationError("receiveSyncMessage", fmt.Errorf("invalid sync state: %w", err))
	}
	resp, session, err := c.ReceiveMessage(msg, prior)
	if err != nil {
		return nil, err
	}
	out := &ReceiveResult{SyncState: EncodeBase64(session), HasResponse: resp != nil}
	if resp != nil {
		encoded := EncodeBase64(resp)
		out.ResponseMessage = &encoded
	}
	return out, nil
}
