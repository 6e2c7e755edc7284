// Package syncer runs the sync protocol between two Chronicles in the same process,
// keeping each direction's session in a store.SessionStore between runs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/astromechza/chronicle/pkg/chronicle"
	"github.com/astromechza/chronicle/pkg/store"
)

// ErrNoConvergence is returned when the message budget runs out before both sides stop
// producing messages.
var ErrNoConvergence = errors.New("peers did not converge")

const DefaultMaxMessages = 100

// Peer is a Chronicle with a stable id. Sessions are stored against the id, so it must stay
// the same across runs for the exchange to resume where it left off.
type Peer struct {
	ID        string
	Chronicle *chronicle.Chronicle
}

// NewPeer wraps c with a random id.
func NewPeer(c *chronicle.Chronicle) Peer {
	return Peer{ID: uuid.NewString(), Chronicle: c}
}

type Syncer struct {
	sessions    store.SessionStore
	maxMessages int
	logger      *slog.Logger
}

type Option func(*Syncer)

func WithMaxMessages(n int) Option {
	return func(s *Syncer) {
		s.maxMessages = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

func New(sessions store.SessionStore, opts ...Option) *Syncer {
	s := &Syncer{
		sessions:    sessions,
		maxMessages: DefaultMaxMessages,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarises one Sync call.
type Result struct {
	Rounds   int
	Messages int
}

type side struct {
	peer    Peer
	remote  string
	session []byte
}

// Sync exchanges messages until a round in which neither side has anything to send.
// Each message is answered by the receiver's response until a response comes back empty.
// Sessions are saved after every step, so an interrupted run resumes from the last step.
func (s *Syncer) Sync(ctx context.Context, a, b Peer) (*Result, error) {
	if a.ID == b.ID {
		return nil, fmt.Errorf("peers share id %q", a.ID)
	}
	sa := &side{peer: a, remote: b.ID}
	sb := &side{peer: b, remote: a.ID}
	for _, sd := range []*side{sa, sb} {
		if err := s.load(ctx, sd); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rounds++

		from, to := sa, sb
		msg, err := s.generate(ctx, from)
		if err != nil {
			return res, err
		}
		if msg == nil {
			from, to = sb, sa
			if msg, err = s.generate(ctx, from); err != nil {
				return res, err
			}
		}
		if msg == nil {
			s.logger.Debug("peers converged", "a", a.ID, "b", b.ID, "rounds", res.Rounds, "messages", res.Messages)
			return res, nil
		}

		for msg != nil {
			if res.Messages >= s.maxMessages {
				return res, fmt.Errorf("%w after %d messages", ErrNoConvergence, res.Messages)
			}
			res.Messages++
			if msg, err = s.receive(ctx, to, msg); err != nil {
				return res, err
			}
			from, to = to, from
		}
	}
}

func (s *Syncer) generate(ctx context.Context, sd *side) ([]byte, error) {
	msg, session, err := sd.peer.Chronicle.GenerateMessage(sd.session)
	if err != nil {
		return nil, fmt.Errorf("failed to generate message for %s: %w", sd.remote, err)
	}
	sd.session = session
	return msg, s.save(ctx, sd)
}

func (s *Syncer) receive(ctx context.Context, sd *side, msg []byte) ([]byte, error) {
	resp, session, err := sd.peer.Chronicle.ReceiveMessage(msg, sd.session)
	if err != nil {
		return nil, fmt.Errorf("failed to receive message from %s: %w", sd.remote, err)
	}
	sd.session = session
	return resp, s.save(ctx, sd)
}

func (s *Syncer) load(ctx context.Context, sd *side) error {
	raw, err := s.sessions.LoadSession(ctx, sd.peer.ID, sd.remote)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load session %s: %w", store.SessionKey(sd.peer.ID, sd.remote), err)
	}
	sd.session = raw
	return nil
}

func (s *Syncer) save(ctx context.Context, sd *side) error {
	if err := s.sessions.SaveSession(ctx, sd.peer.ID, sd.remote, sd.session); err != nil {
		return fmt.Errorf("failed to save session %s: %w", store.SessionKey(sd.peer.ID, sd.remote), err)
	}
	return nil
}
