// Package chronicle stores a typed session state in an Automerge document.
//
// Each top-level state field lives under its own root key as a native map or list, so
// peers editing different fields merge cleanly. Lists are always rewritten whole.
//
// Document layout:
//
//	ROOT
//	├── stack:      { stack: [...], drawn: [...], discards: [...] }
//	├── zones:      { <zone>: [...placements...] }
//	├── source:     { stackIds: [...], tokens: [...], burned: [...], seed, reshufflePolicy: {...} }
//	├── gameLoop:   { turn, running, activeAgentIndex, phase, maxTurns }
//	├── rules:      { fired: { <rule>: ts } }
//	├── agents:     { <agent>: "<json>" }
//	├── version:    "..."
//	├── nullifiers: { <hash>: ts }
//	└── <extra>:    "<json>"
//
// A Chronicle is not safe for concurrent use; callers serialize access to one instance.
package chronicle

import (
	"log/slog"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/chronicle/pkg/metrics"
	"github.com/astromechza/chronicle/pkg/state"
)

type Chronicle struct {
	doc     *automerge.Doc
	logger  *slog.Logger
	metrics *metrics.Collector
}

type Option func(*Chronicle)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chronicle) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Chronicle) {
		c.metrics = m
	}
}

// New creates a Chronicle over an empty document.
func New(opts ...Option) *Chronicle {
	c := &Chronicle{
		doc:    automerge.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetState overwrites every known field of the document with s in one transaction.
func (c *Chronicle) SetState(s *state.State) error {
	err := c.writeState("setState", s)
	c.metrics.ObserveWrite(err)
	return err
}

// Change is SetState with a label. The label is accepted but not recorded anywhere.
func (c *Chronicle) Change(label string, s *state.State) error {
	err := c.writeState("change", s)
	c.metrics.ObserveWrite(err)
	if err == nil {
		c.logger.Debug("applied change", "label", label)
	}
	return err
}

// SetStateJSON parses raw as a state document and writes it.
func (c *Chronicle) SetStateJSON(raw []byte) error {
	s, err := state.Parse(raw)
	if err != nil {
		c.metrics.ObserveWrite(err)
		return serializationError("setState", err)
	}
	return c.SetState(s)
}

func (c *Chronicle) ChangeJSON(label string, raw []byte) error {
	s, err := state.Parse(raw)
	if err != nil {
		c.metrics.ObserveWrite(err)
		return serializationError("change", err)
	}
	return c.Change(label, s)
}

// GetState reconstructs the state from the document's current values.
func (c *Chronicle) GetState() (*state.State, error) {
	s, err := readState(c.doc.RootMap())
	if err != nil {
		return nil, documentError("getState", err)
	}
	return s, nil
}

func (c *Chronicle) GetStateJSON() ([]byte, error) {
	s, err := c.GetState()
	if err != nil {
		return nil, err
	}
	raw, err := s.Encode()
	if err != nil {
		return nil, serializationError("getState", err)
	}
	return raw, nil
}

// ChangeCount returns the number of causal heads. More than one head means the document
// holds concurrent branches that no later change has built on yet.
func (c *Chronicle) ChangeCount() int {
	return len(c.doc.Heads())
}

func (c *Chronicle) Heads() []string {
	return headStrings(c.doc.Heads())
}

func (c *Chronicle) ActorID() string {
	return c.doc.ActorID()
}

// SetActorID changes the hex actor id used for subsequent writes.
func (c *Chronicle) SetActorID(id string) error {
	if err := c.doc.SetActorID(id); err != nil {
		return documentError("setActorID", err)
	}
	return nil
}
