// Package state holds the typed session state that a Chronicle persists: stacks of tokens,
// spatial zones, the reshuffle source, the game loop, fired rules, per-agent data and a
// residual bag of top-level keys this version does not know about.
//
// Top-level fields are independently optional. A nil field means "absent", which is not the
// same thing as an empty container: {"zones":{}} and {} are different states.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	KeyStack      = "stack"
	KeyZones      = "zones"
	KeySource     = "source"
	KeyGameLoop   = "gameLoop"
	KeyRules      = "rules"
	KeyAgents     = "agents"
	KeyVersion    = "version"
	KeyNullifiers = "nullifiers"
)

var knownKeys = map[string]struct{}{
	KeyStack:      {},
	KeyZones:      {},
	KeySource:     {},
	KeyGameLoop:   {},
	KeyRules:      {},
	KeyAgents:     {},
	KeyVersion:    {},
	KeyNullifiers: {},
}

// IsKnownKey reports whether key is one of the typed top-level fields.
func IsKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// KnownKeys returns the typed top-level keys in sorted order.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// State is the aggregate root.
type State struct {
	Stack      *StackState
	Zones      map[string][]Placement
	Source     *SourceState
	GameLoop   *GameLoopState
	Rules      *RuleState
	Agents     map[string]any
	Version    *string
	Nullifiers map[string]int64

	// Extra carries every top-level key outside the known set. Entries whose key is a known
	// key are ignored by both the JSON encoder and the document writer.
	Extra map[string]any
}

type StackState struct {
	Stack    []Token `json:"stack"`
	Drawn    []Token `json:"drawn"`
	Discards []Token `json:"discards"`
}

const DefaultReshuffleMode = "auto"

type SourceState struct {
	StackIDs        []string        `json:"stackIds"`
	Tokens          []Token         `json:"tokens"`
	Burned          []Token         `json:"burned"`
	Seed            *int            `json:"seed,omitempty"`
	ReshufflePolicy ReshufflePolicy `json:"reshufflePolicy"`
}

func (s *SourceState) UnmarshalJSON(data []byte) error {
	type plain SourceState
	p := plain{ReshufflePolicy: ReshufflePolicy{Mode: DefaultReshuffleMode}}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SourceState(p)
	return nil
}

// ReshufflePolicy decides when burned tokens go back into the pool. Mode is "auto" or "manual".
type ReshufflePolicy struct {
	Threshold *int   `json:"threshold,omitempty"`
	Mode      string `json:"mode"`
}

func (p *ReshufflePolicy) UnmarshalJSON(data []byte) error {
	type plain ReshufflePolicy
	v := plain{Mode: DefaultReshuffleMode}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ReshufflePolicy(v)
	return nil
}

type GameLoopState struct {
	Turn             int    `json:"turn"`
	Running          bool   `json:"running"`
	ActiveAgentIndex int    `json:"activeAgentIndex"`
	Phase            string `json:"phase"`
	MaxTurns         int    `json:"maxTurns"`
}

// RuleState maps a rule name to the millisecond timestamp it last fired at.
type RuleState struct {
	Fired map[string]int64 `json:"fired"`
}

// UnmarshalJSON routes known keys to their typed fields and everything else into Extra.
// A null known key is treated as absent.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("state must be a JSON object")
	}

	*s = State{}
	for key, msg := range raw {
		if IsKnownKey(key) && bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			continue
		}
		var err error
		switch key {
		case KeyStack:
			err = json.Unmarshal(msg, &s.Stack)
		case KeyZones:
			err = json.Unmarshal(msg, &s.Zones)
		case KeySource:
			err = json.Unmarshal(msg, &s.Source)
		case KeyGameLoop:
			err = json.Unmarshal(msg, &s.GameLoop)
		case KeyRules:
			err = json.Unmarshal(msg, &s.Rules)
		case KeyAgents:
			err = json.Unmarshal(msg, &s.Agents)
		case KeyVersion:
			err = json.Unmarshal(msg, &s.Version)
		case KeyNullifiers:
			err = json.Unmarshal(msg, &s.Nullifiers)
		default:
			var v any
			if err = json.Unmarshal(msg, &v); err == nil {
				if s.Extra == nil {
					s.Extra = make(map[string]any)
				}
				s.Extra[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+len(knownKeys))
	for k, v := range s.Extra {
		if !IsKnownKey(k) {
			out[k] = v
		}
	}
	if s.Stack != nil {
		out[KeyStack] = s.Stack
	}
	if s.Zones != nil {
		out[KeyZones] = s.Zones
	}
	if s.Source != nil {
		out[KeySource] = s.Source
	}
	if s.GameLoop != nil {
		out[KeyGameLoop] = s.GameLoop
	}
	if s.Rules != nil {
		out[KeyRules] = s.Rules
	}
	if s.Agents != nil {
		out[KeyAgents] = s.Agents
	}
	if s.Version != nil {
		out[KeyVersion] = *s.Version
	}
	if s.Nullifiers != nil {
		out[KeyNullifiers] = s.Nullifiers
	}
	return json.Marshal(out)
}

// Parse decodes a JSON document into a State.
func Parse(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &s, nil
}

// Encode renders the state as JSON.
func (s *State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// Ptr returns a pointer to v, for filling optional fields.
func Ptr[T any](v T) *T {
	return &v
}
