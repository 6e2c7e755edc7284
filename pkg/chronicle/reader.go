package chronicle

import (
	"encoding/json"
	"fmt"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/chronicle/pkg/state"
)

// readState rebuilds a state from the root map. Missing or mistyped values read as absent;
// only failures to enumerate a container are errors.
func readState(root *automerge.Map) (*state.State, error) {
	s := &state.State{}

	if m := mapAt(root, state.KeyStack); m != nil {
		s.Stack = &state.StackState{
			Stack:    readTokenList(listAt(m, "stack")),
			Drawn:    readTokenList(listAt(m, "drawn")),
			Discards: readTokenList(listAt(m, "discards")),
		}
	}
	if m := mapAt(root, state.KeyZones); m != nil {
		zones, err := readZones(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read zones: %w", err)
		}
		s.Zones = zones
	}
	if m := mapAt(root, state.KeySource); m != nil {
		s.Source = readSource(m)
	}
	if m := mapAt(root, state.KeyGameLoop); m != nil {
		s.GameLoop = &state.GameLoopState{
			Turn:             int(intOr(m, "turn", 0)),
			Running:          boolOr(m, "running", false),
			ActiveAgentIndex: int(intOr(m, "activeAgentIndex", 0)),
			Phase:            stringOr(m, "phase", ""),
			MaxTurns:         int(intOr(m, "maxTurns", 0)),
		}
	}
	if m := mapAt(root, state.KeyRules); m != nil {
		rules := &state.RuleState{Fired: map[string]int64{}}
		if fired := mapAt(m, "fired"); fired != nil {
			var err error
			if rules.Fired, err = readIntMap(fired); err != nil {
				return nil, fmt.Errorf("failed to read rules: %w", err)
			}
		}
		s.Rules = rules
	}
	if m := mapAt(root, state.KeyAgents); m != nil {
		agents, err := readAgents(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read agents: %w", err)
		}
		s.Agents = agents
	}
	if v, ok := stringAt(root, state.KeyVersion); ok {
		s.Version = &v
	}
	if m := mapAt(root, state.KeyNullifiers); m != nil {
		nullifiers, err := readIntMap(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read nullifiers: %w", err)
		}
		s.Nullifiers = nullifiers
	}

	extra, err := readExtra(root)
	if err != nil {
		return nil, err
	}
	s.Extra = extra
	return s, nil
}

// readExtra passes through every unknown root key holding a string. Strings that parse as
// JSON are stored decoded, anything else is kept verbatim.
func readExtra(root *automerge.Map) (map[string]any, error) {
	keys, err := root.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list root keys: %w", err)
	}
	var extra map[string]any
	for _, key := range keys {
		if state.IsKnownKey(key) {
			continue
		}
		raw, ok := stringAt(root, key)
		if !ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			extra[key] = raw
			continue
		}
		extra[key] = v
	}
	return extra, nil
}

func readZones(m *automerge.Map) (map[string][]state.Placement, error) {
	names, err := m.Keys()
	if err != nil {
		return nil, err
	}
	zones := make(map[string][]state.Placement, len(names))
	for _, name := range names {
		l := listAt(m, name)
		if l == nil {
			continue
		}
		placements := make([]state.Placement, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			if pm := mapIn(l, i); pm != nil {
				placements = append(placements, readPlacement(pm))
			}
		}
		zones[name] = placements
	}
	return zones, nil
}

func readPlacement(m *automerge.Map) state.Placement {
	p := state.Placement{
		ID:       stringOr(m, "id", ""),
		TokenID:  stringOr(m, "tokenId", ""),
		FaceUp:   boolOr(m, "faceUp", true),
		TS:       intOr(m, "ts", 0),
		Reversed: boolOr(m, "reversed", false),
		Tags:     []string{},
	}
	if snap := mapAt(m, "tokenSnapshot"); snap != nil {
		p.TokenSnapshot = readToken(snap)
	} else {
		p.TokenSnapshot = state.NewToken("")
	}
	if x, ok := floatAt(m, "x"); ok {
		p.X = &x
	}
	if y, ok := floatAt(m, "y"); ok {
		p.Y = &y
	}
	if label, ok := stringAt(m, "label"); ok {
		p.Label = &label
	}
	if raw, ok := stringAt(m, "tags"); ok {
		var tags []string
		if json.Unmarshal([]byte(raw), &tags) == nil && tags != nil {
			p.Tags = tags
		}
	}
	return p
}

func readSource(m *automerge.Map) *state.SourceState {
	src := &state.SourceState{
		StackIDs:        []string{},
		Tokens:          readTokenList(listAt(m, "tokens")),
		Burned:          readTokenList(listAt(m, "burned")),
		ReshufflePolicy: state.ReshufflePolicy{Mode: state.DefaultReshuffleMode},
	}
	if l := listAt(m, "stackIds"); l != nil {
		for i := 0; i < l.Len(); i++ {
			v, err := l.Get(i)
			if err != nil || v == nil || v.Kind() != automerge.KindStr {
				continue
			}
			src.StackIDs = append(src.StackIDs, v.Str())
		}
	}
	if seed, ok := intAt(m, "seed"); ok {
		n := int(seed)
		src.Seed = &n
	}
	if policy := mapAt(m, "reshufflePolicy"); policy != nil {
		src.ReshufflePolicy.Mode = stringOr(policy, "mode", state.DefaultReshuffleMode)
		if threshold, ok := intAt(policy, "threshold"); ok {
			n := int(threshold)
			src.ReshufflePolicy.Threshold = &n
		}
	}
	return src
}

func readTokenList(l *automerge.List) []state.Token {
	if l == nil {
		return []state.Token{}
	}
	tokens := make([]state.Token, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		if m := mapIn(l, i); m != nil {
			tokens = append(tokens, readToken(m))
		}
	}
	return tokens
}

func readToken(m *automerge.Map) state.Token {
	t := state.Token{
		ID:    stringOr(m, "id", ""),
		Text:  stringOr(m, "text", ""),
		Char:  stringOr(m, "char", state.DefaultChar),
		Kind:  stringOr(m, "kind", state.DefaultKind),
		Index: int(intOr(m, "index", 0)),
		Meta:  map[string]any{},
	}
	if raw, ok := stringAt(m, "meta"); ok {
		var meta map[string]any
		if json.Unmarshal([]byte(raw), &meta) == nil && meta != nil {
			t.Meta = meta
		}
	}

	t.Label = optString(m, "label")
	t.Group = optString(m, "group")
	t.Rev = optBool(m, "_rev")
	t.AttachedTo = optString(m, "_attachedTo")
	t.AttachmentType = optString(m, "_attachmentType")
	t.Merged = optBool(m, "_merged")
	t.MergedInto = optString(m, "_mergedInto")
	t.MergedAt = optInt(m, "_mergedAt")
	t.Split = optBool(m, "_split")
	t.SplitFrom = optString(m, "_splitFrom")
	t.SplitAt = optInt(m, "_splitAt")
	if idx, ok := intAt(m, "_splitIndex"); ok {
		n := int(idx)
		t.SplitIndex = &n
	}

	t.Tags = jsonListAt[string](m, "_tags")
	t.Attachments = jsonListAt[any](m, "_attachments")
	t.MergedFrom = jsonListAt[string](m, "_mergedFrom")
	t.SplitInto = jsonListAt[string](m, "_splitInto")
	return t
}

func readIntMap(m *automerge.Map) (map[string]int64, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if v, ok := intAt(m, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// readAgents skips agents whose stored JSON no longer parses.
func readAgents(m *automerge.Map) (map[string]any, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		raw, ok := stringAt(m, k)
		if !ok {
			continue
		}
		var v any
		if json.Unmarshal([]byte(raw), &v) == nil {
			out[k] = v
		}
	}
	return out, nil
}

func valueAt(m *automerge.Map, key string) *automerge.Value {
	v, err := m.Get(key)
	if err != nil || v == nil {
		return nil
	}
	return v
}

func mapAt(m *automerge.Map, key string) *automerge.Map {
	if v := valueAt(m, key); v != nil && v.Kind() == automerge.KindMap {
		return v.Map()
	}
	return nil
}

func listAt(m *automerge.Map, key string) *automerge.List {
	if v := valueAt(m, key); v != nil && v.Kind() == automerge.KindList {
		return v.List()
	}
	return nil
}

func mapIn(l *automerge.List, i int) *automerge.Map {
	v, err := l.Get(i)
	if err != nil || v == nil || v.Kind() != automerge.KindMap {
		return nil
	}
	return v.Map()
}

func stringAt(m *automerge.Map, key string) (string, bool) {
	if v := valueAt(m, key); v != nil && v.Kind() == automerge.KindStr {
		return v.Str(), true
	}
	return "", false
}

func intAt(m *automerge.Map, key string) (int64, bool) {
	v := valueAt(m, key)
	if v == nil {
		return 0, false
	}
	switch v.Kind() {
	case automerge.KindInt64:
		return v.Int64(), true
	case automerge.KindUint64:
		return int64(v.Uint64()), true
	}
	return 0, false
}

func floatAt(m *automerge.Map, key string) (float64, bool) {
	v := valueAt(m, key)
	if v == nil {
		return 0, false
	}
	switch v.Kind() {
	case automerge.KindFloat64:
		return v.Float64(), true
	case automerge.KindInt64:
		return float64(v.Int64()), true
	case automerge.KindUint64:
		return float64(v.Uint64()), true
	}
	return 0, false
}

func boolAt(m *automerge.Map, key string) (bool, bool) {
	if v := valueAt(m, key); v != nil && v.Kind() == automerge.KindBool {
		return v.Bool(), true
	}
	return false, false
}

func stringOr(m *automerge.Map, key, def string) string {
	if s, ok := stringAt(m, key); ok {
		return s
	}
	return def
}

func intOr(m *automerge.Map, key string, def int64) int64 {
	if n, ok := intAt(m, key); ok {
		return n
	}
	return def
}

func boolOr(m *automerge.Map, key string, def bool) bool {
	if b, ok := boolAt(m, key); ok {
		return b
	}
	return def
}

func optString(m *automerge.Map, key string) *string {
	if s, ok := stringAt(m, key); ok {
		return &s
	}
	return nil
}

func optBool(m *automerge.Map, key string) *bool {
	if b, ok := boolAt(m, key); ok {
		return &b
	}
	return nil
}

func optInt(m *automerge.Map, key string) *int64 {
	if n, ok := intAt(m, key); ok {
		return &n
	}
	return nil
}

// jsonListAt decodes a list stored as a JSON string. Unparseable strings read as absent.
func jsonListAt[T any](m *automerge.Map, key string) []T {
	raw, ok := stringAt(m, key)
	if !ok {
		return nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// plainValue converts a document value into plain Go maps, slices and scalars.
func plainValue(v *automerge.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind() {
	case automerge.KindVoid, automerge.KindNull:
		return nil
	case automerge.KindMap:
		m := v.Map()
		keys, err := m.Keys()
		if err != nil {
			return nil
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = plainValue(valueAt(m, k))
		}
		return out
	case automerge.KindList:
		l := v.List()
		out := make([]any, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			item, err := l.Get(i)
			if err != nil {
				continue
			}
			out = append(out, plainValue(item))
		}
		return out
	case automerge.KindStr:
		return v.Str()
	case automerge.KindInt64:
		return v.Int64()
	case automerge.KindUint64:
		return v.Uint64()
	case automerge.KindFloat64:
		return v.Float64()
	case automerge.KindBool:
		return v.Bool()
	}
	return v.Interface()
}
