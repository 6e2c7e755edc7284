package chronicle

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/chronicle/pkg/state"
)

// fieldValues is the encoded form of a state: one value per present known key, plus the
// extra keys as JSON strings.
type fieldValues struct {
	known map[string]any
	extra map[string]string
}

// writeState applies s to a fork that shares this document's actor id and merges the fork
// back once it has committed. Nothing reaches c.doc unless every put succeeded.
func (c *Chronicle) writeState(op string, s *state.State) error {
	if s == nil {
		s = &state.State{}
	}
	fields, err := encodeState(s)
	if err != nil {
		c.logger.Warn("rejected state", "op", op, "err", err)
		return serializationError(op, err)
	}

	fork, err := c.doc.Fork()
	if err != nil {
		return documentError(op, fmt.Errorf("failed to fork: %w", err))
	}
	if err := fork.SetActorID(c.doc.ActorID()); err != nil {
		return documentError(op, fmt.Errorf("failed to set actor: %w", err))
	}
	if err := applyFields(fork.RootMap(), fields); err != nil {
		return documentError(op, err)
	}
	if _, err := fork.Commit(op, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return documentError(op, fmt.Errorf("failed to commit: %w", err))
	}
	if _, err := c.doc.Merge(fork); err != nil {
		return documentError(op, fmt.Errorf("failed to merge fork: %w", err))
	}
	c.logger.Debug("wrote state", "op", op, "fields", len(fields.known), "extra", len(fields.extra), "heads", len(c.doc.Heads()))
	return nil
}

func applyFields(root *automerge.Map, fields *fieldValues) error {
	for _, key := range state.KnownKeys() {
		if v, ok := fields.known[key]; ok {
			if err := root.Set(key, v); err != nil {
				return fmt.Errorf("failed to put %s: %w", key, err)
			}
			continue
		}
		existing, err := root.Get(key)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		if existing == nil || existing.Kind() == automerge.KindVoid {
			continue
		}
		if err := root.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}

	extraKeys := make([]string, 0, len(fields.extra))
	for k := range fields.extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		if err := root.Set(key, fields.extra[key]); err != nil {
			return fmt.Errorf("failed to put extra %s: %w", key, err)
		}
	}
	return nil
}

func encodeState(s *state.State) (*fieldValues, error) {
	f := &fieldValues{known: map[string]any{}, extra: map[string]string{}}
	var err error

	if s.Stack != nil {
		if f.known[state.KeyStack], err = encodeStack(s.Stack); err != nil {
			return nil, err
		}
	}
	if s.Zones != nil {
		if f.known[state.KeyZones], err = encodeZones(s.Zones); err != nil {
			return nil, err
		}
	}
	if s.Source != nil {
		if f.known[state.KeySource], err = encodeSource(s.Source); err != nil {
			return nil, err
		}
	}
	if s.GameLoop != nil {
		f.known[state.KeyGameLoop] = map[string]any{
			"turn":             int64(s.GameLoop.Turn),
			"running":          s.GameLoop.Running,
			"activeAgentIndex": int64(s.GameLoop.ActiveAgentIndex),
			"phase":            s.GameLoop.Phase,
			"maxTurns":         int64(s.GameLoop.MaxTurns),
		}
	}
	if s.Rules != nil {
		fired := make(map[string]any, len(s.Rules.Fired))
		for name, ts := range s.Rules.Fired {
			fired[name] = ts
		}
		f.known[state.KeyRules] = map[string]any{"fired": fired}
	}
	if s.Agents != nil {
		agents := make(map[string]any, len(s.Agents))
		for name, data := range s.Agents {
			if agents[name], err = jsonScalar(data); err != nil {
				return nil, fmt.Errorf("agent %q: %w", name, err)
			}
		}
		f.known[state.KeyAgents] = agents
	}
	if s.Version != nil {
		f.known[state.KeyVersion] = *s.Version
	}
	if s.Nullifiers != nil {
		nullifiers := make(map[string]any, len(s.Nullifiers))
		for hash, ts := range s.Nullifiers {
			nullifiers[hash] = ts
		}
		f.known[state.KeyNullifiers] = nullifiers
	}

	for key, value := range s.Extra {
		if state.IsKnownKey(key) {
			continue
		}
		if f.extra[key], err = jsonScalar(value); err != nil {
			return nil, fmt.Errorf("extra %q: %w", key, err)
		}
	}
	return f, nil
}

func encodeStack(s *state.StackState) (map[string]any, error) {
	stack, err := encodeTokens(s.Stack)
	if err != nil {
		return nil, err
	}
	drawn, err := encodeTokens(s.Drawn)
	if err != nil {
		return nil, err
	}
	discards, err := encodeTokens(s.Discards)
	if err != nil {
		return nil, err
	}
	return map[string]any{"stack": stack, "drawn": drawn, "discards": discards}, nil
}

func encodeSource(s *state.SourceState) (map[string]any, error) {
	tokens, err := encodeTokens(s.Tokens)
	if err != nil {
		return nil, err
	}
	burned, err := encodeTokens(s.Burned)
	if err != nil {
		return nil, err
	}
	stackIDs := make([]any, len(s.StackIDs))
	for i, id := range s.StackIDs {
		stackIDs[i] = id
	}
	policy := map[string]any{"mode": s.ReshufflePolicy.Mode}
	if s.ReshufflePolicy.Threshold != nil {
		policy["threshold"] = int64(*s.ReshufflePolicy.Threshold)
	}
	out := map[string]any{
		"stackIds":        stackIDs,
		"tokens":          tokens,
		"burned":          burned,
		"reshufflePolicy": policy,
	}
	if s.Seed != nil {
		out["seed"] = int64(*s.Seed)
	}
	return out, nil
}

func encodeZones(zones map[string][]state.Placement) (map[string]any, error) {
	out := make(map[string]any, len(zones))
	for name, placements := range zones {
		list := make([]any, len(placements))
		for i := range placements {
			p, err := encodePlacement(&placements[i])
			if err != nil {
				return nil, fmt.Errorf("zone %q placement %d: %w", name, i, err)
			}
			list[i] = p
		}
		out[name] = list
	}
	return out, nil
}

func encodePlacement(p *state.Placement) (map[string]any, error) {
	snapshot, err := encodeToken(&p.TokenSnapshot)
	if err != nil {
		return nil, err
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := jsonScalar(tags)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"id":            p.ID,
		"tokenId":       p.TokenID,
		"tokenSnapshot": snapshot,
		"faceUp":        p.FaceUp,
		"ts":            p.TS,
		"reversed":      p.Reversed,
		"tags":          tagsJSON,
	}
	if p.X != nil {
		out["x"] = *p.X
	}
	if p.Y != nil {
		out["y"] = *p.Y
	}
	if p.Label != nil {
		out["label"] = *p.Label
	}
	return out, nil
}

func encodeTokens(tokens []state.Token) ([]any, error) {
	out := make([]any, len(tokens))
	for i := range tokens {
		t, err := encodeToken(&tokens[i])
		if err != nil {
			return nil, fmt.Errorf("token %d (%s): %w", i, tokens[i].ID, err)
		}
		out[i] = t
	}
	return out, nil
}

// encodeToken flattens a token into a map. Meta and the list-valued runtime flags are stored
// as JSON strings, so concurrent edits to different meta keys do not merge.
func encodeToken(t *state.Token) (map[string]any, error) {
	meta := t.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := jsonScalar(meta)
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	out := map[string]any{
		"id":    t.ID,
		"text":  t.Text,
		"char":  t.Char,
		"kind":  t.Kind,
		"index": int64(t.Index),
		"meta":  metaJSON,
	}

	putOptional(out, "label", t.Label)
	putOptional(out, "group", t.Group)
	putOptional(out, "_rev", t.Rev)
	putOptional(out, "_attachedTo", t.AttachedTo)
	putOptional(out, "_attachmentType", t.AttachmentType)
	putOptional(out, "_merged", t.Merged)
	putOptional(out, "_mergedInto", t.MergedInto)
	putOptional(out, "_mergedAt", t.MergedAt)
	putOptional(out, "_split", t.Split)
	putOptional(out, "_splitFrom", t.SplitFrom)
	putOptional(out, "_splitAt", t.SplitAt)
	if t.SplitIndex != nil {
		out["_splitIndex"] = int64(*t.SplitIndex)
	}

	lists := []struct {
		key   string
		value any
		set   bool
	}{
		{"_tags", t.Tags, t.Tags != nil},
		{"_attachments", t.Attachments, t.Attachments != nil},
		{"_mergedFrom", t.MergedFrom, t.MergedFrom != nil},
		{"_splitInto", t.SplitInto, t.SplitInto != nil},
	}
	for _, l := range lists {
		if !l.set {
			continue
		}
		if out[l.key], err = jsonScalar(l.value); err != nil {
			return nil, fmt.Errorf("%s: %w", l.key, err)
		}
	}
	return out, nil
}

func putOptional[T any](m map[string]any, key string, v *T) {
	if v != nil {
		m[key] = *v
	}
}

func jsonScalar(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
