package chronicle_test

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/chronicle/pkg/chronicle"
	"github.com/astromechza/chronicle/pkg/metrics"
	"github.com/astromechza/chronicle/pkg/state"
)

func card(id, text string, index int) state.Token {
	t := state.NewToken(id)
	t.Text = text
	t.Index = index
	return t
}

func fullState() *state.State {
	ace := card("c-ace", "Ace of Spades", 0)
	ace.Label = state.Ptr("A")
	ace.Group = state.Ptr("spades")
	ace.Meta = map[string]any{"suit": "spades", "rank": float64(1)}
	ace.Rev = state.Ptr(true)
	ace.Tags = []string{"marked"}

	merged := card("c-merged", "Pair", 2)
	merged.Char = "♠"
	merged.Kind = "combo"
	merged.Merged = state.Ptr(true)
	merged.MergedFrom = []string{"c-2", "c-3"}
	merged.MergedAt = state.Ptr(int64(1700000000000))
	merged.Attachments = []any{map[string]any{"id": "c-4", "type": "boost"}}

	split := card("c-split", "Half", 3)
	split.Split = state.Ptr(true)
	split.SplitFrom = state.Ptr("c-merged")
	split.SplitIndex = state.Ptr(1)
	split.SplitAt = state.Ptr(int64(1700000000500))
	split.SplitInto = []string{"c-5"}
	split.AttachedTo = state.Ptr("c-ace")
	split.AttachmentType = state.Ptr("boost")

	return &state.State{
		Stack: &state.StackState{
			Stack:    []state.Token{ace, card("c-king", "King of Hearts", 1)},
			Drawn:    []state.Token{merged},
			Discards: []state.Token{},
		},
		Zones: map[string][]state.Placement{
			"table": {{
				ID:            "p-1",
				TokenID:       "c-split",
				TokenSnapshot: split,
				X:             state.Ptr(10.5),
				Y:             state.Ptr(-2.0),
				FaceUp:        false,
				Label:         state.Ptr("center"),
				TS:            1700000001000,
				Reversed:      true,
				Tags:          []string{"locked"},
			}},
			"hand": {},
		},
		Source: &state.SourceState{
			StackIDs: []string{"deck-1", "deck-2"},
			Tokens:   []state.Token{card("s-1", "Spare", 0)},
			Burned:   []state.Token{},
			Seed:     state.Ptr(42),
			ReshufflePolicy: state.ReshufflePolicy{
				Threshold: state.Ptr(5),
				Mode:      "manual",
			},
		},
		GameLoop: &state.GameLoopState{Turn: 3, Running: true, ActiveAgentIndex: 1, Phase: "draw", MaxTurns: 20},
		Rules:    &state.RuleState{Fired: map[string]int64{"first-blood": 1700000002000}},
		Agents: map[string]any{
			"alice": map[string]any{"score": float64(12), "hand": []any{"c-ace"}},
		},
		Version:    state.Ptr("1.0"),
		Nullifiers: map[string]int64{"0xabc": 1700000003000},
		Extra: map[string]any{
			"customField": map[string]any{"a": float64(1)},
			"note":        "plain",
		},
	}
}

func mustState(t *testing.T, c *chronicle.Chronicle) *state.State {
	t.Helper()
	s, err := c.GetState()
	require.NoError(t, err)
	return s
}

func mustJSON(t *testing.T, c *chronicle.Chronicle) string {
	t.Helper()
	raw, err := c.GetStateJSON()
	require.NoError(t, err)
	return string(raw)
}

func TestSetState_RoundTrip(t *testing.T) {
	c := chronicle.New()
	want := fullState()
	require.NoError(t, c.SetState(want))

	got := mustState(t, c)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSetState_AbsentIsNotEmpty(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetState(&state.State{
		Zones:      map[string][]state.Placement{},
		Stack:      &state.StackState{},
		Nullifiers: map[string]int64{},
	}))
	s := mustState(t, c)
	require.NotNil(t, s.Zones)
	assert.Empty(t, s.Zones)
	require.NotNil(t, s.Stack)
	assert.Empty(t, s.Stack.Stack)
	assert.NotNil(t, s.Nullifiers)
	assert.Nil(t, s.Source)
	assert.Nil(t, s.Version)

	require.NoError(t, c.SetState(&state.State{Version: state.Ptr("2")}))
	s = mustState(t, c)
	assert.Nil(t, s.Zones)
	assert.Nil(t, s.Stack)
	assert.Nil(t, s.Nullifiers)
	assert.Equal(t, "2", *s.Version)
	assert.JSONEq(t, `{"version": "2"}`, mustJSON(t, c))
}

func TestSetState_NilClearsEverything(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetState(fullState()))
	require.NoError(t, c.SetState(nil))
	assert.JSONEq(t, `{"customField": {"a": 1}, "note": "plain"}`, mustJSON(t, c))
}

func TestScenario_StackThenZones(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1.0","stack":{"stack":[],"drawn":[],"discards":[]}}`)))

	s := mustState(t, c)
	require.NotNil(t, s.Version)
	assert.Equal(t, "1.0", *s.Version)
	require.NotNil(t, s.Stack)
	assert.Len(t, s.Stack.Stack, 0)

	require.NoError(t, c.ChangeJSON("x", []byte(`{"version":"1.0","stack":{"stack":[],"drawn":[],"discards":[]},"zones":{"main":[]}}`)))
	s = mustState(t, c)
	assert.Equal(t, "1.0", *s.Version)
	require.Contains(t, s.Zones, "main")
	assert.NotNil(t, s.Zones["main"])
	assert.Len(t, s.Zones["main"], 0)
}

func TestSetState_Idempotent(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetState(fullState()))
	first := mustJSON(t, c)
	require.NoError(t, c.SetState(fullState()))
	assert.JSONEq(t, first, mustJSON(t, c))
	assert.Equal(t, 1, c.ChangeCount())
}

func TestSetState_UnknownFieldPassthrough(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"customField":{"a":1}}`)))
	s := mustState(t, c)
	assert.Equal(t, map[string]any{"a": float64(1)}, s.Extra["customField"])
}

func TestSetState_KnownKeyWinsOverExtra(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetState(&state.State{
		Version: state.Ptr("typed"),
		Extra:   map[string]any{state.KeyVersion: "extra"},
	}))
	s := mustState(t, c)
	assert.Equal(t, "typed", *s.Version)
	assert.NotContains(t, s.Extra, state.KeyVersion)
}

func TestSetState_AtomicOnEncodeFailure(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))
	heads := c.Heads()

	bad := card("c-bad", "bad", 0)
	bad.Meta = map[string]any{"weight": math.Inf(1)}
	err := c.SetState(&state.State{
		Version: state.Ptr("2"),
		Stack:   &state.StackState{Stack: []state.Token{bad}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, chronicle.ErrSerialization)
	assert.Equal(t, heads, c.Heads())
	assert.JSONEq(t, `{"version": "1"}`, mustJSON(t, c))
}

func TestSetStateJSON_Malformed(t *testing.T) {
	c := chronicle.New()
	err := c.SetStateJSON([]byte(`{"version": `))
	require.Error(t, err)
	assert.ErrorIs(t, err, chronicle.ErrSerialization)

	var cerr *chronicle.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "setState", cerr.Op)
	assert.Equal(t, 0, c.ChangeCount())
}

func TestGetState_Defaults(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{
		"stack": {"stack": [{"id": "t1", "text": "", "meta": null, "index": 0}]},
		"zones": {"main": [{"id": "p1", "tokenId": "t1", "tokenSnapshot": {"id": "t1"}, "ts": 5}]},
		"source": {"stackIds": [], "tokens": [], "burned": []}
	}`)))
	s := mustState(t, c)

	tok := s.Stack.Stack[0]
	assert.Equal(t, state.DefaultChar, tok.Char)
	assert.Equal(t, state.DefaultKind, tok.Kind)
	assert.Equal(t, map[string]any{}, tok.Meta)
	assert.Equal(t, []state.Token{}, s.Stack.Drawn)

	p := s.Zones["main"][0]
	assert.True(t, p.FaceUp)
	assert.Equal(t, []string{}, p.Tags)
	assert.Nil(t, p.X)

	assert.Equal(t, state.DefaultReshuffleMode, s.Source.ReshufflePolicy.Mode)
	assert.Nil(t, s.Source.Seed)
}

func TestMerge_Commutative(t *testing.T) {
	a := chronicle.New()
	require.NoError(t, a.SetStateJSON([]byte(`{"version":"a","rules":{"fired":{"r1":1}}}`)))
	b := chronicle.New()
	require.NoError(t, b.SetStateJSON([]byte(`{"version":"b","nullifiers":{"n1":2}}`)))

	ab := chronicle.New()
	require.NoError(t, ab.Load(a.Save()))
	require.NoError(t, ab.Merge(b.Save()))

	ba := chronicle.New()
	require.NoError(t, ba.Load(b.Save()))
	require.NoError(t, ba.SyncFull(a.Save()))

	assert.JSONEq(t, mustJSON(t, ab), mustJSON(t, ba))
	assert.Equal(t, 2, ab.ChangeCount())
	assert.ElementsMatch(t, ab.Heads(), ba.Heads())
}

func TestMerge_Malformed(t *testing.T) {
	c := chronicle.New()
	err := c.Merge([]byte("not a document"))
	require.Error(t, err)
	assert.ErrorIs(t, err, chronicle.ErrDocument)
}

func TestSaveLoad_Fidelity(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetState(fullState()))

	loaded := chronicle.New()
	require.NoError(t, loaded.Load(c.Save()))
	assert.JSONEq(t, mustJSON(t, c), mustJSON(t, loaded))
	assert.Equal(t, c.Heads(), loaded.Heads())
	assert.NotEqual(t, c.ActorID(), loaded.ActorID())

	viaBase64 := chronicle.New()
	require.NoError(t, viaBase64.LoadBase64(c.SaveBase64()))
	assert.JSONEq(t, mustJSON(t, c), mustJSON(t, viaBase64))
}

func TestLoad_Malformed(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))

	err := c.Load([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, chronicle.ErrDocument)
	err = c.LoadBase64("abc")
	assert.ErrorIs(t, err, chronicle.ErrSerialization)
	assert.JSONEq(t, `{"version":"1"}`, mustJSON(t, c))
}

func TestDecodeBase64(t *testing.T) {
	raw, err := chronicle.DecodeBase64("aGk=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), raw)

	raw, err = chronicle.DecodeBase64("")
	require.NoError(t, err)
	assert.Empty(t, raw)

	for _, bad := range []string{"aGk", "aG=k", "aGk=aGk=", "a!k="} {
		_, err := chronicle.DecodeBase64(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "aGk=", chronicle.EncodeBase64([]byte("hi")))
}

func TestSetActorID(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetActorID("aabbccdd"))
	assert.Equal(t, "aabbccdd", c.ActorID())
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))

	entries, err := c.History()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "aabbccdd", entries[0].Actor)

	assert.ErrorIs(t, c.SetActorID("not-hex"), chronicle.ErrDocument)
}

func TestHistory(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))
	require.NoError(t, c.ChangeJSON("bump", []byte(`{"version":"2"}`)))

	entries, err := c.History(state.KeyVersion)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].Value)
	assert.Equal(t, "2", entries[1].Value)
	assert.Equal(t, []string{entries[0].Hash}, entries[1].Deps)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(2), entries[1].Seq)
	assert.Equal(t, c.Heads(), []string{entries[1].Hash})

	entries, err = c.History("missing")
	require.NoError(t, err)
	assert.Nil(t, entries[0].Value)
}

// exchange runs the base64 protocol between a and b until neither side has anything to send.
// exchange runs base64 ping-pong until neither side sends and returns both sessions.
func exchange(t *testing.T, a, b *chronicle.Chronicle) (string, string) {
	t.Helper()
	var sa, sb string
	for round := 0; round < 20; round++ {
		sent := false
		for _, dir := range []struct {
			from, to         *chronicle.Chronicle
			fromSess, toSess *string
		}{{a, b, &sa, &sb}, {b, a, &sb, &sa}} {
			gen, err := dir.from.GenerateSyncMessage(*dir.fromSess)
			require.NoError(t, err)
			*dir.fromSess = gen.SyncState
			if !gen.HasMessage {
				continue
			}
			sent = true
			msg := *gen.Message
			from, to := dir.from, dir.to
			fromSess, toSess := dir.fromSess, dir.toSess
			for {
				res, err := to.ReceiveSyncMessage(msg, *toSess)
				require.NoError(t, err)
				*toSess = res.SyncState
				if !res.HasResponse {
					break
				}
				msg = *res.ResponseMessage
				from, to = to, from
				fromSess, toSess = toSess, fromSess
			}
		}
		if !sent {
			return sa, sb
		}
	}
	t.Fatal("peers did not converge")
	return "", ""
}

func TestSync_Converges(t *testing.T) {
	a := chronicle.New()
	require.NoError(t, a.SetStateJSON([]byte(`{"version":"1.0","stack":{"stack":[],"drawn":[],"discards":[]}}`)))
	b := chronicle.New()
	require.NoError(t, b.SetStateJSON([]byte(`{"zones":{"main":[]},"customField":"x"}`)))

	exchange(t, a, b)
	assert.JSONEq(t, mustJSON(t, a), mustJSON(t, b))
	assert.ElementsMatch(t, a.Heads(), b.Heads())

	require.NoError(t, b.SetStateJSON([]byte(`{"version":"2.0"}`)))
	exchange(t, a, b)
	assert.JSONEq(t, `{"version":"2.0","customField":"x"}`, mustJSON(t, a))
}

func TestSync_HeldSessionStaysConverged(t *testing.T) {
	a := chronicle.New()
	require.NoError(t, a.SetStateJSON([]byte(`{"version":"1.0"}`)))
	b := chronicle.New()
	require.NoError(t, b.SetStateJSON([]byte(`{"customField":"x"}`)))
	sa, sb := exchange(t, a, b)

	for name, c := range map[string]struct {
		doc  *chronicle.Chronicle
		sess string
	}{"a": {a, sa}, "b": {b, sb}} {
		res, err := c.doc.GenerateSyncMessage(c.sess)
		require.NoError(t, err, name)
		assert.False(t, res.HasMessage, name)

		restarted := chronicle.New()
		require.NoError(t, restarted.Load(c.doc.Save()))
		res, err = restarted.GenerateSyncMessage(c.sess)
		require.NoError(t, err, name)
		assert.False(t, res.HasMessage, name)
	}

	require.NoError(t, a.SetStateJSON([]byte(`{"version":"2.0"}`)))
	res, err := a.GenerateSyncMessage(sa)
	require.NoError(t, err)
	assert.True(t, res.HasMessage)
}

func TestSync_LostMessageIsResent(t *testing.T) {
	a := chronicle.New()
	require.NoError(t, a.SetStateJSON([]byte(`{"version":"1.0"}`)))
	_, s1, err := a.GenerateMessage(nil)
	require.NoError(t, err)

	m2, s2, err := a.GenerateMessage(s1)
	require.NoError(t, err)
	assert.NotNil(t, m2)

	restarted := chronicle.New()
	require.NoError(t, restarted.Load(a.Save()))
	m3, s3, err := restarted.GenerateMessage(s1)
	require.NoError(t, err)
	assert.NotNil(t, m3)
	assert.Equal(t, s2, s3)

	b := chronicle.New()
	resp, _, err := b.ReceiveMessage(m3, nil)
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestLoad_ReplacesDocument(t *testing.T) {
	other := chronicle.New()
	require.NoError(t, other.SetStateJSON([]byte(`{"version":"1"}`)))

	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"zones":{"z":[]}}`)))
	require.NoError(t, c.Load(other.Save()))
	assert.JSONEq(t, `{"version":"1"}`, mustJSON(t, c))
	assert.Equal(t, other.Heads(), c.Heads())

	merged := chronicle.New()
	require.NoError(t, merged.SetStateJSON([]byte(`{"zones":{"z":[]}}`)))
	require.NoError(t, merged.Merge(other.Save()))
	assert.JSONEq(t, `{"version":"1","zones":{"z":[]}}`, mustJSON(t, merged))
	assert.NotEqual(t, other.Heads(), merged.Heads())
}

func TestGenerateSyncMessage_Shape(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))

	res, err := c.GenerateSyncMessage("")
	require.NoError(t, err)
	assert.True(t, res.HasMessage)
	require.NotNil(t, res.Message)
	assert.NotEmpty(t, res.SyncState)

	_, err = c.GenerateSyncMessage("%%%%")
	assert.ErrorIs(t, err, chronicle.ErrSerialization)
	_, err = c.GenerateSyncMessage(chronicle.EncodeBase64([]byte("short")))
	assert.ErrorIs(t, err, chronicle.ErrDocument)
}

func TestReceiveMessage_MalformedLeavesDocument(t *testing.T) {
	c := chronicle.New()
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))
	heads := c.Heads()
	gen, err := c.GenerateSyncMessage("")
	require.NoError(t, err)

	_, _, err = c.ReceiveMessage([]byte{0x01, 0x02, 0x03}, nil)
	assert.ErrorIs(t, err, chronicle.ErrDocument)
	_, _, err = c.ReceiveMessage(nil, nil)
	assert.ErrorIs(t, err, chronicle.ErrDocument)
	_, err = c.ReceiveSyncMessage("abc", gen.SyncState)
	assert.ErrorIs(t, err, chronicle.ErrSerialization)

	assert.Equal(t, heads, c.Heads())
	assert.JSONEq(t, `{"version":"1"}`, mustJSON(t, c))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	c := chronicle.New(chronicle.WithMetrics(m))
	require.NoError(t, c.SetStateJSON([]byte(`{"version":"1"}`)))
	require.Error(t, c.SetStateJSON([]byte(`nope`)))

	expected := `
# HELP chronicle_state_writes_total Total number of full state writes
# TYPE chronicle_state_writes_total counter
chronicle_state_writes_total{outcome="error"} 1
chronicle_state_writes_total{outcome="ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "chronicle_state_writes_total"))
}
