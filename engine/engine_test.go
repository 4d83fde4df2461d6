package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/types"
)

func newMessage(t *testing.T, fields map[string]any) *message.Message {
	t.Helper()
	msg := message.New("x", "h", time.Now())
	msg.AddFields(fields)
	return msg
}

func stream(id string, rules ...*types.StreamRule) *types.Stream {
	for _, rule := range rules {
		rule.StreamID = id
	}
	return &types.Stream{ID: id, Title: "stream " + id, Rules: rules}
}

func rule(id string, kind types.RuleKind, field, value string) *types.StreamRule {
	return &types.StreamRule{ID: id, Kind: kind, Field: field, Value: value}
}

func matchedIDs(streams []*types.Stream) []string {
	ids := make([]string, len(streams))
	for i, s := range streams {
		ids[i] = s.ID
	}
	return ids
}

func TestMatchPresence(t *testing.T) {
	e := New([]*types.Stream{
		stream("t", rule("r1", types.RuleKindPresence, "testfield", "")),
	})

	assert.Empty(t, e.Match(newMessage(t, nil)))
	assert.Equal(t, []string{"t"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"testfield": "v"}))))
}

func TestMatchExact(t *testing.T) {
	e := New([]*types.Stream{
		stream("t", rule("r1", types.RuleKindExact, "testfield", "testvalue")),
	})

	assert.Empty(t, e.Match(newMessage(t, map[string]any{"testfield": "no-testvalue"})))
	assert.Equal(t, []string{"t"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"testfield": "testvalue"}))))
}

func TestMatchGreater(t *testing.T) {
	e := New([]*types.Stream{
		stream("t", rule("r1", types.RuleKindGreater, "testfield", "1")),
	})

	assert.Empty(t, e.Match(newMessage(t, map[string]any{"testfield": "1"})))
	assert.Empty(t, e.Match(newMessage(t, map[string]any{"testfield": "abc"})))
	assert.Equal(t, []string{"t"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"testfield": "2"}))))
}

func TestMatchSmaller(t *testing.T) {
	e := New([]*types.Stream{
		stream("t", rule("r1", types.RuleKindSmaller, "testfield", "5")),
	})

	assert.Empty(t, e.Match(newMessage(t, map[string]any{"testfield": "5"})))
	assert.Equal(t, []string{"t"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"testfield": "2"}))))
}

func TestMatchRegex(t *testing.T) {
	e := New([]*types.Stream{
		stream("t", rule("r1", types.RuleKindRegex, "testfield", "^test")),
	})

	assert.Empty(t, e.Match(newMessage(t, map[string]any{"testfield": "notestvalue"})))
	assert.Equal(t, []string{"t"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"testfield": "testvalue"}))))
}

func TestMatchConjunctionAndDisjunction(t *testing.T) {
	e := New([]*types.Stream{
		stream("s1",
			rule("r1", types.RuleKindPresence, "f1", ""),
			rule("r2", types.RuleKindRegex, "f2", "^test")),
		stream("s2",
			rule("r3", types.RuleKindExact, "f3", "v3")),
	})

	assert.Empty(t, e.Match(newMessage(t, nil)))
	assert.Empty(t, e.Match(newMessage(t, map[string]any{"f1": "x", "f2": "xv"})),
		"regex failure must block the conjunction")
	assert.Equal(t, []string{"s1"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"f1": "x", "f2": "testx"}))))
	assert.ElementsMatch(t, []string{"s1", "s2"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"f1": "x", "f2": "testx", "f3": "v3"}))))
	assert.Equal(t, []string{"s2"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"f3": "v3"}))))
}

func TestMatchEmptyRuleStreamNeverMatches(t *testing.T) {
	e := New([]*types.Stream{stream("empty")})

	assert.Empty(t, e.Match(newMessage(t, nil)))
	assert.Empty(t, e.Match(newMessage(t, map[string]any{"anything": "v"})))
}

func TestMatchDeterministic(t *testing.T) {
	e := New([]*types.Stream{
		stream("a", rule("r1", types.RuleKindPresence, "f1", "")),
		stream("b", rule("r2", types.RuleKindPresence, "f1", "")),
		stream("c", rule("r3", types.RuleKindPresence, "f1", "")),
	})

	msg := newMessage(t, map[string]any{"f1": "v"})
	first := matchedIDs(e.Match(msg))
	require.Equal(t, []string{"a", "b", "c"}, first, "catalogue insertion order")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, matchedIDs(e.Match(msg)))
	}
}

func TestFieldIndexFidelity(t *testing.T) {
	// A non-presence rule on an absent field never contributes to a match,
	// even when its inversion flag would make the bare matcher return true.
	e := New([]*types.Stream{
		stream("s", &types.StreamRule{
			ID: "r1", Kind: types.RuleKindExact, Field: "f1", Value: "v", Inverted: true,
		}),
	})

	assert.Empty(t, e.Match(newMessage(t, nil)))
	assert.Equal(t, []string{"s"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"f1": "other"}))))
}

func TestInvertedPresenceAssertsAbsence(t *testing.T) {
	e := New([]*types.Stream{
		stream("s", &types.StreamRule{
			ID: "r1", Kind: types.RuleKindPresence, Field: "forbidden", Inverted: true,
		}),
	})

	assert.Equal(t, []string{"s"}, matchedIDs(e.Match(newMessage(t, nil))))
	assert.Empty(t, e.Match(newMessage(t, map[string]any{"forbidden": "v"})))
}

func TestBuildExcludesStreamWithBadRegex(t *testing.T) {
	e := New([]*types.Stream{
		stream("bad",
			rule("r1", types.RuleKindPresence, "f1", ""),
			rule("r2", types.RuleKindRegex, "f2", "(unclosed")),
		stream("good", rule("r3", types.RuleKindPresence, "f1", "")),
	})

	assert.Equal(t, 1, e.ExcludedStreamCount())
	assert.Equal(t, 1, e.StreamCount())
	assert.Equal(t, 1, e.RuleCount())

	// The bad stream must not match on its surviving rules either.
	assert.Equal(t, []string{"good"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"f1": "x", "f2": "y"}))))
}

func TestBuildExcludesStreamWithInvalidKind(t *testing.T) {
	e := New([]*types.Stream{
		stream("bad", &types.StreamRule{ID: "r1", Kind: types.RuleKindInvalid, Field: "f1"}),
	})

	assert.Equal(t, 1, e.ExcludedStreamCount())
	assert.Zero(t, e.StreamCount())
}

func TestBuildSkipsDisabledAndPaused(t *testing.T) {
	disabled := stream("off", rule("r1", types.RuleKindPresence, "f1", ""))
	disabled.Disabled = true
	paused := stream("paused", rule("r2", types.RuleKindPresence, "f1", ""))
	paused.Paused = true

	e := New([]*types.Stream{disabled, paused})
	assert.Zero(t, e.StreamCount())
	assert.Zero(t, e.ExcludedStreamCount(), "disabled streams are not faults")
	assert.Empty(t, e.Match(newMessage(t, map[string]any{"f1": "v"})))
}

func TestMultipleRulesOnSameField(t *testing.T) {
	e := New([]*types.Stream{
		stream("s1", rule("r1", types.RuleKindGreater, "level", "3")),
		stream("s2", rule("r2", types.RuleKindGreater, "level", "5")),
	})

	assert.ElementsMatch(t, []string{"s1"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"level": "4"}))))
	assert.ElementsMatch(t, []string{"s1", "s2"},
		matchedIDs(e.Match(newMessage(t, map[string]any{"level": "6"}))))
}

func TestTestMatchReportsPerRuleOutcomes(t *testing.T) {
	e := New([]*types.Stream{
		stream("s1",
			rule("r1", types.RuleKindPresence, "f1", ""),
			rule("r2", types.RuleKindRegex, "f2", "^test")),
	})

	results := e.TestMatch(newMessage(t, map[string]any{"f1": "x", "f2": "nope"}))
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, "s1", result.Stream.ID)
	assert.False(t, result.Matched)
	require.Len(t, result.Rules, 2)

	outcomes := make(map[string]bool, 2)
	for _, rm := range result.Rules {
		outcomes[rm.Rule.ID] = rm.Matched
	}
	assert.True(t, outcomes["r1"])
	assert.False(t, outcomes["r2"])
}

func TestFingerprint(t *testing.T) {
	streamsA := []*types.Stream{
		stream("s1", rule("r1", types.RuleKindExact, "f1", "v1")),
		stream("s2", rule("r2", types.RuleKindPresence, "f2", "")),
	}
	streamsB := []*types.Stream{
		stream("s2", rule("r2", types.RuleKindPresence, "f2", "")),
		stream("s1", rule("r1", types.RuleKindExact, "f1", "v1")),
	}
	streamsC := []*types.Stream{
		stream("s1", rule("r1", types.RuleKindExact, "f1", "CHANGED")),
		stream("s2", rule("r2", types.RuleKindPresence, "f2", "")),
	}

	assert.Equal(t, New(streamsA).Fingerprint(), New(streamsA).Fingerprint())
	assert.Equal(t, New(streamsA).Fingerprint(), New(streamsB).Fingerprint(),
		"fingerprint is load-order independent")
	assert.NotEqual(t, New(streamsA).Fingerprint(), New(streamsC).Fingerprint(),
		"rule value change must change the fingerprint")
}
