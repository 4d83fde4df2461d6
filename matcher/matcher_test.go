package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/types"
)

func newTestMessage(t *testing.T, fields map[string]any) *message.Message {
	t.Helper()
	msg := message.New("test message", "test-host", time.Now())
	msg.AddFields(fields)
	return msg
}

func TestForKind(t *testing.T) {
	for _, kind := range []types.RuleKind{
		types.RuleKindPresence,
		types.RuleKindExact,
		types.RuleKindGreater,
		types.RuleKindSmaller,
		types.RuleKindRegex,
	} {
		m, err := ForKind(kind)
		require.NoError(t, err, "kind %s", kind)
		require.NotNil(t, m)
	}

	_, err := ForKind(types.RuleKindInvalid)
	assert.Error(t, err)
}

func TestPresenceMatcher(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		inverted bool
		expected bool
	}{
		{name: "field_present", fields: map[string]any{"testfield": "v"}, expected: true},
		{name: "field_absent", fields: nil, expected: false},
		{name: "field_absent_inverted", fields: nil, inverted: true, expected: true},
		{name: "field_present_inverted", fields: map[string]any{"testfield": "v"}, inverted: true, expected: false},
		{name: "numeric_field_present", fields: map[string]any{"testfield": int64(7)}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.StreamRule{
				ID: "r1", Kind: types.RuleKindPresence, Field: "testfield", Inverted: tt.inverted,
			}
			matched, err := (PresenceMatcher{}).Match(newTestMessage(t, tt.fields), rule)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestExactMatcher(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		value    string
		inverted bool
		expected bool
	}{
		{name: "equal", fields: map[string]any{"testfield": "testvalue"}, value: "testvalue", expected: true},
		{name: "not_equal", fields: map[string]any{"testfield": "no-testvalue"}, value: "testvalue", expected: false},
		{name: "absent", fields: nil, value: "testvalue", expected: false},
		{name: "equal_inverted", fields: map[string]any{"testfield": "testvalue"}, value: "testvalue", inverted: true, expected: false},
		{name: "not_equal_inverted", fields: map[string]any{"testfield": "other"}, value: "testvalue", inverted: true, expected: true},
		{name: "integer_string_form", fields: map[string]any{"testfield": int64(42)}, value: "42", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.StreamRule{
				ID: "r1", Kind: types.RuleKindExact, Field: "testfield",
				Value: tt.value, Inverted: tt.inverted,
			}
			matched, err := (ExactMatcher{}).Match(newTestMessage(t, tt.fields), rule)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestGreaterMatcher(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		value    string
		inverted bool
		expected bool
	}{
		{name: "greater", fields: map[string]any{"testfield": "2"}, value: "1", expected: true},
		{name: "equal_is_not_greater", fields: map[string]any{"testfield": "1"}, value: "1", expected: false},
		{name: "smaller", fields: map[string]any{"testfield": "0.5"}, value: "1", expected: false},
		{name: "non_numeric_field", fields: map[string]any{"testfield": "abc"}, value: "1", expected: false},
		{name: "non_numeric_rule_value", fields: map[string]any{"testfield": "2"}, value: "abc", expected: false},
		{name: "absent_field", fields: nil, value: "1", expected: false},
		// Inversion applies only after a successful parse
		{name: "non_numeric_inverted_stays_false", fields: map[string]any{"testfield": "abc"}, value: "1", inverted: true, expected: false},
		{name: "greater_inverted", fields: map[string]any{"testfield": "2"}, value: "1", inverted: true, expected: false},
		{name: "smaller_inverted", fields: map[string]any{"testfield": "0"}, value: "1", inverted: true, expected: true},
		{name: "float_field_value", fields: map[string]any{"testfield": 2.5}, value: "2", expected: true},
		{name: "int_field_value", fields: map[string]any{"testfield": int64(3)}, value: "2", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.StreamRule{
				ID: "r1", Kind: types.RuleKindGreater, Field: "testfield",
				Value: tt.value, Inverted: tt.inverted,
			}
			matched, err := (GreaterMatcher{}).Match(newTestMessage(t, tt.fields), rule)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestSmallerMatcher(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		value    string
		expected bool
	}{
		{name: "smaller", fields: map[string]any{"testfield": "2"}, value: "5", expected: true},
		{name: "equal_is_not_smaller", fields: map[string]any{"testfield": "5"}, value: "5", expected: false},
		{name: "greater", fields: map[string]any{"testfield": "7"}, value: "5", expected: false},
		{name: "non_numeric", fields: map[string]any{"testfield": "xyz"}, value: "5", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.StreamRule{
				ID: "r1", Kind: types.RuleKindSmaller, Field: "testfield", Value: tt.value,
			}
			matched, err := (SmallerMatcher{}).Match(newTestMessage(t, tt.fields), rule)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestRegexMatcher(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		pattern  string
		inverted bool
		expected bool
	}{
		{name: "anchored_match", fields: map[string]any{"testfield": "testvalue"}, pattern: "^test", expected: true},
		{name: "anchored_no_match", fields: map[string]any{"testfield": "notestvalue"}, pattern: "^test", expected: false},
		{name: "match_anywhere", fields: map[string]any{"testfield": "xx-err-yy"}, pattern: "err", expected: true},
		{name: "absent_field", fields: nil, pattern: "^test", expected: false},
		{name: "absent_field_inverted", fields: nil, pattern: "^test", inverted: true, expected: true},
		{name: "match_inverted", fields: map[string]any{"testfield": "testvalue"}, pattern: "^test", inverted: true, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &types.StreamRule{
				ID: "r1", Kind: types.RuleKindRegex, Field: "testfield",
				Value: tt.pattern, Inverted: tt.inverted,
			}
			matched, err := (RegexMatcher{}).Match(newTestMessage(t, tt.fields), rule)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestRegexMatcherInvalidPattern(t *testing.T) {
	rule := &types.StreamRule{
		ID: "r1", Kind: types.RuleKindRegex, Field: "testfield", Value: "(unclosed",
	}
	matched, err := (RegexMatcher{}).Match(newTestMessage(t, map[string]any{"testfield": "x"}), rule)
	assert.Error(t, err)
	assert.False(t, matched)
}
