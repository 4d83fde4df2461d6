// Package matcher implements one matcher per stream rule kind.
//
// Matchers are pure functions of (message, rule) and are safe to invoke
// concurrently on independent messages against a shared immutable engine.
// They never panic across the engine boundary: every failure mode is either
// a definite non-match or an error the caller converts into a fault.
package matcher

import (
	"strconv"
	"time"

	"github.com/kadledav/streamroute/errors"
	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/types"
)

// Matcher evaluates one stream rule against one message
type Matcher interface {
	Match(msg *message.Message, rule *types.StreamRule) (bool, error)
}

// ForKind returns the matcher implementation for a rule kind
func ForKind(kind types.RuleKind) (Matcher, error) {
	switch kind {
	case types.RuleKindPresence:
		return PresenceMatcher{}, nil
	case types.RuleKindExact:
		return ExactMatcher{}, nil
	case types.RuleKindGreater:
		return GreaterMatcher{}, nil
	case types.RuleKindSmaller:
		return SmallerMatcher{}, nil
	case types.RuleKindRegex:
		return RegexMatcher{}, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidRuleKind, "Matcher", "ForKind",
			"kind "+kind.String())
	}
}

// fieldString renders a message field value in its canonical string form.
// The second return is false when the field is absent.
func fieldString(msg *message.Message, field string) (string, bool) {
	value := msg.GetField(field)
	if value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// PresenceMatcher matches when the field exists with a non-empty string form.
// With the inversion flag set it asserts absence instead.
type PresenceMatcher struct{}

// Match implements Matcher
func (PresenceMatcher) Match(msg *message.Message, rule *types.StreamRule) (bool, error) {
	value, ok := fieldString(msg, rule.Field)
	present := ok && value != ""
	return present != rule.Inverted, nil
}

// ExactMatcher matches when the field's string form equals the rule value
// octet for octet.
type ExactMatcher struct{}

// Match implements Matcher
func (ExactMatcher) Match(msg *message.Message, rule *types.StreamRule) (bool, error) {
	value, ok := fieldString(msg, rule.Field)
	matched := ok && value == rule.Value
	return matched != rule.Inverted, nil
}

// GreaterMatcher matches when the field value, parsed as a double, exceeds
// the rule value. A parse failure on either side is a definite non-match;
// inversion only applies after both sides parsed.
type GreaterMatcher struct{}

// Match implements Matcher
func (GreaterMatcher) Match(msg *message.Message, rule *types.StreamRule) (bool, error) {
	fieldVal, ruleVal, ok := parseBothSides(msg, rule)
	if !ok {
		return false, nil
	}
	return (fieldVal > ruleVal) != rule.Inverted, nil
}

// SmallerMatcher is the symmetric counterpart of GreaterMatcher
type SmallerMatcher struct{}

// Match implements Matcher
func (SmallerMatcher) Match(msg *message.Message, rule *types.StreamRule) (bool, error) {
	fieldVal, ruleVal, ok := parseBothSides(msg, rule)
	if !ok {
		return false, nil
	}
	return (fieldVal < ruleVal) != rule.Inverted, nil
}

func parseBothSides(msg *message.Message, rule *types.StreamRule) (fieldVal, ruleVal float64, ok bool) {
	str, present := fieldString(msg, rule.Field)
	if !present {
		return 0, 0, false
	}
	fieldVal, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, 0, false
	}
	ruleVal, err = strconv.ParseFloat(rule.Value, 64)
	if err != nil {
		return 0, 0, false
	}
	return fieldVal, ruleVal, true
}
