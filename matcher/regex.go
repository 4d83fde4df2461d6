package matcher

import (
	"github.com/kadledav/streamroute/errors"
	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/types"
)

// maxRegexInput caps how much of a field value a regex is run against.
// Go's regexp is linear in input size, but pathological messages can still
// carry multi-megabyte fields; the cap keeps per-rule cost bounded without
// needing cooperative cancellation inside the regex engine.
const maxRegexInput = 64 * 1024

// RegexMatcher matches when the rule's pattern finds a match anywhere in the
// field's string form. Patterns are compiled through the shared compile
// cache; compilation failures surface at engine build, not per message.
type RegexMatcher struct{}

// Match implements Matcher
func (RegexMatcher) Match(msg *message.Message, rule *types.StreamRule) (bool, error) {
	re, err := CompileRegex(rule.Value)
	if err != nil {
		return false, errors.WrapInvalid(err, "RegexMatcher", "Match", "compile pattern")
	}

	value, ok := fieldString(msg, rule.Field)
	if len(value) > maxRegexInput {
		value = value[:maxRegexInput]
	}

	matched := ok && re.MatchString(value)
	return matched != rule.Inverted, nil
}
