package engine

import (
	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/types"
)

// RuleMatch is the outcome of one rule evaluation in a TestMatch run
type RuleMatch struct {
	Rule    *types.StreamRule
	Matched bool
}

// StreamTestResult holds per-rule outcomes for one stream
type StreamTestResult struct {
	Stream  *types.Stream
	Matched bool
	Rules   []RuleMatch
}

// TestMatch evaluates every rule of every compiled stream against the
// message and reports per-rule outcomes. It answers "why didn't my stream
// match?" queries, so it deliberately skips the field-index fast path and
// re-runs each matcher even when the stream's fate is already decided.
func (e *Engine) TestMatch(msg *message.Message) []*StreamTestResult {
	results := make([]*StreamTestResult, 0, len(e.streams))

	for _, stream := range e.streams {
		result := &StreamTestResult{
			Stream: stream,
			Rules:  make([]RuleMatch, 0, len(stream.Rules)),
		}

		matchedAll := len(stream.Rules) > 0
		for _, rule := range stream.Rules {
			matched := false
			if cr := e.findCompiled(stream.ID, rule.ID); cr != nil {
				matched = defaultEvaluator(cr, msg)
			}
			if !matched {
				matchedAll = false
			}
			result.Rules = append(result.Rules, RuleMatch{Rule: rule, Matched: matched})
		}
		result.Matched = matchedAll

		results = append(results, result)
	}

	return results
}

// findCompiled locates the compiled form of a rule by stream and rule id
func (e *Engine) findCompiled(streamID, ruleID string) *CompiledRule {
	for _, idx := range []*kindIndex{e.presence, e.exact, e.greater, e.smaller, e.regex} {
		for _, rules := range idx.rules {
			for _, cr := range rules {
				if cr.stream.ID == streamID && cr.rule.ID == ruleID {
					return cr
				}
			}
		}
	}
	return nil
}
