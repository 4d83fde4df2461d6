// Package engine provides the compiled, field-indexed form of the active
// stream rule set.
//
// An Engine is an immutable snapshot: construction indexes every enabled
// stream's rules by rule kind and field name, and evaluation routes one
// message against all streams in a single pass that only touches fields the
// message actually carries. Engines are published by atomic pointer swap and
// never mutated afterwards, so Match may run concurrently from any number of
// pipeline workers.
package engine

import (
	"log/slog"

	"github.com/kadledav/streamroute/matcher"
	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/types"
)

// CompiledRule binds a stream rule to its stream and matcher for the
// lifetime of one engine
type CompiledRule struct {
	stream *types.Stream
	rule   *types.StreamRule
	match  matcher.Matcher
}

// Stream returns the stream the rule belongs to
func (cr *CompiledRule) Stream() *types.Stream { return cr.stream }

// Rule returns the underlying stream rule
func (cr *CompiledRule) Rule() *types.StreamRule { return cr.rule }

// Evaluate runs the rule's matcher against a message
func (cr *CompiledRule) Evaluate(msg *message.Message) (bool, error) {
	return cr.match.Match(msg, cr.rule)
}

// Evaluator runs one rule evaluation and returns whether it matched.
// The router substitutes a harness-wrapped evaluator to add timeouts and
// fault accounting; the default evaluator calls the matcher directly and
// treats errors as non-matches.
type Evaluator func(cr *CompiledRule, msg *message.Message) bool

// kindIndex buckets the rules of one kind by field name
type kindIndex struct {
	rules  map[string][]*CompiledRule
	fields map[string]struct{}
}

func newKindIndex() *kindIndex {
	return &kindIndex{
		rules:  make(map[string][]*CompiledRule),
		fields: make(map[string]struct{}),
	}
}

func (ki *kindIndex) add(field string, cr *CompiledRule) {
	ki.fields[field] = struct{}{}
	ki.rules[field] = append(ki.rules[field], cr)
}

// Engine is an immutable compiled snapshot of the active rule set
type Engine struct {
	presence *kindIndex
	exact    *kindIndex
	greater  *kindIndex
	smaller  *kindIndex
	regex    *kindIndex

	// streams in catalogue insertion order; only streams whose entire rule
	// set compiled are present
	streams  []*types.Stream
	required map[string]int

	fingerprint   string
	ruleCount     int
	excludedCount int
}

// New builds an engine from a catalogue snapshot. Construction never fails:
// a stream carrying a rule with an unknown kind or an uncompilable regex is
// excluded entirely (fail-closed) with a warning, and counted in
// ExcludedStreamCount.
func New(streams []*types.Stream) *Engine {
	return NewWithLogger(streams, slog.Default())
}

// NewWithLogger builds an engine, logging skipped streams to the given logger
func NewWithLogger(streams []*types.Stream, logger *slog.Logger) *Engine {
	e := &Engine{
		presence:    newKindIndex(),
		exact:       newKindIndex(),
		greater:     newKindIndex(),
		smaller:     newKindIndex(),
		regex:       newKindIndex(),
		required:    make(map[string]int, len(streams)),
		fingerprint: fingerprint(streams),
	}

	for _, stream := range streams {
		if stream.Disabled || stream.Paused {
			continue
		}

		compiled, err := compileStream(stream)
		if err != nil {
			// One bad rule keeps the whole stream out: matching on the
			// remainder would silently relax the conjunction.
			e.excludedCount++
			logger.Warn("Excluding stream from engine",
				"stream_id", stream.ID,
				"stream_title", stream.Title,
				"error", err)
			continue
		}

		e.streams = append(e.streams, stream)
		e.required[stream.ID] = len(compiled)
		for _, cr := range compiled {
			e.index(cr)
			e.ruleCount++
		}
	}

	return e
}

// compileStream compiles every rule of a stream, or fails on the first bad one
func compileStream(stream *types.Stream) ([]*CompiledRule, error) {
	compiled := make([]*CompiledRule, 0, len(stream.Rules))
	for _, rule := range stream.Rules {
		m, err := matcher.ForKind(rule.Kind)
		if err != nil {
			return nil, err
		}
		if rule.Kind == types.RuleKindRegex {
			if _, err := matcher.CompileRegex(rule.Value); err != nil {
				return nil, err
			}
		}
		compiled = append(compiled, &CompiledRule{stream: stream, rule: rule, match: m})
	}
	return compiled, nil
}

func (e *Engine) index(cr *CompiledRule) {
	switch cr.rule.Kind {
	case types.RuleKindPresence:
		e.presence.add(cr.rule.Field, cr)
	case types.RuleKindExact:
		e.exact.add(cr.rule.Field, cr)
	case types.RuleKindGreater:
		e.greater.add(cr.rule.Field, cr)
	case types.RuleKindSmaller:
		e.smaller.add(cr.rule.Field, cr)
	case types.RuleKindRegex:
		e.regex.add(cr.rule.Field, cr)
	}
}

// defaultEvaluator calls the matcher directly; errors count as non-match
func defaultEvaluator(cr *CompiledRule, msg *message.Message) bool {
	matched, err := cr.Evaluate(msg)
	return err == nil && matched
}

// Match returns the streams whose entire rule set matches the message, in
// catalogue insertion order. A stream with zero rules never matches.
func (e *Engine) Match(msg *message.Message) []*types.Stream {
	return e.MatchWithEvaluator(msg, defaultEvaluator)
}

// MatchWithEvaluator is Match with a caller-supplied per-rule evaluator.
// The evaluation order runs cheaper kinds first, and every kind other than
// presence only visits the intersection of the message's fields with the
// kind's indexed fields. Presence rules are visited for all indexed fields
// because an inverted presence rule asserts absence.
func (e *Engine) MatchWithEvaluator(msg *message.Message, eval Evaluator) []*types.Stream {
	tally := make(map[string]int)

	for field := range e.presence.fields {
		e.matchField(msg, e.presence, field, eval, tally)
	}

	names := msg.FieldNames()
	e.matchIntersection(msg, e.exact, names, eval, tally)
	e.matchIntersection(msg, e.greater, names, eval, tally)
	e.matchIntersection(msg, e.smaller, names, eval, tally)
	e.matchIntersection(msg, e.regex, names, eval, tally)

	var result []*types.Stream
	for _, stream := range e.streams {
		required := e.required[stream.ID]
		if required > 0 && tally[stream.ID] == required {
			result = append(result, stream)
		}
	}
	return result
}

// matchIntersection walks only the fields present on both the message and
// the kind's index
func (e *Engine) matchIntersection(
	msg *message.Message,
	idx *kindIndex,
	names map[string]struct{},
	eval Evaluator,
	tally map[string]int,
) {
	// Iterate the smaller side of the intersection
	if len(idx.fields) < len(names) {
		for field := range idx.fields {
			if _, ok := names[field]; ok {
				e.matchField(msg, idx, field, eval, tally)
			}
		}
		return
	}
	for field := range names {
		if _, ok := idx.fields[field]; ok {
			e.matchField(msg, idx, field, eval, tally)
		}
	}
}

func (e *Engine) matchField(
	msg *message.Message,
	idx *kindIndex,
	field string,
	eval Evaluator,
	tally map[string]int,
) {
	for _, cr := range idx.rules[field] {
		if eval(cr, msg) {
			tally[cr.stream.ID]++
		}
	}
}

// Fingerprint returns the content hash of the catalogue snapshot this engine
// was built from. Two engines built from identical snapshots share a
// fingerprint, which lets the updater skip redundant swaps.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// RuleCount returns the number of compiled rules in the engine
func (e *Engine) RuleCount() int {
	return e.ruleCount
}

// StreamCount returns the number of streams eligible for matching
func (e *Engine) StreamCount() int {
	return len(e.streams)
}

// ExcludedStreamCount returns the number of streams dropped fail-closed
// during the build
func (e *Engine) ExcludedStreamCount() int {
	return e.excludedCount
}

// Streams returns the compiled streams in catalogue insertion order
func (e *Engine) Streams() []*types.Stream {
	return e.streams
}
