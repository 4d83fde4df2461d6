// Package types contains shared domain types used across the streamroute engine
package types

import (
	"encoding/json"
	"fmt"

	"github.com/kadledav/streamroute/errors"
)

// RuleKind represents the matching behavior of a stream rule
type RuleKind int

// Rule kind constants. The zero value is intentionally invalid so that
// an unset kind is never silently treated as a matcher.
const (
	RuleKindInvalid RuleKind = iota
	RuleKindPresence
	RuleKindExact
	RuleKindGreater
	RuleKindSmaller
	RuleKindRegex
)

// String implements fmt.Stringer for RuleKind
func (k RuleKind) String() string {
	switch k {
	case RuleKindPresence:
		return "presence"
	case RuleKindExact:
		return "exact"
	case RuleKindGreater:
		return "greater"
	case RuleKindSmaller:
		return "smaller"
	case RuleKindRegex:
		return "regex"
	default:
		return "invalid"
	}
}

// IsValid reports whether the kind is one of the known matcher kinds
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleKindPresence, RuleKindExact, RuleKindGreater, RuleKindSmaller, RuleKindRegex:
		return true
	default:
		return false
	}
}

// ParseRuleKind converts a string into a RuleKind
func ParseRuleKind(s string) (RuleKind, error) {
	switch s {
	case "presence":
		return RuleKindPresence, nil
	case "exact":
		return RuleKindExact, nil
	case "greater":
		return RuleKindGreater, nil
	case "smaller":
		return RuleKindSmaller, nil
	case "regex":
		return RuleKindRegex, nil
	default:
		return RuleKindInvalid, errors.WrapInvalid(errors.ErrInvalidRuleKind,
			"RuleKind", "ParseRuleKind", fmt.Sprintf("unknown kind %q", s))
	}
}

// MarshalJSON implements json.Marshaler for RuleKind
func (k RuleKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler for RuleKind
func (k *RuleKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.WrapInvalid(err, "RuleKind", "UnmarshalJSON", "decode kind string")
	}
	kind, err := ParseRuleKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// StreamRule is a single predicate on a single message field.
// For presence rules Value is ignored. For greater/smaller rules Value must
// parse as a decimal number. For regex rules Value is compiled at engine build.
type StreamRule struct {
	ID       string   `json:"id"`
	StreamID string   `json:"stream_id"`
	Kind     RuleKind `json:"kind"`
	Field    string   `json:"field"`
	Value    string   `json:"value,omitempty"`
	Inverted bool     `json:"inverted,omitempty"`
}

// Validate ensures the rule carries everything its kind needs
func (r *StreamRule) Validate() error {
	if r.ID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "StreamRule", "Validate", "rule id cannot be empty")
	}
	if r.Field == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "StreamRule", "Validate", "rule field cannot be empty")
	}
	if !r.Kind.IsValid() {
		return errors.WrapInvalid(errors.ErrInvalidRuleKind, "StreamRule", "Validate",
			fmt.Sprintf("rule %s has invalid kind", r.ID))
	}
	if r.Kind != RuleKindPresence && r.Value == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "StreamRule", "Validate",
			fmt.Sprintf("rule %s of kind %s requires a value", r.ID, r.Kind))
	}
	return nil
}

// Stream is a logical subscription defined by a conjunction of stream rules.
// The catalogue owns stream definitions; the engine only ever sees read-only
// snapshots.
type Stream struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Disabled bool          `json:"disabled,omitempty"`
	Paused   bool          `json:"paused,omitempty"`
	Rules    []*StreamRule `json:"rules,omitempty"`
}

// Validate ensures the stream definition is well formed
func (s *Stream) Validate() error {
	if s.ID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Stream", "Validate", "stream id cannot be empty")
	}
	for _, rule := range s.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RuleCount returns the number of rules declared on the stream
func (s *Stream) RuleCount() int {
	return len(s.Rules)
}
