// Package message provides the log record type routed by the engine.
//
// A Message is a bag of named fields plus a mandatory id, body, source and
// timestamp. Messages are created at ingest, mutated by pipeline stages up to
// routing, and treated as immutable by the engine afterwards.
package message

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadledav/streamroute/errors"
)

// Well-known field names
const (
	FieldID        = "_id"
	FieldMessage   = "message"
	FieldSource    = "source"
	FieldTimestamp = "timestamp"
	FieldStreams   = "streams"
)

// validKeyChars matches acceptable field names
var validKeyChars = regexp.MustCompile(`^[\w\.\-]*$`)

// reservedFields cannot be set through AddField. A subset of them
// (settableFields) is writable through the dedicated accessors or AddField.
var reservedFields = map[string]struct{}{
	// Index-level fields.
	FieldID:   {},
	"_ttl":    {},
	"_source": {},
	"_all":    {},
	"_index":  {},
	"_type":   {},
	"_score":  {},

	// Our reserved fields.
	FieldMessage:         {},
	FieldSource:          {},
	FieldTimestamp:       {},
	"sr_source_node":     {},
	"sr_source_input":    {},
	"sr_remote_ip":       {},
	"sr_remote_port":     {},
	"sr_remote_hostname": {},
}

// settableFields are reserved names that AddField still accepts
var settableFields = map[string]struct{}{
	FieldMessage:         {},
	FieldSource:          {},
	FieldTimestamp:       {},
	"sr_source_node":     {},
	"sr_source_input":    {},
	"sr_remote_ip":       {},
	"sr_remote_port":     {},
	"sr_remote_hostname": {},
}

// requiredFields must be present and non-empty for a complete message
var requiredFields = []string{FieldID, FieldMessage}

// journalOffsetUnset marks a message that was never read from a journal
const journalOffsetUnset = int64(-1)

// Message is one log record. Field values are string, int64, float64 or
// time.Time. The recordings buffer and the mutators are not safe for
// concurrent use; a message belongs to exactly one pipeline worker until
// routing completes.
type Message struct {
	fields map[string]any

	streamIDs     []string
	sourceInputID string
	filterOut     bool
	journalOffset int64

	recordings []Recording
	strategy   RecordingStrategy
}

// New creates a message with a generated id and the three mandatory fields.
// The timestamp is normalized to UTC.
func New(body, source string, timestamp time.Time) *Message {
	m := &Message{
		fields:        make(map[string]any, 8),
		journalOffset: journalOffsetUnset,
		strategy:      NeverRecord{},
	}
	// Mandatory fields go in directly; AddField would reject _id.
	m.fields[FieldID] = uuid.New().String()
	m.fields[FieldMessage] = body
	m.fields[FieldSource] = source
	m.fields[FieldTimestamp] = timestamp.UTC()
	return m
}

// NewFromFields creates a message from a pre-populated field map. The _id
// field must be present; remaining fields pass through AddField validation.
func NewFromFields(fields map[string]any) (*Message, error) {
	id, ok := fields[FieldID].(string)
	if !ok || id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Message", "NewFromFields",
			"message id cannot be empty")
	}

	m := &Message{
		fields:        make(map[string]any, len(fields)),
		journalOffset: journalOffsetUnset,
		strategy:      NeverRecord{},
	}
	m.fields[FieldID] = id
	for key, value := range fields {
		if key == FieldID {
			continue
		}
		m.AddField(key, value)
	}
	return m, nil
}

// ValidKey reports whether a field name is acceptable
func ValidKey(key string) bool {
	return validKeyChars.MatchString(key)
}

// AddField sets a field on the message. Reserved non-settable names and
// invalid names are silently ignored. String values are trimmed and dropped
// when empty. Nil values are dropped.
func (m *Message) AddField(key string, value any) {
	key = strings.TrimSpace(key)
	if _, reserved := reservedFields[key]; reserved {
		if _, settable := settableFields[key]; !settable {
			return
		}
	}
	if !ValidKey(key) {
		return
	}

	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			m.fields[key] = trimmed
		}
	case nil:
		// dropped
	default:
		m.fields[key] = value
	}
}

// AddFields sets every entry of the map through AddField
func (m *Message) AddFields(fields map[string]any) {
	for key, value := range fields {
		m.AddField(key, value)
	}
}

// RemoveField deletes a field unless it is reserved
func (m *Message) RemoveField(key string) {
	if _, reserved := reservedFields[key]; reserved {
		return
	}
	delete(m.fields, key)
}

// ID returns the unique message identifier
func (m *Message) ID() string {
	id, _ := m.fields[FieldID].(string)
	return id
}

// Body returns the message body field
func (m *Message) Body() string {
	body, _ := m.fields[FieldMessage].(string)
	return body
}

// Source returns the source field
func (m *Message) Source() string {
	source, _ := m.fields[FieldSource].(string)
	return source
}

// SetSource replaces the source field
func (m *Message) SetSource(source string) {
	m.fields[FieldSource] = source
}

// Timestamp returns the message timestamp in UTC
func (m *Message) Timestamp() time.Time {
	ts, _ := m.fields[FieldTimestamp].(time.Time)
	return ts.UTC()
}

// GetField returns a field value, or nil when absent
func (m *Message) GetField(key string) any {
	return m.fields[key]
}

// HasField reports whether a field exists on the message
func (m *Message) HasField(key string) bool {
	_, ok := m.fields[key]
	return ok
}

// Fields returns a copy of the field map
func (m *Message) Fields() map[string]any {
	out := make(map[string]any, len(m.fields))
	for k, v := range m.fields {
		out[k] = v
	}
	return out
}

// FieldNames returns the set of field names present on the message
func (m *Message) FieldNames() map[string]struct{} {
	names := make(map[string]struct{}, len(m.fields))
	for k := range m.fields {
		names[k] = struct{}{}
	}
	return names
}

// FieldCount returns the number of fields on the message
func (m *Message) FieldCount() int {
	return len(m.fields)
}

// IsComplete reports whether all required fields are present and non-empty
func (m *Message) IsComplete() bool {
	for _, key := range requiredFields {
		value, ok := m.fields[key]
		if !ok {
			return false
		}
		if s, isString := value.(string); isString && s == "" {
			return false
		}
	}
	return true
}

// ValidationErrors describes which required fields are missing or empty
func (m *Message) ValidationErrors() string {
	var sb strings.Builder
	for _, key := range requiredFields {
		value, ok := m.fields[key]
		if !ok {
			sb.WriteString(key + " is missing, ")
		} else if s, isString := value.(string); isString && s == "" {
			sb.WriteString(key + " is empty, ")
		}
	}
	return sb.String()
}

// StreamIDs returns the stream ids assigned to the message by routing
func (m *Message) StreamIDs() []string {
	return m.streamIDs
}

// SetStreamIDs records the routing result on the message
func (m *Message) SetStreamIDs(ids []string) {
	m.streamIDs = append([]string(nil), ids...)
}

// FilterOut reports whether a pipeline stage discarded the message
func (m *Message) FilterOut() bool {
	return m.filterOut
}

// SetFilterOut marks the message as discarded
func (m *Message) SetFilterOut(filterOut bool) {
	m.filterOut = filterOut
}

// SourceInputID returns the id of the input that produced this message
func (m *Message) SourceInputID() string {
	return m.sourceInputID
}

// SetSourceInputID records the producing input
func (m *Message) SetSourceInputID(id string) {
	m.sourceInputID = id
}

// JournalOffset returns the offset the message had in the journal it was read
// from, or a negative value when no journal was involved.
func (m *Message) JournalOffset() int64 {
	return m.journalOffset
}

// SetJournalOffset records the journal offset
func (m *Message) SetJournalOffset(offset int64) {
	m.journalOffset = offset
}

// String renders a compact single-line summary of the message
func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteString("source: ")
	sb.WriteString(m.Source())
	sb.WriteString(" | message: ")

	body := strings.NewReplacer("\n", "", "\t", "").Replace(m.Body())
	if len(body) > 225 {
		sb.WriteString(body[:225])
		sb.WriteString(" (...)")
	} else {
		sb.WriteString(body)
	}

	sb.WriteString(" { ")
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		if k == FieldSource || k == FieldMessage {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(" | ")
		}
		fmt.Fprintf(&sb, "%s: %v", k, m.fields[k])
	}
	sb.WriteString(" }")

	return sb.String()
}
