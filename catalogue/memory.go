package catalogue

import (
	"context"
	"sync"

	"github.com/kadledav/streamroute/errors"
	"github.com/kadledav/streamroute/types"
)

// Memory is an in-process catalogue backend. It preserves stream insertion
// order, which the engine relies on for deterministic match output. Used by
// tests and single-node demo deployments.
type Memory struct {
	mu      sync.RWMutex
	order   []string
	streams map[string]*types.Stream
	rules   map[string][]*types.StreamRule // streamID -> rules in insertion order
}

// NewMemory creates an empty in-memory catalogue
func NewMemory() *Memory {
	return &Memory{
		streams: make(map[string]*types.Stream),
		rules:   make(map[string][]*types.StreamRule),
	}
}

// LoadAllEnabledStreams implements Catalogue
func (m *Memory) LoadAllEnabledStreams(_ context.Context) ([]*types.Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Stream, 0, len(m.order))
	for _, id := range m.order {
		stream := m.streams[id]
		if stream.Disabled {
			continue
		}
		clone := *stream
		clone.Rules = nil
		out = append(out, &clone)
	}
	return out, nil
}

// LoadRulesFor implements Catalogue
func (m *Memory) LoadRulesFor(_ context.Context, streamID string) ([]*types.StreamRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.streams[streamID]; !ok {
		return nil, errors.WrapInvalid(errors.ErrStreamNotFound, "Memory", "LoadRulesFor", streamID)
	}

	rules := m.rules[streamID]
	out := make([]*types.StreamRule, len(rules))
	for i, rule := range rules {
		clone := *rule
		out[i] = &clone
	}
	return out, nil
}

// UpsertStream implements Writer. Rules attached to the stream value are
// installed as the stream's complete rule set.
func (m *Memory) UpsertStream(_ context.Context, stream *types.Stream) error {
	if err := stream.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.streams[stream.ID]; !exists {
		m.order = append(m.order, stream.ID)
	}

	clone := *stream
	clone.Rules = nil
	m.streams[stream.ID] = &clone

	if stream.Rules != nil {
		rules := make([]*types.StreamRule, len(stream.Rules))
		for i, rule := range stream.Rules {
			rc := *rule
			rc.StreamID = stream.ID
			rules[i] = &rc
		}
		m.rules[stream.ID] = rules
	}
	return nil
}

// DeleteStream implements Writer
func (m *Memory) DeleteStream(_ context.Context, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[streamID]; !ok {
		return errors.WrapInvalid(errors.ErrStreamNotFound, "Memory", "DeleteStream", streamID)
	}

	delete(m.streams, streamID)
	delete(m.rules, streamID)
	for i, id := range m.order {
		if id == streamID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpsertRule implements Writer
func (m *Memory) UpsertRule(_ context.Context, rule *types.StreamRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[rule.StreamID]; !ok {
		return errors.WrapInvalid(errors.ErrStreamNotFound, "Memory", "UpsertRule", rule.StreamID)
	}

	clone := *rule
	rules := m.rules[rule.StreamID]
	for i, existing := range rules {
		if existing.ID == rule.ID {
			rules[i] = &clone
			return nil
		}
	}
	m.rules[rule.StreamID] = append(rules, &clone)
	return nil
}

// DeleteRule implements Writer
func (m *Memory) DeleteRule(_ context.Context, streamID, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := m.rules[streamID]
	for i, rule := range rules {
		if rule.ID == ruleID {
			m.rules[streamID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return errors.WrapInvalid(errors.ErrRuleNotFound, "Memory", "DeleteRule", ruleID)
}

// SetDisabled flips a stream's disabled flag in place
func (m *Memory) SetDisabled(_ context.Context, streamID string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stream, ok := m.streams[streamID]
	if !ok {
		return errors.WrapInvalid(errors.ErrStreamNotFound, "Memory", "SetDisabled", streamID)
	}
	stream.Disabled = disabled
	return nil
}
