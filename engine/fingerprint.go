package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/kadledav/streamroute/types"
)

// fingerprint computes a stable content hash over a catalogue snapshot.
// The hash covers every stream and rule, sorted, so it is independent of
// load order and of which streams later compile successfully.
func fingerprint(streams []*types.Stream) string {
	lines := make([]string, 0, len(streams))
	for _, stream := range streams {
		lines = append(lines, fmt.Sprintf("stream|%s|%s|%t|%t",
			stream.ID, stream.Title, stream.Disabled, stream.Paused))
		for _, rule := range stream.Rules {
			lines = append(lines, fmt.Sprintf("rule|%s|%s|%s|%s|%s|%t",
				rule.StreamID, rule.ID, rule.Kind, rule.Field, rule.Value, rule.Inverted))
		}
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
