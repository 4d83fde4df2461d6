// Package catalogue defines the stream/rule catalogue contract and its
// backends.
//
// The catalogue owns stream and rule definitions; the routing engine only
// ever reads snapshots from it. Both operations may fail — on failure the
// engine updater logs and keeps the previous engine.
package catalogue

import (
	"context"

	"github.com/kadledav/streamroute/types"
)

// Catalogue is the read contract the engine updater builds from
type Catalogue interface {
	// LoadAllEnabledStreams returns every enabled stream, without rules
	// attached, in a stable order (the memory backend keeps insertion
	// order; the KV backend sorts by stream id).
	LoadAllEnabledStreams(ctx context.Context) ([]*types.Stream, error)

	// LoadRulesFor returns the rules declared on one stream.
	LoadRulesFor(ctx context.Context, streamID string) ([]*types.StreamRule, error)
}

// Writer is the mutation contract implemented by catalogue backends.
// Routing itself never writes; administrative tooling does.
type Writer interface {
	UpsertStream(ctx context.Context, stream *types.Stream) error
	DeleteStream(ctx context.Context, streamID string) error
	UpsertRule(ctx context.Context, rule *types.StreamRule) error
	DeleteRule(ctx context.Context, streamID, ruleID string) error
}
