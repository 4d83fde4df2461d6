package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kadledav/streamroute/config"
	"github.com/kadledav/streamroute/errors"
	"github.com/kadledav/streamroute/pkg/retry"
	"github.com/kadledav/streamroute/types"
)

// Key layout inside the catalogue bucket:
//
//	streams.<streamID>          -> types.Stream JSON (rules not embedded)
//	rules.<streamID>.<ruleID>   -> types.StreamRule JSON
const (
	streamKeyPrefix = "streams."
	ruleKeyPrefix   = "rules."
)

// KV is a catalogue backend on a NATS JetStream key-value bucket. Loads are
// retried with exponential backoff so a briefly unreachable server doesn't
// cost the updater a rebuild cycle. Stream order is lexicographic by stream
// id, which keeps match output deterministic across nodes.
type KV struct {
	bucket jetstream.KeyValue
	retry  retry.Config
	logger *slog.Logger
}

// NewKV wraps an existing key-value bucket
func NewKV(bucket jetstream.KeyValue, logger *slog.Logger) *KV {
	if logger == nil {
		logger = slog.Default()
	}
	return &KV{
		bucket: bucket,
		retry:  retry.DefaultConfig(),
		logger: logger.With("component", "kv-catalogue"),
	}
}

// OpenKV connects to NATS, ensures the catalogue bucket exists, and returns
// the backend along with the connection for lifecycle management.
func OpenKV(ctx context.Context, natsCfg config.NATSConfig, bucketName string, logger *slog.Logger) (*KV, *nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsCfg.MaxReconnects),
	}
	if natsCfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(natsCfg.ReconnectWait.Std()))
	}
	if natsCfg.Username != "" {
		opts = append(opts, nats.UserInfo(natsCfg.Username, natsCfg.Password))
	}
	if natsCfg.Token != "" {
		opts = append(opts, nats.Token(natsCfg.Token))
	}

	nc, err := nats.Connect(strings.Join(natsCfg.URLs, ","), opts...)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "KV", "OpenKV", "connect to NATS")
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, errors.WrapFatal(err, "KV", "OpenKV", "create JetStream context")
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "streamroute stream and rule catalogue",
		History:     5,
	})
	if err != nil {
		nc.Close()
		return nil, nil, errors.WrapTransient(err, "KV", "OpenKV", "create catalogue bucket")
	}

	return NewKV(bucket, logger), nc, nil
}

// LoadAllEnabledStreams implements Catalogue
func (kv *KV) LoadAllEnabledStreams(ctx context.Context) ([]*types.Stream, error) {
	var streams []*types.Stream

	err := retry.Do(ctx, kv.retry, func() error {
		keys, err := kv.listKeys(ctx, streamKeyPrefix)
		if err != nil {
			return err
		}

		loaded := make([]*types.Stream, 0, len(keys))
		for _, key := range keys {
			entry, err := kv.bucket.Get(ctx, key)
			if err != nil {
				if err == jetstream.ErrKeyNotFound {
					// Deleted between list and get; skip.
					continue
				}
				return err
			}

			var stream types.Stream
			if err := json.Unmarshal(entry.Value(), &stream); err != nil {
				// A corrupt entry must not take down the whole load.
				kv.logger.Warn("Skipping undecodable stream entry", "key", key, "error", err)
				continue
			}
			if stream.Disabled {
				continue
			}
			loaded = append(loaded, &stream)
		}

		sort.Slice(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })
		streams = loaded
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrCatalogueUnavailable, "KV", "LoadAllEnabledStreams", err.Error())
	}
	return streams, nil
}

// LoadRulesFor implements Catalogue
func (kv *KV) LoadRulesFor(ctx context.Context, streamID string) ([]*types.StreamRule, error) {
	prefix := ruleKeyPrefix + streamID + "."
	var rules []*types.StreamRule

	err := retry.Do(ctx, kv.retry, func() error {
		keys, err := kv.listKeys(ctx, prefix)
		if err != nil {
			return err
		}

		loaded := make([]*types.StreamRule, 0, len(keys))
		for _, key := range keys {
			entry, err := kv.bucket.Get(ctx, key)
			if err != nil {
				if err == jetstream.ErrKeyNotFound {
					continue
				}
				return err
			}

			var rule types.StreamRule
			if err := json.Unmarshal(entry.Value(), &rule); err != nil {
				kv.logger.Warn("Skipping undecodable rule entry", "key", key, "error", err)
				continue
			}
			loaded = append(loaded, &rule)
		}

		sort.Slice(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })
		rules = loaded
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(errors.ErrCatalogueUnavailable, "KV", "LoadRulesFor", err.Error())
	}
	return rules, nil
}

// UpsertStream implements Writer
func (kv *KV) UpsertStream(ctx context.Context, stream *types.Stream) error {
	if err := stream.Validate(); err != nil {
		return err
	}

	// Rules are stored under their own keys; the stream entry stays flat.
	clone := *stream
	clone.Rules = nil

	data, err := json.Marshal(&clone)
	if err != nil {
		return errors.WrapInvalid(err, "KV", "UpsertStream", "marshal stream")
	}
	if _, err := kv.bucket.Put(ctx, streamKeyPrefix+stream.ID, data); err != nil {
		return errors.WrapTransient(err, "KV", "UpsertStream", "put stream entry")
	}

	for _, rule := range stream.Rules {
		rc := *rule
		rc.StreamID = stream.ID
		if err := kv.UpsertRule(ctx, &rc); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStream implements Writer. The stream's rules are deleted as well.
func (kv *KV) DeleteStream(ctx context.Context, streamID string) error {
	if err := kv.bucket.Delete(ctx, streamKeyPrefix+streamID); err != nil {
		return errors.WrapTransient(err, "KV", "DeleteStream", "delete stream entry")
	}

	keys, err := kv.listKeys(ctx, ruleKeyPrefix+streamID+".")
	if err != nil {
		return errors.WrapTransient(err, "KV", "DeleteStream", "list rule entries")
	}
	for _, key := range keys {
		if err := kv.bucket.Delete(ctx, key); err != nil {
			kv.logger.Warn("Failed to delete rule entry", "key", key, "error", err)
		}
	}
	return nil
}

// UpsertRule implements Writer
func (kv *KV) UpsertRule(ctx context.Context, rule *types.StreamRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.StreamID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "KV", "UpsertRule", "rule stream id cannot be empty")
	}

	data, err := json.Marshal(rule)
	if err != nil {
		return errors.WrapInvalid(err, "KV", "UpsertRule", "marshal rule")
	}
	key := fmt.Sprintf("%s%s.%s", ruleKeyPrefix, rule.StreamID, rule.ID)
	if _, err := kv.bucket.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "KV", "UpsertRule", "put rule entry")
	}
	return nil
}

// DeleteRule implements Writer
func (kv *KV) DeleteRule(ctx context.Context, streamID, ruleID string) error {
	key := fmt.Sprintf("%s%s.%s", ruleKeyPrefix, streamID, ruleID)
	if err := kv.bucket.Delete(ctx, key); err != nil {
		return errors.WrapTransient(err, "KV", "DeleteRule", "delete rule entry")
	}
	return nil
}

// listKeys returns all bucket keys with the given prefix
func (kv *KV) listKeys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
