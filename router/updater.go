package router

import (
	"context"
	"time"

	"github.com/kadledav/streamroute/engine"
	"github.com/kadledav/streamroute/errors"
	"github.com/kadledav/streamroute/types"
)

// run is the engine updater loop. Each tick loads the catalogue, builds a
// fresh engine, and publishes it with a single atomic store unless its
// fingerprint equals the current engine's. A failed load
// keeps the previous engine in place; the updater never leaves the router
// without a usable snapshot.
func (r *Router) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.EngineRebuildPeriod.Std())
	defer ticker.Stop()

	for {
		select {
		case <-r.shutdown:
			r.logger.Info("Engine updater shutdown requested")
			return
		case <-ctx.Done():
			r.logger.Info("Engine updater context cancelled", "error", ctx.Err())
			return
		case <-ticker.C:
			if err := r.rebuild(ctx); err != nil {
				if r.logLimiter.Allow() {
					r.logger.Error("Engine rebuild failed, retaining current engine", "error", err)
				}
			}
		}
	}
}

// rebuild loads the catalogue snapshot, compiles it, and swaps the engine
// pointer when the content fingerprint changed
func (r *Router) rebuild(ctx context.Context) error {
	streams, err := r.loadSnapshot(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	next := engine.NewWithLogger(streams, r.logger)
	buildDuration := time.Since(start)

	current := r.engine.Load()
	if current != nil && current.Fingerprint() == next.Fingerprint() {
		if r.metrics != nil {
			r.metrics.EngineSwapsSkipped.Inc()
		}
		return nil
	}

	r.engine.Store(next)

	if r.metrics != nil {
		r.metrics.RecordEngineBuild(buildDuration,
			next.RuleCount(), next.StreamCount(), next.ExcludedStreamCount())
	}
	r.logger.Debug("Published new engine",
		"streams", next.StreamCount(),
		"rules", next.RuleCount(),
		"excluded", next.ExcludedStreamCount(),
		"build_duration", buildDuration)
	return nil
}

// loadSnapshot pulls enabled streams and their rules from the catalogue,
// dropping quarantined streams
func (r *Router) loadSnapshot(ctx context.Context) ([]*types.Stream, error) {
	streams, err := r.catalogue.LoadAllEnabledStreams(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Router", "loadSnapshot", "load enabled streams")
	}

	snapshot := make([]*types.Stream, 0, len(streams))
	for _, stream := range streams {
		if r.faults.IsQuarantined(stream.ID) {
			continue
		}

		rules, err := r.catalogue.LoadRulesFor(ctx, stream.ID)
		if err != nil {
			return nil, errors.Wrap(err, "Router", "loadSnapshot", "load rules for "+stream.ID)
		}
		stream.Rules = rules
		snapshot = append(snapshot, stream)
	}
	return snapshot, nil
}
