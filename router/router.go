// Package router provides the stable entry point for routing messages to
// streams.
//
// The Router holds the current compiled engine behind an atomic pointer,
// wraps rule evaluations in a timeout harness backed by a dedicated worker
// pool, accounts per-stream faults, and runs the background updater that
// rebuilds the engine from the catalogue.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kadledav/streamroute/catalogue"
	"github.com/kadledav/streamroute/config"
	"github.com/kadledav/streamroute/engine"
	"github.com/kadledav/streamroute/errors"
	"github.com/kadledav/streamroute/message"
	"github.com/kadledav/streamroute/metric"
	"github.com/kadledav/streamroute/pkg/worker"
	"github.com/kadledav/streamroute/types"
)

// errTimeout marks a rule evaluation that exceeded the processing timeout
var errTimeout = errors.ErrMatcherTimeout

// Router routes messages to the streams whose rules they match. Safe for
// concurrent use from any number of pipeline workers; the only shared
// mutable state is the current-engine pointer.
type Router struct {
	cfg       config.RouterConfig
	catalogue catalogue.Catalogue
	faults    *FaultManager
	metrics   *metric.Metrics
	logger    *slog.Logger

	engine atomic.Pointer[engine.Engine]
	pool   *worker.Pool[*evalTask]

	// Throttles warning output on the hot path; a misbehaving rule set
	// would otherwise log per message.
	logLimiter *rate.Limiter

	recording message.RecordingStrategy

	mu        sync.Mutex
	shutdown  chan struct{}
	done      chan struct{}
	startTime time.Time
}

// New creates a router over the given catalogue. The metrics registry is
// optional; without it the router runs unmetered.
func New(cfg config.RouterConfig, cat catalogue.Catalogue, registry *metric.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream-router")

	var metrics *metric.Metrics
	if registry != nil {
		metrics = registry.Core
	}

	r := &Router{
		cfg:        cfg,
		catalogue:  cat,
		metrics:    metrics,
		logger:     logger,
		logLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		recording:  message.ParseRecordingStrategy(cfg.RecordingStrategy),
	}
	r.faults = NewFaultManager(cfg.StreamProcessingMaxFaults, metrics, logger)

	poolOpts := []worker.Option[*evalTask]{}
	if registry != nil {
		poolOpts = append(poolOpts, worker.WithMetrics[*evalTask](registry, "streamroute_evaluation"))
	}
	r.pool = worker.NewPool(cfg.WorkerCount, cfg.QueueSize, evaluateTask, poolOpts...)

	// Start with an empty engine so Route is callable before Start.
	r.engine.Store(engine.NewWithLogger(nil, logger))

	return r
}

// Faults exposes the fault manager for administrative tooling
func (r *Router) Faults() *FaultManager {
	return r.faults
}

// Engine returns the current compiled engine snapshot
func (r *Router) Engine() *engine.Engine {
	return r.engine.Load()
}

// Start builds the first engine, starts the evaluation pool, and launches
// the periodic updater.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Router", "Start", "check router state")
	}

	if err := r.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Router", "Start", "start evaluation pool")
	}

	// Initial build runs synchronously so the router never serves an empty
	// engine when the catalogue is reachable.
	if err := r.rebuild(ctx); err != nil {
		r.logger.Warn("Initial engine build failed, starting with empty engine", "error", err)
	}

	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})
	r.startTime = time.Now()

	go r.run(ctx)

	r.logger.Info("Stream router started",
		"rebuild_period", r.cfg.EngineRebuildPeriod,
		"processing_timeout", r.cfg.StreamProcessingTimeout,
		"max_faults", r.cfg.StreamProcessingMaxFaults)
	return nil
}

// Stop cancels the updater schedule and drains in-flight evaluations
func (r *Router) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if r.shutdown == nil {
		r.mu.Unlock()
		return nil // Already stopped
	}
	close(r.shutdown)
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-time.After(timeout):
		r.logger.Warn("Updater shutdown timeout", "timeout", timeout)
	}

	if err := r.pool.Stop(timeout); err != nil {
		r.logger.Warn("Evaluation pool shutdown timeout", "error", err)
	}

	r.mu.Lock()
	r.shutdown = nil
	r.done = nil
	r.mu.Unlock()

	r.logger.Info("Stream router stopped")
	return nil
}

// Route returns the streams whose entire rule set matches the message, in
// catalogue order. Route never fails: every runtime error becomes a
// per-stream non-match and a fault. The engine pointer is read exactly once
// per call, so a concurrent rebuild is either fully visible or not at all.
func (r *Router) Route(msg *message.Message) []*types.Stream {
	eng := r.engine.Load()

	msg.SetRecordingStrategy(r.recording)
	start := time.Now()

	counts := make(map[string]int)
	matches := eng.MatchWithEvaluator(msg, r.harnessEvaluator(counts))

	elapsed := time.Since(start)
	msg.RecordTiming("stream-routing", elapsed)
	msg.RecordCounter("streams-evaluated", eng.StreamCount())
	for streamID, evaluated := range counts {
		msg.RecordCounter(fmt.Sprintf("streamrules-evaluated-%s", streamID), evaluated)
	}

	if r.metrics != nil {
		for _, stream := range matches {
			r.metrics.RecordIncoming(stream.ID)
		}
	}

	ids := make([]string, len(matches))
	for i, stream := range matches {
		ids[i] = stream.ID
	}
	msg.SetStreamIDs(ids)

	return matches
}

// TestMatch runs the diagnostic per-rule evaluation against the current
// engine
func (r *Router) TestMatch(msg *message.Message) []*engine.StreamTestResult {
	return r.engine.Load().TestMatch(msg)
}
