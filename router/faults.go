package router

import (
	"log/slog"
	"sync"

	"github.com/kadledav/streamroute/metric"
)

// FaultManager counts per-stream evaluation faults and quarantines a stream
// once its counter crosses the configured threshold. Quarantine never
// removes a stream mid-evaluation: the set is only consulted by the engine
// updater, so exclusion takes effect at the next rebuild and the atomicity
// of the engine swap is preserved.
type FaultManager struct {
	maxFaults int
	metrics   *metric.Metrics
	logger    *slog.Logger

	mu          sync.Mutex
	counters    map[string]int
	quarantined map[string]struct{}
}

// NewFaultManager creates a fault manager with the given threshold
func NewFaultManager(maxFaults int, metrics *metric.Metrics, logger *slog.Logger) *FaultManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &FaultManager{
		maxFaults:   maxFaults,
		metrics:     metrics,
		logger:      logger.With("component", "fault-manager"),
		counters:    make(map[string]int),
		quarantined: make(map[string]struct{}),
	}
}

// RegisterFailure increments a stream's fault counter and quarantines the
// stream when the threshold is crossed. The counter resets on quarantine.
func (fm *FaultManager) RegisterFailure(streamID string) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.counters[streamID]++
	count := fm.counters[streamID]
	if fm.metrics != nil {
		fm.metrics.RecordFaultCount(streamID, count)
	}

	if count < fm.maxFaults {
		return
	}
	if _, already := fm.quarantined[streamID]; already {
		return
	}

	fm.quarantined[streamID] = struct{}{}
	fm.counters[streamID] = 0
	if fm.metrics != nil {
		fm.metrics.RecordQuarantine(streamID, true)
		fm.metrics.RecordFaultCount(streamID, 0)
	}
	fm.logger.Warn("Stream quarantined after repeated faults",
		"stream_id", streamID,
		"max_faults", fm.maxFaults)
}

// IsQuarantined reports whether a stream is currently quarantined
func (fm *FaultManager) IsQuarantined(streamID string) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	_, ok := fm.quarantined[streamID]
	return ok
}

// ClearQuarantine administratively lifts a stream's quarantine and resets
// its fault counter. The stream re-enters the engine on the next rebuild.
func (fm *FaultManager) ClearQuarantine(streamID string) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	delete(fm.quarantined, streamID)
	fm.counters[streamID] = 0
	if fm.metrics != nil {
		fm.metrics.RecordQuarantine(streamID, false)
		fm.metrics.RecordFaultCount(streamID, 0)
	}
	fm.logger.Info("Stream quarantine cleared", "stream_id", streamID)
}

// QuarantinedIDs returns the currently quarantined stream ids
func (fm *FaultManager) QuarantinedIDs() []string {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	ids := make([]string, 0, len(fm.quarantined))
	for id := range fm.quarantined {
		ids = append(ids, id)
	}
	return ids
}

// FaultCount returns a stream's current fault counter
func (fm *FaultManager) FaultCount(streamID string) int {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.counters[streamID]
}
