package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the engine-wide and per-stream routing metrics
type Metrics struct {
	// Engine lifecycle
	EngineBuilds        prometheus.Counter
	EngineBuildDuration prometheus.Histogram
	EngineRuleCount     prometheus.Gauge
	EngineStreamCount   prometheus.Gauge
	StreamsExcluded     prometheus.Counter
	EngineSwapsSkipped  prometheus.Counter

	// Per-stream routing
	IncomingMessages  *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	Exceptions        *prometheus.CounterVec
	FaultCount        *prometheus.GaugeVec
	Quarantined       *prometheus.GaugeVec
}

// NewMetrics creates the core metric set
func NewMetrics() *Metrics {
	return &Metrics{
		EngineBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamroute",
			Subsystem: "engine",
			Name:      "builds_total",
			Help:      "Total number of engine rebuilds that published a new engine",
		}),

		EngineBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamroute",
			Subsystem: "engine",
			Name:      "build_duration_seconds",
			Help:      "Time spent building a new engine from the catalogue",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		EngineRuleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamroute",
			Subsystem: "engine",
			Name:      "current_rule_count",
			Help:      "Number of compiled rules in the current engine",
		}),

		EngineStreamCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamroute",
			Subsystem: "engine",
			Name:      "current_stream_count",
			Help:      "Number of streams eligible for matching in the current engine",
		}),

		StreamsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamroute",
			Subsystem: "engine",
			Name:      "streams_excluded_total",
			Help:      "Streams excluded fail-closed during engine builds",
		}),

		EngineSwapsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamroute",
			Subsystem: "engine",
			Name:      "swaps_skipped_total",
			Help:      "Engine swaps skipped because the catalogue fingerprint was unchanged",
		}),

		IncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamroute",
			Subsystem: "stream",
			Name:      "incoming_messages_total",
			Help:      "Messages routed into each stream",
		}, []string{"stream_id"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamroute",
			Subsystem: "stream",
			Name:      "execution_duration_seconds",
			Help:      "Time spent evaluating each stream's rules per message",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"stream_id"}),

		Exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamroute",
			Subsystem: "stream",
			Name:      "exceptions_total",
			Help:      "Matcher failures per stream",
		}, []string{"stream_id"}),

		FaultCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamroute",
			Subsystem: "stream",
			Name:      "faults",
			Help:      "Current fault counter per stream",
		}, []string{"stream_id"}),

		Quarantined: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamroute",
			Subsystem: "stream",
			Name:      "quarantined",
			Help:      "Whether a stream is quarantined (0 or 1)",
		}, []string{"stream_id"}),
	}
}

// register registers every core metric with the given registry
func (m *Metrics) register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.EngineBuilds,
		m.EngineBuildDuration,
		m.EngineRuleCount,
		m.EngineStreamCount,
		m.StreamsExcluded,
		m.EngineSwapsSkipped,
		m.IncomingMessages,
		m.ExecutionDuration,
		m.Exceptions,
		m.FaultCount,
		m.Quarantined,
	)
}

// RecordEngineBuild records one completed engine build
func (m *Metrics) RecordEngineBuild(duration time.Duration, ruleCount, streamCount, excluded int) {
	m.EngineBuilds.Inc()
	m.EngineBuildDuration.Observe(duration.Seconds())
	m.EngineRuleCount.Set(float64(ruleCount))
	m.EngineStreamCount.Set(float64(streamCount))
	if excluded > 0 {
		m.StreamsExcluded.Add(float64(excluded))
	}
}

// RecordIncoming marks one message routed into a stream
func (m *Metrics) RecordIncoming(streamID string) {
	m.IncomingMessages.WithLabelValues(streamID).Inc()
}

// RecordExecution records the time spent evaluating one stream's rules
func (m *Metrics) RecordExecution(streamID string, duration time.Duration) {
	m.ExecutionDuration.WithLabelValues(streamID).Observe(duration.Seconds())
}

// RecordException marks one matcher failure for a stream
func (m *Metrics) RecordException(streamID string) {
	m.Exceptions.WithLabelValues(streamID).Inc()
}

// RecordFaultCount updates the fault gauge for a stream
func (m *Metrics) RecordFaultCount(streamID string, count int) {
	m.FaultCount.WithLabelValues(streamID).Set(float64(count))
}

// RecordQuarantine updates the quarantine gauge for a stream
func (m *Metrics) RecordQuarantine(streamID string, quarantined bool) {
	value := 0.0
	if quarantined {
		value = 1.0
	}
	m.Quarantined.WithLabelValues(streamID).Set(value)
}
