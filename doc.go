// Package streamroute is a stream-routing engine for log-ingestion
// pipelines.
//
// Each inbound log record (a message: an unordered bag of named fields plus
// a mandatory id, body, source, and timestamp) is routed against a catalogue
// of streams. A stream is a subscription defined by a conjunction of stream
// rules; a message is routed to a stream when every rule of that stream
// matches.
//
// # Architecture
//
// The hot path evaluates messages against an immutable compiled engine:
//
//	catalogue --> updater --> (atomic swap) --> engine <-- router <-- message
//
//   - catalogue: owns stream and rule definitions. Backends: in-memory and
//     NATS JetStream KV.
//   - engine: an immutable snapshot indexing all enabled streams' rules by
//     field name and rule kind, evaluated in a single pass per message.
//   - router: the stable entry point. Holds the current engine behind an
//     atomic pointer, wraps rule evaluations in a timeout harness on a
//     dedicated worker pool, and accounts per-stream faults. A stream that
//     keeps faulting is quarantined and dropped at the next rebuild.
//   - updater: rebuilds the engine from the catalogue on a fixed period and
//     publishes it with a single atomic store, skipping the swap when the
//     catalogue fingerprint is unchanged.
//
// Rule kinds: presence, exact, greater, smaller, and regex, each with an
// optional inversion flag. Matchers are pure and safe for concurrent use.
//
// # Packages
//
//   - message: the routed log record type
//   - types: Stream, StreamRule, RuleKind
//   - matcher: one matcher per rule kind, regex compile cache
//   - engine: compiled engine build and evaluation
//   - router: façade, fault manager, timeout harness, updater
//   - catalogue: catalogue contract and backends
//   - metric: Prometheus registry wrapper and core metrics
//   - config: configuration loading and validation
//
// The cmd/streamrouted daemon wires everything together and exposes
// /metrics and /healthz endpoints.
package streamroute
