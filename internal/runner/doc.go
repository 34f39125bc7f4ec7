// Package runner coordinates the concurrent probing engine: one goroutine
// per worker repeatedly drives streaming probes under a cancellation or
// duration budget, a shared aggregation context collects per-worker running
// state and finalized request samples, and a background aggregator merges
// them into a once-per-second snapshot time series.
//
// Exactly two structures are shared across goroutines, each behind its own
// lock: the append-only result log and the aggregation context. No lock is
// ever held across network I/O.
package runner
