// Package progress carries crawl progress events from the engine to pluggable
// sinks. Emit never blocks the dispatch loop: events are buffered, batched on a
// background goroutine and fanned out to sinks such as structured logs,
// Prometheus collectors or the run status store.
package progress
