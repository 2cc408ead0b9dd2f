// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and the run status store.
package sinks
