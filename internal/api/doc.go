// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access while a crawl runs. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a live snapshot of the crawl engine.
//   - GET /v1/runs/{run_id} for the recorded status of a run.
package api
