// Package api implements the entropyd HTTP API.
//
// New(store, alerts) returns an http.Handler that serves:
//
//	GET  /api/v1/health        overall state, per-state counts, entropy statistics
//	GET  /api/v1/sources       all live results ([]SourceResponse)
//	GET  /api/v1/sources/{id}  single result with diagnostics; 404 if unknown or stale
//	GET  /api/v1/alerts        firing and recently resolved alerts
//	POST /api/v1/compute       ad-hoc entropy of a posted count bag
//	GET  /metrics              results as Prometheus gauges (text exposition)
//
// JSON endpoints answer 405 for the wrong method and use the error body
// {"error": "..."}. No external HTTP framework is used.
package api
