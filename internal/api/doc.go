// Package api hosts the HTTP server, middleware, and handlers used by the
// browser extension. Routes:
//   - GET /health for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/summarize to summarize and archive one tab.
//   - GET /api/stats for the aggregate counters.
package api
