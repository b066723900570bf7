// Package api hosts the HTTP server, middleware, and handlers of the link
// checker. Notable routes:
//   - POST /v1/links/check (alias POST /api/check-links) streams one event
//     per link as Server-Sent Events, or NDJSON when the client asks for
//     application/x-ndjson.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping when metrics are enabled.
package api
