// Package api hosts the HTTP server, middleware, and REST handlers for the
// retriever. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/retrievals to resolve a job id and fetch its parse artifact.
//   - GET /v1/resolve/{job_id} to resolve a job id without fetching.
//   - GET /v1/mappings and /v1/mappings/{job_id} for bookkeeping rows.
package api
