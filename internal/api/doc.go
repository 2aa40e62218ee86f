// Package api hosts the HTTP trigger, health endpoints and middleware. Notable routes:
//   - POST / runs one change check and answers with a plain-text status.
//   - GET /healthz / readyz for Cloud Run and Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
package api
