// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - POST /api/parse starts (or joins) the run for one announcement.
//   - GET /api/status/{task_id} polls a run.
//   - GET /api/reports and /reports/{filename} list and serve saved reports.
//   - GET /healthz and /metrics for probes and Prometheus scraping.
package api
