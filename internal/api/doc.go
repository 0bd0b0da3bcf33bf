// Package api hosts the HTTP server, middleware and handlers. Notable routes:
//   - GET /api/article, /api/links, /api/page run a scrape (or serve it from cache).
//   - GET /result/{id}, /screenshot/{id}, /view/{id} read cached results.
//   - GET /ping reports browser state; /healthz is the liveness probe.
//   - GET /metrics for Prometheus scraping.
package api
