// Package middleware provides HTTP middleware for the admissions service.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware and the service's domain metrics
//
// # OpenTelemetry Middleware
//
// Every request runs inside a server span named after its chi route
// pattern. Incoming W3C trace context is honoured, so spans started by the
// CRM client during the request join the caller's trace.
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// # Prometheus Metrics
//
//	m := middleware.NewMetrics(middleware.WithNamespace("admissions"))
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.Handler())
//
// Metrics collected:
//   - admissions_http_requests_total: requests by route, method and status
//   - admissions_http_request_duration_seconds: request latency by route
//   - admissions_metadata_fallbacks_total: metadata fetches that fell back
//   - admissions_form_sync_total: URL sync outcomes by form and result
//   - admissions_submissions_total: submissions by form and outcome
//   - admissions_active_sessions: open form sessions
//   - admissions_websocket_errors_total: session transport errors by type
package middleware
