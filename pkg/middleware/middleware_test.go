package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func newRouter(mws ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mws...)
	r.Get("/api/forms/{form}/hydrate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	return r
}

func TestMetricsHandler_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	r := newRouter(m.Handler)

	for _, path := range []string{"/api/forms/admission/hydrate", "/api/forms/event/hydrate"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	route := "/api/forms/{form}/hydrate"
	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues(route, "GET", "200")); got != 2 {
		t.Errorf("requests_total(hydrate)=%v, want 2", got)
	}
	if got := metricHistogramCount(t, m.requestDuration.WithLabelValues(route, "GET")); got != 2 {
		t.Errorf("duration count=%d, want 2", got)
	}
	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("/boom", "GET", "502")); got != 1 {
		t.Errorf("requests_total(boom)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.requestsTotal.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Errorf("requests_total(unmatched)=%v, want 1", got)
	}
}

func TestMetricsConfig(t *testing.T) {
	config := defaultMetricsConfig()
	if config.Namespace != "admissions" {
		t.Errorf("Namespace = %q", config.Namespace)
	}
	for _, opt := range []MetricsOption{
		WithNamespace("x"),
		WithSubsystem("web"),
		WithConstLabels(prometheus.Labels{"env": "test"}),
		WithBuckets([]float64{0.1, 1}),
	} {
		opt(&config)
	}
	if config.Namespace != "x" || config.Subsystem != "web" || config.ConstLabels["env"] != "test" || len(config.Buckets) != 2 {
		t.Errorf("config = %+v", config)
	}
}

func TestDomainMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	m.MetadataFallbacks.WithLabelValues("crm").Inc()
	m.FormSync.WithLabelValues("admission", "written").Inc()
	m.Submissions.WithLabelValues("admission", "accepted").Inc()
	m.ActiveSessions.Inc()
	m.WebSocketErrors.WithLabelValues("read").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"admissions_metadata_fallbacks_total",
		"admissions_form_sync_total",
		"admissions_submissions_total",
		"admissions_active_sessions",
		"admissions_websocket_errors_total",
	} {
		if !names[want] {
			t.Errorf("missing metric %s", want)
		}
	}
}

func newRecorderProvider() (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)), sr
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpenTelemetry_SpanPerRequest(t *testing.T) {
	tp, sr := newRecorderProvider()
	var inHandler bool
	r := chi.NewRouter()
	r.Use(OpenTelemetry(
		WithTracerProvider(tp),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	))
	r.Get("/api/forms/{form}/hydrate", func(w http.ResponseWriter, req *http.Request) {
		inHandler = SpanFromContext(req.Context()) != nil
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/forms/admission/hydrate", nil))

	if !inHandler {
		t.Error("expected a span in the handler context")
	}
	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "GET /api/forms/{form}/hydrate" {
		t.Errorf("span name = %q", s.Name())
	}
	if v, ok := attrValue(s.Attributes(), "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("http.status_code = %v", v)
	}
	if v, ok := attrValue(s.Attributes(), "test.attr"); !ok || v.AsString() != "ok" {
		t.Errorf("test.attr = %v", v)
	}
}

func TestOpenTelemetry_ServerErrorStatus(t *testing.T) {
	tp, sr := newRecorderProvider()
	r := newRouter(OpenTelemetry(WithTracerProvider(tp)))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status())
	}
}

func TestOpenTelemetry_FilterSkipsTracing(t *testing.T) {
	tp, sr := newRecorderProvider()
	r := chi.NewRouter()
	r.Use(OpenTelemetry(
		WithTracerProvider(tp),
		WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
	))
	nextCalled := false
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		nextCalled = true
		if SpanFromContext(req.Context()) != nil {
			t.Error("expected no span when filter skips tracing")
		}
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !nextCalled {
		t.Fatal("expected next to be called")
	}
	if n := len(sr.Ended()); n != 0 {
		t.Errorf("ended spans = %d, want 0", n)
	}
}

func TestSpanFromContext_NoSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if SpanFromContext(req.Context()) != nil {
		t.Fatal("expected nil span when none is stored")
	}
}
