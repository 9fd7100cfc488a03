package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry without panicking.
func TestMetricsRegistered(t *testing.T) {
	expected := map[string]bool{
		"tenantgate_requests_total":           false,
		"tenantgate_request_duration_seconds": false,
		"tenantgate_auth_attempts_total":      false,
		"tenantgate_auth_execution_seconds":   false,
		"tenantgate_cache_lookups_total":      false,
		"tenantgate_script_timeouts_total":    false,
		"tenantgate_permission_denied_total":  false,
	}

	// Vectors only appear after their first observation.
	RequestsTotal.WithLabelValues(SurfaceSettings, "GET", "2xx").Inc()
	RequestDuration.WithLabelValues(SurfaceSettings).Observe(0.1)
	AuthAttemptsTotal.WithLabelValues("script", OutcomeSuccess).Inc()
	AuthExecutionSeconds.WithLabelValues("script").Observe(0.01)
	CacheLookupsTotal.WithLabelValues(CacheMiss).Inc()
	PermissionDeniedTotal.WithLabelValues("userSettings").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestSurface(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/global-settings/theme", SurfaceSettings},
		{"/admin/v1/organizations/T1/authenticators/x/try", SurfaceAdmin},
		{"/healthz", SurfaceSystem},
		{"/metrics", SurfaceSystem},
		{"/api/v2/x", SurfaceSystem},
	}
	for _, tt := range tests {
		if got := Surface(tt.path); got != tt.want {
			t.Errorf("Surface(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		handler http.HandlerFunc
		surface string
		class   string
	}{
		{"settings ok", "GET", "/api/v1/global-settings/theme",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }, SurfaceSettings, "2xx"},
		{"settings denied", "POST", "/api/v1/global-settings",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) }, SurfaceSettings, "4xx"},
		{"admin unauthorized", "GET", "/admin/v1/authenticators",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }, SurfaceAdmin, "4xx"},
		{"admin fault", "DELETE", "/admin/v1/organizations/T1/cache",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, SurfaceAdmin, "5xx"},
		{"implicit ok", "PUT", "/healthz",
			func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, SurfaceSystem, "2xx"},
		{"first status wins", "GET", "/readyz",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.WriteHeader(http.StatusOK)
			}, SurfaceSystem, "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := counterValue(t, RequestsTotal, tt.surface, tt.method, tt.class)
			samples := histogramCount(t, RequestDuration, tt.surface)

			MetricsMiddleware(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			if d := counterValue(t, RequestsTotal, tt.surface, tt.method, tt.class) - before; d != 1 {
				t.Errorf("requests{%s,%s,%s} delta = %f, want 1", tt.surface, tt.method, tt.class, d)
			}
			if d := histogramCount(t, RequestDuration, tt.surface) - samples; d != 1 {
				t.Errorf("duration{%s} samples delta = %d, want 1", tt.surface, d)
			}
		})
	}
}

func TestScriptTimeoutsCounter(t *testing.T) {
	before := plainCounterValue(t, ScriptTimeoutsTotal)
	ScriptTimeoutsTotal.Inc()
	if got := plainCounterValue(t, ScriptTimeoutsTotal); got-before != 1 {
		t.Errorf("script timeouts delta = %f, want 1", got-before)
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// plainCounterValue reads the current value of a Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
