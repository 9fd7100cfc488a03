// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tenantgate service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthBuckets defines histogram buckets for authenticator execution,
// ranging from 5ms to the 10s outbound ceiling.
var AuthBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Outcome labels for AuthAttemptsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Result labels for CacheLookupsTotal.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	// RequestsTotal counts HTTP requests by surface, method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_requests_total",
			Help: "Total requests",
		},
		[]string{"surface", "method", "status"},
	)

	// RequestDuration records HTTP request latency by surface.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface"},
	)

	// AuthAttemptsTotal counts authenticator executions by kind and outcome.
	// Cache hits are not executions and are not counted here.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_auth_attempts_total",
			Help: "Authenticator executions",
		},
		[]string{"kind", "outcome"},
	)

	// AuthExecutionSeconds records how long authenticators took to run.
	AuthExecutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_auth_execution_seconds",
			Help:    "Authenticator execution latency",
			Buckets: AuthBuckets,
		},
		[]string{"kind"},
	)

	// CacheLookupsTotal counts result cache probes.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_cache_lookups_total",
			Help: "Result cache lookups",
		},
		[]string{"result"},
	)

	// ScriptTimeoutsTotal counts scripts aborted at their wall-clock budget.
	ScriptTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenantgate_script_timeouts_total",
			Help: "Script executions aborted by timeout",
		},
	)

	// PermissionDeniedTotal counts grant and constraint denials by resource type.
	PermissionDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_permission_denied_total",
			Help: "Permission denials",
		},
		[]string{"resource"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		AuthExecutionSeconds,
		CacheLookupsTotal,
		ScriptTimeoutsTotal,
		PermissionDeniedTotal,
	)
}
