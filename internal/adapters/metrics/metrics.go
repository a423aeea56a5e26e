package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
	OutcomeLimited = "rate_limited"
)

// Metrics holds the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	QueryDuration   *prometheus.HistogramVec
	Submissions     *prometheus.CounterVec
	Fetches         *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	AuthAttempts    *prometheus.CounterVec
	AuditFailures   prometheus.Counter
	EmailFailures   prometheus.Counter
}

// New registers all collectors on a private registry.
// POST: Handler serves the registry in the Prometheus text format
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confreg_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		QueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confreg_db_query_duration_seconds",
				Help:    "Duration of database calls in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
		Submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confreg_registrations_submitted_total",
				Help: "Registration submissions by outcome",
			},
			[]string{"outcome", "relationship"},
		),
		Fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confreg_admin_fetches_total",
				Help: "Admin registration fetches by outcome",
			},
			[]string{"outcome"},
		),
		Exports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confreg_exports_total",
				Help: "Spreadsheet exports by outcome",
			},
			[]string{"outcome"},
		),
		AuthAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confreg_admin_auth_attempts_total",
				Help: "Admin login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AuditFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "confreg_audit_failures_total",
			Help: "Audit log writes that failed and were swallowed",
		}),
		EmailFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "confreg_email_failures_total",
			Help: "Confirmation emails that failed and were swallowed",
		}),
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// ObserveQuery records one database call.
func (m *Metrics) ObserveQuery(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Submission counts a registration submission.
func (m *Metrics) Submission(outcome, relationship string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome, relationship).Inc()
}

// Fetch counts an admin fetch.
func (m *Metrics) Fetch(outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(outcome).Inc()
}

// Export counts a spreadsheet export.
func (m *Metrics) Export(outcome string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(outcome).Inc()
}

// Auth counts an admin login attempt.
func (m *Metrics) Auth(outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}

// AuditFailed counts a swallowed audit failure.
func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}

// EmailFailed counts a swallowed email failure.
func (m *Metrics) EmailFailed() {
	if m == nil {
		return
	}
	m.EmailFailures.Inc()
}
