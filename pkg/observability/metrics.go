package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Federation metrics
	LoginsTotal             *prometheus.CounterVec
	LoginDuration           *prometheus.HistogramVec
	IdPRequestsTotal        *prometheus.CounterVec
	IdPRequestDuration      *prometheus.HistogramVec
	UsersProvisionedTotal   *prometheus.CounterVec
	MembershipsWrittenTotal *prometheus.CounterVec
	AmbiguousGroupsTotal    *prometheus.CounterVec
	ExtractionMissesTotal   *prometheus.CounterVec
	SessionsIssuedTotal     *prometheus.CounterVec
	SessionsCleanedTotal    prometheus.Counter
	DefaultRoleCacheHits    prometheus.Counter
	DefaultRoleCacheMisses  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_logins_total",
				Help: "Federated login attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		LoginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federate_login_duration_seconds",
				Help:    "End-to-end federated login duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		IdPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_idp_requests_total",
				Help: "Requests issued to identity provider endpoints",
			},
			[]string{"provider", "endpoint", "status"},
		),
		IdPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "federate_idp_request_duration_seconds",
				Help:    "Identity provider request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "endpoint"},
		),
		UsersProvisionedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_users_provisioned_total",
				Help: "Users created or refreshed by federated login",
			},
			[]string{"provider", "action"},
		),
		MembershipsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_memberships_written_total",
				Help: "Group memberships added or updated, by role scope",
			},
			[]string{"scope"},
		),
		AmbiguousGroupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_ambiguous_groups_total",
				Help: "Group names that matched more than one group",
			},
			[]string{"provider"},
		),
		ExtractionMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_extraction_misses_total",
				Help: "Mapped profile fields that were not found in the profile",
			},
			[]string{"provider", "field"},
		),
		SessionsIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "federate_sessions_issued_total",
				Help: "Sessions bound after a successful login",
			},
			[]string{"provider"},
		),
		SessionsCleanedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "federate_sessions_cleaned_total",
				Help: "Expired sessions removed by the cleanup job",
			},
		),
		DefaultRoleCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "federate_default_role_cache_hits_total",
				Help: "Default role lookups served from cache",
			},
		),
		DefaultRoleCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "federate_default_role_cache_misses_total",
				Help: "Default role lookups that reached the store",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.LoginDuration,
		m.IdPRequestsTotal,
		m.IdPRequestDuration,
		m.UsersProvisionedTotal,
		m.MembershipsWrittenTotal,
		m.AmbiguousGroupsTotal,
		m.ExtractionMissesTotal,
		m.SessionsIssuedTotal,
		m.SessionsCleanedTotal,
		m.DefaultRoleCacheHits,
		m.DefaultRoleCacheMisses,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
