package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sustainability"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	assessmentsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assessments",
			Name:      "submitted_total",
			Help:      "Total number of assessments recorded, by tier.",
		},
		[]string{"tier"},
	)

	operationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "rejected_operations_total",
			Help:      "Total number of rejected operations, by operation and error code.",
		},
		[]string{"operation", "code"},
	)

	certificateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "transitions_total",
			Help:      "Total number of certificate lifecycle transitions.",
		},
		[]string{"transition"},
	)

	certificateStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "state",
			Help:      "Number of certificates per state at the last sweep.",
		},
		[]string{"state"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of certificate state sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)
)

// Certificate lifecycle transitions.
const (
	TransitionIssued      = "issued"
	TransitionTransferred = "transferred"
	TransitionRenewed     = "renewed"
	TransitionRevoked     = "revoked"
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		assessmentsSubmitted,
		operationsRejected,
		certificateTransitions,
		certificateStates,
		sweepDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordAssessment counts a recorded assessment.
func RecordAssessment(tier string) {
	assessmentsSubmitted.WithLabelValues(tier).Inc()
}

// RecordRejection counts an operation that failed with the given error code.
func RecordRejection(operation, code string) {
	if code == "" {
		code = "unknown"
	}
	operationsRejected.WithLabelValues(operation, code).Inc()
}

// RecordCertificateTransition counts a certificate lifecycle transition.
func RecordCertificateTransition(transition string) {
	certificateTransitions.WithLabelValues(transition).Inc()
}

// SetCertificateStates publishes the per-state certificate counts.
func SetCertificateStates(active, revoked, expired int) {
	certificateStates.WithLabelValues("active").Set(float64(active))
	certificateStates.WithLabelValues("revoked").Set(float64(revoked))
	certificateStates.WithLabelValues("expired").Set(float64(expired))
}

// RecordSweep observes the duration of a certificate sweep.
func RecordSweep(duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	sweepDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath keeps only the first path segment so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + strings.SplitN(trimmed, "/", 2)[0]
}
