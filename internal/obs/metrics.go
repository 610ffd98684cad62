package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics
var (
	mocTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moc_transitions_total",
			Help: "MOC status transitions applied, by source and target status.",
		},
		[]string{"from", "to"},
	)

	mocTransitionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moc_transition_rejections_total",
			Help: "MOC status transitions refused, by source and target status.",
		},
		[]string{"from", "to"},
	)

	riskClassifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_classifications_total",
			Help: "Risk classifications computed, by tier.",
		},
		[]string{"tier"},
	)

	authSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_total",
			Help: "Session operations by outcome.",
		},
		[]string{"outcome"},
	)

	notificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Notifications dropped because a subscriber was not keeping up.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			mocTransitions, mocTransitionRejections, riskClassifications,
			authSessions, notificationsDropped,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition counts an applied MOC transition.
func ObserveTransition(from, to string) {
	mocTransitions.WithLabelValues(from, to).Inc()
}

// ObserveTransitionRejected counts a refused MOC transition.
func ObserveTransitionRejected(from, to string) {
	mocTransitionRejections.WithLabelValues(from, to).Inc()
}

// ObserveClassification counts a risk classification.
func ObserveClassification(tier string) {
	riskClassifications.WithLabelValues(tier).Inc()
}

// ObserveSession counts a session operation, e.g. "login", "refresh", "expired".
func ObserveSession(outcome string) {
	authSessions.WithLabelValues(outcome).Inc()
}

// ObserveNotificationDropped counts a notification a slow subscriber missed.
func ObserveNotificationDropped() {
	notificationsDropped.Inc()
}

// Instrument measures request rate, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// collections whose second path segment is an identifier.
var idCollections = map[string]bool{
	"facilities":  true,
	"assets":      true,
	"mocs":        true,
	"work-orders": true,
	"standards":   true,
	"users":       true,
}

// CanonicalPath folds resource identifiers out of a request path so metric
// label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && idCollections[parts[1]] {
		switch len(parts) {
		case 3:
			return "/v1/" + parts[1] + "/:id"
		case 4:
			return "/v1/" + parts[1] + "/:id/" + parts[3]
		}
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
