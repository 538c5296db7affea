// Package metrics provides Prometheus metrics for the App Maker client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote service calls
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appmaker_remote_requests_total",
			Help: "Total requests sent to the App Maker service",
		},
		[]string{"op", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appmaker_remote_request_duration_seconds",
			Help:    "Duration of requests to the App Maker service",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"op"},
	)

	// Polling
	pollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appmaker_poll_ticks_total",
			Help: "Polling iterations by outcome",
		},
		[]string{"result"},
	)

	pollersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appmaker_pollers_active",
			Help: "Number of live polling timers",
		},
	)

	// Session
	staleDiscardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appmaker_stale_responses_total",
			Help: "Responses discarded because their project is no longer active",
		},
		[]string{"kind"},
	)

	sessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appmaker_session_transitions_total",
			Help: "Applied session state transitions by resulting status",
		},
		[]string{"status"},
	)

	problemActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appmaker_problem_active",
			Help: "1 when the active project reports a problem",
		},
	)

	logEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appmaker_log_entries",
			Help: "Entries in the last parsed log",
		},
	)

	// Local bridge
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appmaker_http_requests_total",
			Help: "Total number of bridge HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appmaker_http_request_duration_seconds",
			Help:    "Bridge HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appmaker_sse_connections_active",
			Help: "Number of active event subscribers",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appmaker_sse_events_total",
			Help: "Total session events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteRequest records one exchange with the remote service. A zero
// status means the server was not reached.
func RecordRemoteRequest(op string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	remoteRequestsTotal.WithLabelValues(op, label).Inc()
	remoteRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPollTick records a polling iteration.
func RecordPollTick(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	pollTicksTotal.WithLabelValues(result).Inc()
}

// AddActivePollers moves the live timer gauge by delta.
func AddActivePollers(delta int) {
	pollersActive.Add(float64(delta))
}

// RecordStaleDiscard records a response dropped for a non-current project.
func RecordStaleDiscard(kind string) {
	staleDiscardsTotal.WithLabelValues(kind).Inc()
}

// RecordTransition records an applied state transition.
func RecordTransition(status string) {
	sessionTransitionsTotal.WithLabelValues(status).Inc()
}

// SetProblemActive sets the problem gauge.
func SetProblemActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	problemActive.Set(v)
}

// SetLogEntries sets the parsed log size gauge.
func SetLogEntries(n int) {
	logEntries.Set(float64(n))
}

// RecordHTTPRequest records a bridge HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetSSEConnectionsActive sets the number of active event subscribers.
func SetSSEConnectionsActive(count int) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. Paths
// are labelled with the matched route pattern when routeFn provides one.
func Middleware(routeFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			path := r.URL.Path
			if routeFn != nil {
				if p := routeFn(r); p != "" {
					path = p
				}
			}
			RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
		})
	}
}
