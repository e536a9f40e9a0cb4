package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvasbridge_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvasbridge_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// CommandsTotal counts dispatched commands by name and outcome
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvasbridge_commands_total",
			Help: "Total number of commands dispatched through the bridge",
		},
		[]string{"command", "status"},
	)

	// CommandDuration tracks time from dispatch to terminal resolution
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvasbridge_command_duration_seconds",
			Help:    "Command duration from dispatch to resolution in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"command"},
	)

	// PendingInvocations tracks the current correlation table size
	PendingInvocations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvasbridge_pending_invocations",
			Help: "Number of in-flight commands awaiting resolution",
		},
	)

	// ProgressEvents counts progress events by status
	ProgressEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvasbridge_progress_events_total",
			Help: "Total number of progress events received",
		},
		[]string{"status"},
	)

	// ConnectionTransitions counts connection state changes
	ConnectionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvasbridge_connection_transitions_total",
			Help: "Total number of connection state transitions",
		},
		[]string{"state"},
	)

	// ReconnectAttempts counts auto-reconnect dial attempts
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canvasbridge_reconnect_attempts_total",
			Help: "Total number of auto-reconnect attempts",
		},
	)

	// RelayChannels tracks channels currently open on the relay
	RelayChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvasbridge_relay_channels",
			Help: "Number of channels currently open on the relay",
		},
	)

	// RelayFramesForwarded counts frames forwarded by the relay by kind
	RelayFramesForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvasbridge_relay_frames_forwarded_total",
			Help: "Total number of frames forwarded between channel members",
		},
		[]string{"kind"},
	)

	// RelayRateLimited counts connections dropped for exceeding the frame budget
	RelayRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "canvasbridge_relay_rate_limited_total",
			Help: "Total number of connections closed for exceeding the rate limit",
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker so websocket upgrades pass through
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/mcp/", "/metrics", "/ws":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand records a dispatched command's outcome and duration
func RecordCommand(command, status string, durationSeconds float64) {
	CommandsTotal.WithLabelValues(command, status).Inc()
	CommandDuration.WithLabelValues(command).Observe(durationSeconds)
}

// RecordTransition records a connection state transition
func RecordTransition(state string) {
	ConnectionTransitions.WithLabelValues(state).Inc()
}
