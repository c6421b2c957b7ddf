package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slotchan"

var (
	Registry = prometheus.NewRegistry()

	// ---- Arbiter ----

	SlotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "slots_total",
			Help:      "Slots closed, by outcome (idle, success, collision).",
		},
		[]string{"outcome"},
	)

	FramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "frames_total",
			Help:      "Frames delivered alone in their slot.",
		},
	)

	BytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "bytes_total",
			Help:      "Wire bytes of frames delivered alone in their slot.",
		},
	)

	CollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "collisions_total",
			Help:      "Per-participant collision count, summed.",
		},
	)

	Participants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "participants",
			Help:      "Currently connected participants.",
		},
	)

	RejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "rejected_connections_total",
			Help:      "Connections closed because the participant table was full.",
		},
	)

	RemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "arbiter",
			Name:      "removed_participants_total",
			Help:      "Participants removed, by reason.",
		},
		[]string{"reason"},
	)

	// ---- Sender ----

	TransmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "transmissions_total",
			Help:      "DATA frames written, retries included.",
		},
	)

	SenderCollisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "collisions_total",
			Help:      "Unacknowledged attempts, by cause (collision, silence, anomaly).",
		},
		[]string{"cause"},
	)

	BackoffDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "backoff_delay_seconds",
			Help:      "Backoff sleeps drawn between attempts.",
			// 1ms .. ~8s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "transfers_total",
			Help:      "Finished transfers, by result.",
		},
		[]string{"result"},
	)

	// ---- Ops HTTP ----

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of ops HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of ops HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and role).",
		},
		[]string{"version", "role"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		SlotsTotal, FramesTotal, BytesTotal, CollisionsTotal, Participants, RejectedTotal, RemovedTotal,
		TransmissionsTotal, SenderCollisionsTotal, BackoffDelay, TransfersTotal,
		RequestsTotal, RequestDuration, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup by each binary.
func SetBuildInfo(version, role string) {
	buildInfo.WithLabelValues(version, role).Set(1)
}

// Uptime reports how long the process has been running.
func Uptime() time.Duration { return time.Since(startTime) }

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
