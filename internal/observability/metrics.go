package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionRX = "rx"
	DirectionTX = "tx"

	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeReset    = "reset"
	OutcomeClosed   = "closed"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spinel",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "frame",
			Name:      "total",
			Help:      "Spinel frames moved across the transport.",
		},
		[]string{"direction"},
	)
	integrityErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "frame",
			Name:      "integrity_errors_total",
			Help:      "Inbound frames dropped by checksum or framing checks.",
		},
		[]string{"reason"},
	)
	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "transaction",
			Name:      "total",
			Help:      "Completed transactions by outcome.",
		},
		[]string{"command", "outcome"},
	)
	transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spinel",
			Subsystem: "transaction",
			Name:      "duration_seconds",
			Help:      "Time from send to resolution.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"command", "outcome"},
	)
	inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spinel",
			Subsystem: "transaction",
			Name:      "in_flight",
			Help:      "Transaction ids currently held.",
		},
	)
	orphanedReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "transaction",
			Name:      "orphaned_replies_total",
			Help:      "Replies with no outstanding transaction.",
		},
	)
	deviceResets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "device",
			Name:      "resets_total",
			Help:      "Device resets observed, by reason.",
		},
		[]string{"reason"},
	)
	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spinel",
			Subsystem: "notification",
			Name:      "dropped_total",
			Help:      "Notifications discarded from a full subscriber backlog.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			frames,
			integrityErrors,
			transactions,
			transactionDuration,
			inFlight,
			orphanedReplies,
			deviceResets,
			notificationsDropped,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(direction string) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Inc()
}

func RecordIntegrityError(reason string) {
	RegisterMetrics()
	integrityErrors.WithLabelValues(reason).Inc()
}

func RecordTransaction(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	transactions.WithLabelValues(command, outcome).Inc()
	transactionDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

func SetInFlight(n int) {
	RegisterMetrics()
	inFlight.Set(float64(n))
}

func RecordOrphanedReply() {
	RegisterMetrics()
	orphanedReplies.Inc()
}

func RecordDeviceReset(reason string) {
	RegisterMetrics()
	deviceResets.WithLabelValues(reason).Inc()
}

func RecordNotificationDropped() {
	RegisterMetrics()
	notificationsDropped.Inc()
}
