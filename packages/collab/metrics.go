package collab

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("gridsync.collab")

// Flush modes and results used as metric labels
const (
	modeLive     = "live"
	modeSnapshot = "snapshot"

	resultOK       = "ok"
	resultConflict = "conflict"
	resultLocked   = "locked"
	resultError    = "error"
)

// Remote update outcomes
const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeQueued    = "queued"
	outcomeEcho      = "echo"
)

// Metrics holds the orchestrator's prometheus collectors. a nil *Metrics
// records nothing.
type Metrics struct {
	flushes       *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	resyncs       prometheus.Counter
	remoteUpdates *prometheus.CounterVec
	lockDemotions prometheus.Counter
}

// NewMetrics registers the collectors with reg. a nil reg creates
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridsync_flushes_total",
			Help: "Document flushes by transport mode and result",
		}, []string{"mode", "result"}),
		flushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridsync_flush_duration_seconds",
			Help:    "Flush round-trip duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"mode"}),
		resyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridsync_resyncs_total",
			Help: "Resynchronizations from the authoritative store",
		}),
		remoteUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridsync_remote_updates_total",
			Help: "Inbound remote updates by outcome",
		}, []string{"outcome"}),
		lockDemotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridsync_lock_demotions_total",
			Help: "Edit sessions demoted to read-only after a failed heartbeat",
		}),
	}
}

func (m *Metrics) observeFlush(mode, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(mode, result).Inc()
	m.flushDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) resynced() {
	if m == nil {
		return
	}
	m.resyncs.Inc()
}

func (m *Metrics) remoteUpdate(outcome string) {
	if m == nil {
		return
	}
	m.remoteUpdates.WithLabelValues(outcome).Inc()
}

func (m *Metrics) demoted() {
	if m == nil {
		return
	}
	m.lockDemotions.Inc()
}
