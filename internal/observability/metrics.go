package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var transitionDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds all Prometheus metric instruments for the core.
type Metrics struct {
	// Lock metrics
	LockAcquiresTotal  *prometheus.CounterVec
	LockReleasesTotal  prometheus.Counter
	LockRefreshesTotal *prometheus.CounterVec
	ConflictProbesTotal *prometheus.CounterVec
	LockSweepReclaimed prometheus.Counter

	// Version metrics
	SnapshotsTotal      *prometheus.CounterVec
	SnapshotRetriesTotal prometheus.Counter
	RevertsTotal        *prometheus.CounterVec

	// Workflow metrics
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsDropped prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LockAcquiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_lock_acquires_total",
			Help: "Total lock acquire attempts by outcome.",
		}, []string{"resource_type", "outcome"}),
		LockReleasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_lock_releases_total",
			Help: "Total lock releases.",
		}),
		LockRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_lock_refreshes_total",
			Help: "Total lock refresh attempts by outcome.",
		}, []string{"outcome"}),
		ConflictProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_conflict_probes_total",
			Help: "Total conflict probes by result.",
		}, []string{"result"}),
		LockSweepReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_lock_sweep_reclaimed_total",
			Help: "Total lapsed lock rows reclaimed by the sweeper.",
		}),

		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_version_snapshots_total",
			Help: "Total version snapshots created.",
		}, []string{"kind"}),
		SnapshotRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_version_snapshot_retries_total",
			Help: "Total retries on version-number races.",
		}),
		RevertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_version_reverts_total",
			Help: "Total revert attempts by outcome.",
		}, []string{"outcome"}),

		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_workflow_transitions_total",
			Help: "Total status transition attempts.",
		}, []string{"from", "to", "outcome"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coedit_workflow_transition_duration_seconds",
			Help:    "Status transition duration in seconds.",
			Buckets: transitionDurationBuckets,
		}, []string{"to"}),

		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_notifications_dropped_total",
			Help: "Total transition notifications dropped by the async dispatcher.",
		}),
	}

	reg.MustRegister(
		m.LockAcquiresTotal,
		m.LockReleasesTotal,
		m.LockRefreshesTotal,
		m.ConflictProbesTotal,
		m.LockSweepReclaimed,
		m.SnapshotsTotal,
		m.SnapshotRetriesTotal,
		m.RevertsTotal,
		m.TransitionsTotal,
		m.TransitionDuration,
		m.NotificationsDropped,
	)

	return m
}

// --- Recording helpers ---
//
// All helpers are nil-safe so engines constructed without metrics (unit
// tests) need no conditional wiring.

// RecordLockAcquire records a lock acquire attempt.
// Outcome: acquired, extended, forced, conflict.
func (m *Metrics) RecordLockAcquire(resourceType, outcome string) {
	if m == nil {
		return
	}
	m.LockAcquiresTotal.WithLabelValues(resourceType, outcome).Inc()
}

// RecordLockRelease records a lock release.
func (m *Metrics) RecordLockRelease() {
	if m == nil {
		return
	}
	m.LockReleasesTotal.Inc()
}

// RecordLockRefresh records a refresh attempt. Outcome: ok, expired.
func (m *Metrics) RecordLockRefresh(outcome string) {
	if m == nil {
		return
	}
	m.LockRefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordConflictProbe records a conflict probe result.
// Result: none, locked_by_other, version_mismatch.
func (m *Metrics) RecordConflictProbe(result string) {
	if m == nil {
		return
	}
	m.ConflictProbesTotal.WithLabelValues(result).Inc()
}

// RecordSweepReclaimed records lapsed rows reclaimed by one sweep run.
func (m *Metrics) RecordSweepReclaimed(n int64) {
	if m == nil {
		return
	}
	m.LockSweepReclaimed.Add(float64(n))
}

// RecordSnapshot records a created snapshot. Kind: regular, major.
func (m *Metrics) RecordSnapshot(isMajor bool) {
	if m == nil {
		return
	}
	kind := "regular"
	if isMajor {
		kind = "major"
	}
	m.SnapshotsTotal.WithLabelValues(kind).Inc()
}

// RecordSnapshotRetry records one retry on a version-number race.
func (m *Metrics) RecordSnapshotRetry() {
	if m == nil {
		return
	}
	m.SnapshotRetriesTotal.Inc()
}

// RecordRevert records a revert attempt. Outcome: ok, aborted.
func (m *Metrics) RecordRevert(outcome string) {
	if m == nil {
		return
	}
	m.RevertsTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition records a status transition attempt.
func (m *Metrics) RecordTransition(from, to, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to, outcome).Inc()
	if outcome == "ok" {
		m.TransitionDuration.WithLabelValues(to).Observe(duration.Seconds())
	}
}

// RecordNotificationDropped records a dropped transition notification.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
