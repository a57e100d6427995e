// Package metrics provides Prometheus metrics for the progression engine:
// awards, achievements, sync traffic, storage and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "expenzez"

// ─── Ledger ─────────────────────────────────────────────────────────────────

// AwardsTotal counts award attempts by action and outcome
// (awarded, cooldown, unknown).
var AwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "awards_total",
	Help:      "Award attempts by action and outcome.",
}, []string{"action", "outcome"})

// PointsAwarded counts points credited by source (action, achievement).
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "points_awarded_total",
	Help:      "Points credited to users by source.",
}, []string{"source"})

// LevelUps counts level transitions.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total level-up events.",
})

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementsEarned counts newly earned achievements by id.
var AchievementsEarned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_earned_total",
	Help:      "Newly earned achievements by id.",
}, []string{"achievement"})

// EvaluationLatency tracks a full stats-derive-and-evaluate pass.
var EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "achievement_evaluation_seconds",
	Help:      "Duration of one achievement evaluation pass.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
})

// ─── Sync ───────────────────────────────────────────────────────────────────

// HydrateTotal counts hydrate attempts by outcome
// (remote, not_found, fallback, skipped).
var HydrateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "hydrate_total",
	Help:      "Session hydrate attempts by outcome.",
}, []string{"outcome"})

// PushTotal counts background push attempts by outcome (ok, error, dropped).
var PushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "push_total",
	Help:      "Background push attempts by outcome.",
}, []string{"outcome"})

// PushPending tracks users waiting in the push queue.
var PushPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "push_pending",
	Help:      "Users with unpushed local changes.",
})

// RemoteLatency tracks remote progression calls by operation (get, put).
var RemoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "remote_latency_seconds",
	Help:      "Remote progression call duration in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"op"})

// ─── Storage ────────────────────────────────────────────────────────────────

// RemoteBreakerState is the remote circuit breaker position (0 closed, 1 open, 2 probing).
var RemoteBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "remote_breaker_state",
	Help:      "Remote circuit breaker state: 0 closed, 1 open, 2 probing.",
})

// StorageCorruptions counts local records that failed to decode and were
// reinitialized.
var StorageCorruptions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "storage_corruptions_total",
	Help:      "Local records reinitialized after a decode failure.",
}, []string{"kind"})

// RecordsServed counts remote record requests handled by the API server.
var RecordsServed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "records_served_total",
	Help:      "Progression record requests by method and status.",
}, []string{"method", "status"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
