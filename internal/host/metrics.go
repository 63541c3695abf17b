package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (no per-player labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_tick_duration_seconds",
		Help:    "Time spent in one host tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
	})

	stepsPerTick = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_steps_per_tick",
		Help:    "Fixed simulation steps executed per host tick",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})

	actionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_actions_applied_total",
		Help: "Actions handed to the match",
	})

	queueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_action_queue_dropped_total",
		Help: "Actions dropped because the queue was full",
	})

	rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_rollbacks_total",
		Help: "Late actions that caused a rewind and resimulation",
	})

	rollbackDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_rollback_depth_ticks",
		Help:    "Ticks resimulated per rollback",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	rollbacksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_rollbacks_skipped_total",
		Help: "Late actions older than the retained history",
	})

	correctionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_corrections_rejected_total",
		Help: "Late actions refused by the match",
	}, []string{"reason"}) // Bounded: "not_playing", "previous_round"

	frameTimeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_frame_time_dropped_ms_total",
		Help: "Frame time discarded because a tick exceeded the maximum frame length",
	})

	knockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_knockouts_total",
		Help: "KO events",
	})

	currentPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_phase",
		Help: "Current match phase (0 lobby, 1 play, 2 ko, 3 reset)",
	})

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_event_log_total",
		Help: "Total events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duel_event_log_dropped_total",
		Help: "Events dropped due to rate limiting",
	})
)

// recordTick records tick timing for metrics
func recordTick(d time.Duration, steps int) {
	tickDuration.Observe(d.Seconds())
	stepsPerTick.Observe(float64(steps))
}
