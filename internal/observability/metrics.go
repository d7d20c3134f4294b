// Package observability registers the Prometheus metrics exported on /metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	setsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "restset",
		Subsystem: "progress",
		Name:      "sets_completed_total",
		Help:      "Sets accepted as completed.",
	})
	exercisesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "restset",
		Subsystem: "progress",
		Name:      "exercises_completed_total",
		Help:      "Exercises that reached the completed state.",
	})
	persistFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "restset",
		Subsystem: "progress",
		Name:      "persistence_failures_total",
		Help:      "Local progress persistence failures by operation.",
	}, []string{"op"})
	corruptedStates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "restset",
		Subsystem: "progress",
		Name:      "corrupted_states_total",
		Help:      "Persisted workout states discarded because they could not be decoded.",
	})
	timersStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "restset",
		Subsystem: "timer",
		Name:      "started_total",
		Help:      "Rest timers activated.",
	})
	timersExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "restset",
		Subsystem: "timer",
		Name:      "expired_total",
		Help:      "Rest timers that ran out and fired their expiry callback.",
	})
	timersRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "restset",
		Subsystem: "timer",
		Name:      "running",
		Help:      "Rest timers currently counting down.",
	})
)

func init() {
	prometheus.MustRegister(setsCompleted, exercisesCompleted, persistFailures,
		corruptedStates, timersStarted, timersExpired, timersRunning)
}

// RecordSetCompleted counts an accepted set.
func RecordSetCompleted() { setsCompleted.Inc() }

// RecordExerciseCompleted counts an exercise reaching completion.
func RecordExerciseCompleted() { exercisesCompleted.Inc() }

// RecordPersistFailure counts a failed local store operation.
func RecordPersistFailure(op string) { persistFailures.WithLabelValues(op).Inc() }

// RecordCorruptedState counts a discarded persisted state.
func RecordCorruptedState() { corruptedStates.Inc() }

// RecordTimerStarted counts an activation and bumps the running gauge.
func RecordTimerStarted() {
	timersStarted.Inc()
	timersRunning.Inc()
}

// RecordTimerStopped lowers the running gauge; expired is true when the
// timer ran out rather than being cancelled.
func RecordTimerStopped(expired bool) {
	timersRunning.Dec()
	if expired {
		timersExpired.Inc()
	}
}
