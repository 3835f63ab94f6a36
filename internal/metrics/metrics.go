package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions counts sign-in decisions by outcome.
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinpoint",
		Name:      "admissions_total",
		Help:      "Sign-in attempts by admission outcome.",
	}, []string{"outcome"})

	// SweepTransitions counts class state changes applied by the scheduler.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinpoint",
		Name:      "sweep_transitions_total",
		Help:      "Class open/close transitions applied by the lifecycle sweep.",
	}, []string{"action"})

	// SweepFailures counts classes the sweep could not evaluate or transition.
	SweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinpoint",
		Name:      "sweep_class_failures_total",
		Help:      "Per-class failures during the lifecycle sweep.",
	})

	// SweepDuration observes full sweep runs.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pinpoint",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of lifecycle sweeps.",
		Buckets:   prometheus.DefBuckets,
	})

	// Notifications counts guardian notification results.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pinpoint",
		Name:      "notifications_total",
		Help:      "Guardian notifications by result.",
	}, []string{"result"})
)
