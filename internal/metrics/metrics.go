package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "process",
			Name:      "failures_total",
			Help:      "Number of observed terminations (crash or completion).",
		}, []string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of completed restarts.",
		}, []string{"name", "strategy"},
	)
	processGiveUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "process",
			Name:      "give_ups_total",
			Help:      "Number of times the restart budget was exhausted.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of explicit stop requests.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between different process states.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "supervisr",
			Subsystem: "process",
			Name:      "current_state",
			Help:      "Current state of processes (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "supervisr",
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Time spent detecting failures and applying restarts per tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
	restartSetSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supervisr",
			Subsystem: "monitor",
			Name:      "restart_set_size",
			Help:      "Number of processes selected for restart per failure.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}, []string{"strategy"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{processFailures, processRestarts, processGiveUps, processStops, stateTransitions, currentStates, tickDuration, restartSetSize}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncFailure(name string) {
	if regOK.Load() {
		processFailures.WithLabelValues(name).Inc()
	}
}

func IncRestart(name, strategy string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(name, strategy).Inc()
	}
}

func IncGiveUp(name string) {
	if regOK.Load() {
		processGiveUps.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func ObserveTick(seconds float64) {
	if regOK.Load() {
		tickDuration.Observe(seconds)
	}
}

func ObserveRestartSet(strategy string, n int) {
	if regOK.Load() {
		restartSetSize.WithLabelValues(strategy).Observe(float64(n))
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64 = 0
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}
