// Package metrics exposes saga and remote-call telemetry to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kazz187/provisioner/internal/project"
	"github.com/kazz187/provisioner/pkg/remote"
)

const namespace = "provisioner"

var (
	_ project.Recorder = (*Metrics)(nil)
	_ remote.Observer  = (*Metrics)(nil)
)

type Metrics struct {
	registry *prometheus.Registry

	sagaOutcomes         *prometheus.CounterVec
	sagaDuration         *prometheus.HistogramVec
	stepFailures         *prometheus.CounterVec
	compensationFailures *prometheus.CounterVec
	remoteRequests       *prometheus.CounterVec
	remoteDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sagaOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "saga",
				Name:      "outcomes_total",
				Help:      "Finished saga runs by operation and terminal state.",
			},
			[]string{"operation", "state"},
		),
		sagaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "saga",
				Name:      "duration_seconds",
				Help:      "Saga run duration in seconds.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "saga",
				Name:      "step_failures_total",
				Help:      "Failed saga steps by step and error kind.",
			},
			[]string{"operation", "step", "kind"},
		),
		compensationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "saga",
				Name:      "compensation_failures_total",
				Help:      "Undo actions that failed and left a resource behind.",
			},
			[]string{"step"},
		),
		remoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "requests_total",
				Help:      "HTTP attempts against remote platforms. Status 0 is a transport failure.",
			},
			[]string{"platform", "method", "status"},
		),
		remoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "remote",
				Name:      "request_duration_seconds",
				Help:      "Remote platform request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"platform", "method"},
		),
	}
	m.registry.MustRegister(
		m.sagaOutcomes,
		m.sagaDuration,
		m.stepFailures,
		m.compensationFailures,
		m.remoteRequests,
		m.remoteDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordOutcome(op project.Operation, state project.State, elapsed time.Duration) {
	m.sagaOutcomes.WithLabelValues(string(op), string(state)).Inc()
	m.sagaDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordStepFailure(op project.Operation, step project.Step, kind project.ErrorKind) {
	m.stepFailures.WithLabelValues(string(op), string(step), string(kind)).Inc()
}

func (m *Metrics) RecordCompensationFailure(step project.Step) {
	m.compensationFailures.WithLabelValues(string(step)).Inc()
}

func (m *Metrics) ObserveRequest(platform, method string, status int, elapsed time.Duration) {
	m.remoteRequests.WithLabelValues(platform, method, strconv.Itoa(status)).Inc()
	m.remoteDuration.WithLabelValues(platform, method).Observe(elapsed.Seconds())
}
