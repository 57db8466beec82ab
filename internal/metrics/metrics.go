// Package metrics holds the Prometheus collectors for conversion runs and the
// HTTP API. Every Metrics owns a private registry so tests and embedded uses
// never collide on the global one.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Robertt/clashsub/internal/model"
)

const namespace = "clashsub"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	nodes          *prometheus.GaugeVec
	decodeWarnings *prometheus.CounterVec
	lastDuration   prometheus.Gauge
	lastRun        prometheus.Gauge
	lastSuccess    prometheus.Gauge

	httpRequests *prometheus.CounterVec
	appErrors    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Conversion runs by outcome.",
		}, []string{"outcome"}),
		nodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes in the last completed run by protocol.",
		}, []string{"protocol"}),
		decodeWarnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_warnings_total",
			Help:      "Subscription lines that failed to decode, by protocol.",
		}, []string{"protocol"}),
		lastDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"pattern", "status"}),
		appErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "app_errors_total",
			Help:      "Application errors returned to clients.",
		}, []string{"stage", "code"}),
	}
}

// Run summarizes one pipeline run.
type Run struct {
	Outcome  string
	Nodes    map[model.Protocol]int
	Warnings map[model.Protocol]int
	Duration time.Duration
	Finished time.Time
}

// ObserveRun records r. A nil *Metrics is a no-op, as are the other methods.
func (m *Metrics) ObserveRun(r Run) {
	if m == nil {
		return
	}
	outcome := r.Outcome
	if outcome == "" {
		outcome = OutcomeFailed
	}
	m.runs.WithLabelValues(outcome).Inc()

	for p, n := range r.Warnings {
		m.decodeWarnings.WithLabelValues(protocolLabel(p)).Add(float64(n))
	}

	finished := r.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	m.lastDuration.Set(r.Duration.Seconds())
	m.lastRun.Set(float64(finished.Unix()))

	if outcome == OutcomeFailed {
		return
	}
	for _, p := range model.Protocols {
		m.nodes.WithLabelValues(string(p)).Set(float64(r.Nodes[p]))
	}
	if outcome == OutcomeSuccess {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

func (m *Metrics) IncRequest(pattern string, status int) {
	if m == nil {
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}
	m.httpRequests.WithLabelValues(pattern, strconv.Itoa(status)).Inc()
}

func (m *Metrics) IncAppError(stage, code string) {
	if m == nil {
		return
	}
	m.appErrors.WithLabelValues(orUnknown(stage), orUnknown(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func protocolLabel(p model.Protocol) string {
	if p == "" {
		return "unknown"
	}
	return string(p)
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unknown)"
	}
	return s
}
