package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
)

// Metrics exposes the decision engine on a private Prometheus registry.
//
// A Metrics built from a disabled config is a no-op: every method returns
// immediately and Handler answers 404.
type Metrics struct {
	registry *prometheus.Registry

	commands       *prometheus.CounterVec
	targetPosition *prometheus.GaugeVec
	overrideActive *prometheus.GaugeVec
	evaluations    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the metrics collectors.
//
// Parameters:
//   - cfg: Metrics section of config.yaml
//
// Returns:
//   - *Metrics: Registered collectors, or a no-op instance when disabled
func New(cfg config.MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}
	ns := cfg.Namespace

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "covers_commands_total",
			Help:      "Position commands issued by the decision engine.",
		}, []string{"cover", "reason"}),
		targetPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "covers_target_position",
			Help:      "Current target position per cover (0 closed, 100 open).",
		}, []string{"cover"}),
		overrideActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "covers_override_active",
			Help:      "1 while a manual override is in effect.",
		}, []string{"cover"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "covers_evaluations_total",
			Help:      "Decision cycles run, by trigger.",
		}, []string{"cover", "trigger"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed, by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.commands,
		m.targetPosition,
		m.overrideActive,
		m.evaluations,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Enabled reports whether the collectors are registered.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// Observe updates the cover gauges from a snapshot. It is registered as a
// cover.Broadcaster listener.
func (m *Metrics) Observe(s cover.Snapshot) {
	if !m.Enabled() {
		return
	}

	m.overrideActive.WithLabelValues(s.Cover).Set(boolGauge(s.ManualActive))
	if s.Target != nil {
		m.targetPosition.WithLabelValues(s.Cover).Set(*s.Target)
	}
}

// ObserveCommand counts a position command sent by an engine. It implements
// cover.EvaluationObserver.
func (m *Metrics) ObserveCommand(coverID string, reason cover.Reason, _ float64) {
	if !m.Enabled() {
		return
	}
	m.commands.WithLabelValues(coverID, string(reason.Display())).Inc()
}

// ObserveEvaluation counts a decision cycle. It implements
// cover.EvaluationObserver.
func (m *Metrics) ObserveEvaluation(coverID string, trigger cover.TriggerKind) {
	if !m.Enabled() {
		return
	}
	m.evaluations.WithLabelValues(coverID, string(trigger)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
