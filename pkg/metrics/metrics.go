package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the call agent.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// TurnCounter counts finished turns.
	// Labels: outcome (specialist|clarify|apology|reprompt)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	// Labels: outcome
	TurnDuration *prometheus.HistogramVec

	// ClassificationCounter counts classifier results.
	// Labels: intent (BUY|SELL|RENT|GENERAL|error)
	ClassificationCounter *prometheus.CounterVec

	// CompletionDuration measures completion round trips in seconds.
	// Labels: role, status (success|error)
	CompletionDuration *prometheus.HistogramVec

	// DroppedFields counts extracted keys rejected by the vocabulary allow-list.
	// Labels: intent
	DroppedFields *prometheus.CounterVec

	// ActiveCalls is the number of call states held in memory.
	ActiveCalls prometheus.Gauge

	registry *prometheus.Registry
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callagent_turns_total",
				Help: "Total number of processed turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callagent_turn_duration_seconds",
				Help:    "Duration of turn processing in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"outcome"},
		),
		ClassificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callagent_classifications_total",
				Help: "Total number of intent classifications by result",
			},
			[]string{"intent"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callagent_completion_duration_seconds",
				Help:    "Duration of language model completions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"role", "status"},
		),
		DroppedFields: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callagent_dropped_fields_total",
				Help: "Extracted fields rejected because they are outside the intent vocabulary",
			},
			[]string{"intent"},
		),
		ActiveCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callagent_active_calls",
				Help: "Number of call states currently held in memory",
			},
		),
		registry: reg,
	}
}

func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveClassification(intent string) {
	if m == nil {
		return
	}
	m.ClassificationCounter.WithLabelValues(intent).Inc()
}

func (m *Metrics) ObserveCompletion(role string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CompletionDuration.WithLabelValues(role, status).Observe(d.Seconds())
}

func (m *Metrics) AddDroppedFields(intent string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedFields.WithLabelValues(intent).Add(float64(n))
}

// SetActiveCalls satisfies the state store gauge hook.
func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.ActiveCalls.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
