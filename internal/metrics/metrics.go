package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the trading engine.
type Registry struct {
	TickDuration     *prometheus.HistogramVec
	StepDuration     *prometheus.HistogramVec
	StageInputSize   *prometheus.GaugeVec
	StageOutputSize  *prometheus.GaugeVec
	ServiceCalls     *prometheus.CounterVec
	ServiceErrors    *prometheus.CounterVec
	RiskSkips        *prometheus.CounterVec
	OrdersSubmitted  *prometheus.CounterVec
	SignalsGenerated prometheus.Counter
	SignalsDiscarded prometheus.Counter
	ActiveCycle      prometheus.Gauge
	UsedRiskBudget   prometheus.Gauge
	OpenPositions    prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all engine metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_tick_duration_seconds",
				Help:    "Duration of one full workflow tick",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_step_duration_seconds",
				Help:    "Duration of each workflow step",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"step", "outcome"},
		),
		StageInputSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_funnel_stage_input_size",
				Help: "Candidate count entering each funnel stage",
			},
			[]string{"stage"},
		),
		StageOutputSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_funnel_stage_output_size",
				Help: "Candidate count leaving each funnel stage",
			},
			[]string{"stage"},
		),
		ServiceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_service_calls_total",
				Help: "Collaborator calls by service and result",
			},
			[]string{"service", "result"},
		),
		ServiceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_service_errors_total",
				Help: "Collaborator call failures by service and error kind",
			},
			[]string{"service", "error_kind"},
		),
		RiskSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_risk_skips_total",
				Help: "Candidates skipped before execution by reason",
			},
			[]string{"reason"},
		),
		OrdersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_orders_submitted_total",
				Help: "Orders submitted to the execution venue by status",
			},
			[]string{"status"},
		),
		SignalsGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_signals_generated_total",
				Help: "Trade signals passing the confidence floor",
			},
		),
		SignalsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pulse_signals_discarded_total",
				Help: "Trade signals discarded below the confidence floor",
			},
		),
		ActiveCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_active_cycle",
				Help: "1 while a cycle is starting or active",
			},
		),
		UsedRiskBudget: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_used_risk_budget",
				Help: "Risk budget committed by the active cycle",
			},
		),
		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_open_positions",
				Help: "Open position count of the active cycle",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.TickDuration, r.StepDuration,
		r.StageInputSize, r.StageOutputSize,
		r.ServiceCalls, r.ServiceErrors,
		r.RiskSkips, r.OrdersSubmitted,
		r.SignalsGenerated, r.SignalsDiscarded,
		r.ActiveCycle, r.UsedRiskBudget, r.OpenPositions,
	)

	return r
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
