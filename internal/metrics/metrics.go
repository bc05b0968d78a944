// Package metrics records benchmark run metrics in a per-run Prometheus
// registry that is written out as a textfile next to the run results.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalnine/srebench/internal/result"
)

// OutcomeOK labels scenarios that finished without error.
const OutcomeOK = "ok"

// Recorder holds the Prometheus metrics of one run. Safe for concurrent use.
type Recorder struct {
	reg *prometheus.Registry

	ScenariosTotal *prometheus.CounterVec
	RetriesTotal   *prometheus.CounterVec
	StageSeconds   *prometheus.HistogramVec
	Scores         *prometheus.GaugeVec
	Efficiency     *prometheus.GaugeVec
	Tokens         *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		ScenariosTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srebench_scenarios_total",
			Help: "Scenarios evaluated, by agent and outcome",
		}, []string{"agent", "outcome"}),
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srebench_scenario_retries_total",
			Help: "Scenario re-evaluations after an agent timeout",
		}, []string{"agent"}),
		StageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "srebench_stage_duration_seconds",
			Help:    "Time spent in each evaluation stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		Scores: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "srebench_comparison_score",
			Help: "Comparison scores of successful scenarios",
		}, []string{"agent", "scenario", "score"}),
		Efficiency: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "srebench_efficiency_score",
			Help: "Efficiency score of successful scenarios",
		}, []string{"agent", "scenario"}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srebench_tokens_total",
			Help: "Tokens reported by agents",
		}, []string{"agent", "direction"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) ObserveRetry(agentName string) {
	r.RetriesTotal.WithLabelValues(agentName).Inc()
}

// ObserveResult records the final outcome of one scenario.
func (r *Recorder) ObserveResult(res *result.ScenarioResult) {
	outcome := OutcomeOK
	if res.Failed() {
		outcome = string(res.Error.Kind)
	}
	r.ScenariosTotal.WithLabelValues(res.AgentName, outcome).Inc()
	r.Tokens.WithLabelValues(res.AgentName, "input").Add(float64(res.Usage.InputTokens))
	r.Tokens.WithLabelValues(res.AgentName, "output").Add(float64(res.Usage.OutputTokens))
	if res.Failed() {
		return
	}
	for name, v := range res.ComparisonScores {
		r.Scores.WithLabelValues(res.AgentName, res.ScenarioID, name).Set(v)
	}
	r.Efficiency.WithLabelValues(res.AgentName, res.ScenarioID).Set(res.EfficiencyScore)
}

// WriteTextfile writes the registry in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
