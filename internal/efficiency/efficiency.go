// Package efficiency turns agent execution telemetry into a single score
// that approximates time to resolution. Higher is better.
package efficiency

import (
	"errors"
	"time"

	"github.com/signalnine/srebench/internal/model"
)

// Config holds the baselines an agent is measured against.
type Config struct {
	BaselineSeconds float64 `yaml:"baseline_seconds" json:"baseline_seconds"`
	// BaselineSteps is the number of trace steps allowed before the score
	// is discounted. 0 disables the discount.
	BaselineSteps  int     `yaml:"baseline_steps" json:"baseline_steps"`
	EpsilonSeconds float64 `yaml:"epsilon_seconds" json:"epsilon_seconds"`
}

func DefaultConfig() Config {
	return Config{BaselineSeconds: 60, BaselineSteps: 10, EpsilonSeconds: 0.001}
}

func (c Config) Validate() error {
	if c.BaselineSeconds <= 0 {
		return errors.New("baseline_seconds must be positive")
	}
	if c.EpsilonSeconds <= 0 {
		return errors.New("epsilon_seconds must be positive")
	}
	if c.BaselineSteps < 0 {
		return errors.New("baseline_steps must not be negative")
	}
	return nil
}

// Evaluator scores execution efficiency. It is stateless.
type Evaluator struct {
	cfg Config
}

func New(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate returns baseline_seconds / max(elapsed, epsilon), scaled by
// baseline_steps / steps when the trace has more steps than the baseline.
// Negative elapsed time counts as zero.
func (e *Evaluator) Evaluate(trace []model.TraceStep, startedAt, finishedAt time.Time) float64 {
	elapsed := max(finishedAt.Sub(startedAt).Seconds(), 0)
	score := e.cfg.BaselineSeconds / max(elapsed, e.cfg.EpsilonSeconds)
	if steps := len(trace); e.cfg.BaselineSteps > 0 && steps > e.cfg.BaselineSteps {
		score *= float64(e.cfg.BaselineSteps) / float64(steps)
	}
	return score
}
