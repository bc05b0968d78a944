package result

import (
	"sort"
	"time"

	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/model"
)

// ErrorKind classifies why a scenario failed.
type ErrorKind string

const (
	KindScenarioNotFound     ErrorKind = "scenario_not_found"
	KindScenarioMalformed    ErrorKind = "scenario_malformed"
	KindAgentTimeout         ErrorKind = "agent_timeout"
	KindAgentOutputMalformed ErrorKind = "agent_output_malformed"
	KindCanceled             ErrorKind = "canceled"
	KindInternal             ErrorKind = "internal"
)

// ScenarioError is the recorded failure of one scenario.
type ScenarioError struct {
	Kind        ErrorKind `json:"kind"`
	Stage       string    `json:"stage"`
	Message     string    `json:"message"`
	RawResponse string    `json:"raw_response,omitempty"`
}

// ScenarioResult is the outcome of evaluating one scenario. Scores are only
// meaningful when Error is nil.
type ScenarioResult struct {
	ScenarioID            string               `json:"scenario_id"`
	AgentName             string               `json:"agent_name"`
	AgentOutput           *model.AgentOutput   `json:"agent_output,omitempty"`
	ComparisonScores      map[string]float64   `json:"comparison_scores,omitempty"`
	ComparisonDiagnostics *compare.Diagnostics `json:"comparison_diagnostics,omitempty"`
	EfficiencyScore       float64              `json:"efficiency_score"`
	Error                 *ScenarioError       `json:"error,omitempty"`
	StartedAt             time.Time            `json:"started_at"`
	FinishedAt            time.Time            `json:"finished_at"`
	ElapsedSeconds        float64              `json:"elapsed_seconds"`
	Attempts              int                  `json:"attempts"`
	Usage                 model.Usage          `json:"usage"`
}

func (r *ScenarioResult) Failed() bool { return r.Error != nil }

// RunSummary aggregates every scenario result of one benchmark run.
type RunSummary struct {
	RunID                  string                     `json:"run_id"`
	AgentName              string                     `json:"agent_name"`
	ScenarioCount          int                        `json:"scenario_count"`
	FailedCount            int                        `json:"failed_count"`
	AverageEfficiencyScore float64                    `json:"average_efficiency_score"`
	AverageScores          map[string]float64         `json:"average_scores"`
	Complete               bool                       `json:"complete"`
	StartedAt              time.Time                  `json:"started_at"`
	FinishedAt             time.Time                  `json:"finished_at"`
	Order                  []string                   `json:"order"`
	ScenarioResults        map[string]*ScenarioResult `json:"scenario_results"`
}

// NewRunSummary returns an empty summary for a run that starts now.
func NewRunSummary(runID, agentName string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:           runID,
		AgentName:       agentName,
		StartedAt:       startedAt,
		AverageScores:   map[string]float64{},
		Order:           []string{},
		ScenarioResults: map[string]*ScenarioResult{},
	}
}

// Add records r, replacing any earlier result for the same scenario, and
// refreshes the aggregates.
func (s *RunSummary) Add(r *ScenarioResult) {
	if _, seen := s.ScenarioResults[r.ScenarioID]; !seen {
		s.Order = append(s.Order, r.ScenarioID)
	}
	s.ScenarioResults[r.ScenarioID] = r
	s.Recompute()
}

// Recompute derives the counts and averages from ScenarioResults. Failed
// scenarios are counted but excluded from every average; with no successful
// scenario the averages are 0.
func (s *RunSummary) Recompute() {
	s.ScenarioCount = len(s.ScenarioResults)
	s.FailedCount = 0
	s.AverageEfficiencyScore = 0
	s.AverageScores = map[string]float64{}

	var ok int
	var effSum float64
	sums := map[string]float64{}
	for _, id := range s.IDs() {
		r := s.ScenarioResults[id]
		if r.Failed() {
			s.FailedCount++
			continue
		}
		ok++
		effSum += r.EfficiencyScore
		for name, v := range r.ComparisonScores {
			sums[name] += v
		}
	}
	if ok == 0 {
		return
	}
	s.AverageEfficiencyScore = effSum / float64(ok)
	for name, v := range sums {
		s.AverageScores[name] = v / float64(ok)
	}
}

// IDs returns the scenario ids of the run in sorted order.
func (s *RunSummary) IDs() []string {
	ids := make([]string, 0, len(s.ScenarioResults))
	for id := range s.ScenarioResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Usage totals token usage over all scenarios.
func (s *RunSummary) Usage() model.Usage {
	var u model.Usage
	for _, r := range s.ScenarioResults {
		u.InputTokens += r.Usage.InputTokens
		u.OutputTokens += r.Usage.OutputTokens
	}
	return u
}
