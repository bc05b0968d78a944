package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalnine/srebench/internal/metrics"
	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := metrics.New()
	r.ObserveResult(&result.ScenarioResult{
		ScenarioID:       "scenario_001",
		AgentName:        "gemini",
		ComparisonScores: map[string]float64{"root_cause_score": 1},
		EfficiencyScore:  2.5,
		Usage:            model.Usage{InputTokens: 100, OutputTokens: 20},
	})
	r.ObserveResult(&result.ScenarioResult{
		ScenarioID: "scenario_002",
		AgentName:  "gemini",
		Error:      &result.ScenarioError{Kind: result.KindAgentTimeout},
	})
	r.ObserveRetry("gemini")
	r.ObserveStage("invoking", 1500*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ScenariosTotal.WithLabelValues("gemini", metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ScenariosTotal.WithLabelValues("gemini", "agent_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RetriesTotal.WithLabelValues("gemini")))
	assert.Equal(t, 2.5, testutil.ToFloat64(r.Efficiency.WithLabelValues("gemini", "scenario_001")))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.Tokens.WithLabelValues("gemini", "input")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Scores))
}

func TestWriteTextfile(t *testing.T) {
	r := metrics.New()
	r.ObserveRetry("ollama")
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `srebench_scenario_retries_total{agent="ollama"} 1`))
}
