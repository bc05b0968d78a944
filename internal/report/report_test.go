package report_test

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/pricing"
	"github.com/signalnine/srebench/internal/report"
	"github.com/signalnine/srebench/internal/result"
)

func writeRun(t *testing.T) string {
	t.Helper()
	runDir := filepath.Join(t.TempDir(), "runs", "test-run")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	s := result.NewRunSummary("test-run", "gemini", time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	results := []*result.ScenarioResult{
		{
			ScenarioID: "scenario_001",
			AgentName:  "gemini",
			ComparisonScores: map[string]float64{
				compare.RootCauseScore:   1,
				compare.CausalChainScore: 0.5,
				compare.ResolutionScore:  1,
			},
			EfficiencyScore: 0.8,
			Attempts:        1,
			Usage:           model.Usage{InputTokens: 1000, OutputTokens: 200},
		},
		{
			ScenarioID: "scenario_002",
			AgentName:  "gemini",
			ComparisonScores: map[string]float64{
				compare.RootCauseScore:   0.5,
				compare.CausalChainScore: 0.5,
				compare.ResolutionScore:  0,
			},
			EfficiencyScore: 0.4,
			Attempts:        1,
			Usage:           model.Usage{InputTokens: 1000, OutputTokens: 300},
		},
		{
			ScenarioID: "scenario_003",
			AgentName:  "gemini",
			Error:      &result.ScenarioError{Kind: result.KindAgentTimeout, Stage: "invoking", Message: "timed out"},
			Attempts:   3,
		},
	}
	for _, r := range results {
		if err := result.WriteScenarioResult(runDir, r); err != nil {
			t.Fatal(err)
		}
		s.Add(r)
	}
	s.Complete = true
	if err := result.WriteSummary(runDir, s); err != nil {
		t.Fatal(err)
	}
	return runDir
}

func TestGenerateTable(t *testing.T) {
	runDir := writeRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "table", &buf, report.Options{Composite: compare.DefaultWeights().Composite}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"test-run", "gemini", "scenario_001", "scenario_002", "agent_timeout", "MEAN", "cost: n/a"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestGenerateMarkdown(t *testing.T) {
	runDir := writeRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "markdown", &buf, report.Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(buf.String(), "| scenario_003 | - | - | - | - | - | agent_timeout |") {
		t.Errorf("expected failed row in markdown:\n%s", buf.String())
	}
}

func TestBuildMeansAndCost(t *testing.T) {
	runDir := writeRun(t)
	s, err := result.ReadRun(runDir)
	if err != nil {
		t.Fatal(err)
	}
	table := &pricing.Table{Providers: map[string]map[string]pricing.ModelPricing{
		"googleai": {"gemini-2.0-flash": {Input: 0.1, Output: 1}},
	}}
	r := report.Build(s, report.Options{
		Composite: compare.DefaultWeights().Composite,
		Pricing:   table,
		Provider:  "googleai",
		Model:     "gemini-2.0-flash",
	})
	if r.ScenarioCount != 3 || r.FailedCount != 1 {
		t.Errorf("unexpected counts %d/%d", r.ScenarioCount, r.FailedCount)
	}
	// (0.4+0.2+0.2) and (0.2+0.2+0) over weight 1.0
	if want := (0.8 + 0.4) / 2; math.Abs(r.MeanComposite-want) > 1e-9 {
		t.Errorf("mean composite = %g, want %g", r.MeanComposite, want)
	}
	if math.Abs(r.MeanEfficiency-0.6) > 1e-9 {
		t.Errorf("mean efficiency = %g, want 0.6", r.MeanEfficiency)
	}
	if r.InputTokens != 2000 || r.OutputTokens != 500 {
		t.Errorf("unexpected tokens %d/%d", r.InputTokens, r.OutputTokens)
	}
	if r.CostUSD == nil || math.Abs(*r.CostUSD-0.7) > 1e-9 {
		t.Errorf("unexpected cost %v", r.CostUSD)
	}
	if len(r.Scenarios) != 3 || r.Scenarios[2].Error != "agent_timeout" || r.Scenarios[2].Attempts != 3 {
		t.Errorf("unexpected rows %+v", r.Scenarios)
	}
}

func TestGenerateJSON(t *testing.T) {
	runDir := writeRun(t)
	var buf bytes.Buffer
	if err := report.Generate(runDir, "json", &buf, report.Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var r report.RunReport
	if err := json.Unmarshal(buf.Bytes(), &r); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if r.RunID != "test-run" || len(r.Scenarios) != 3 || r.CostUSD != nil {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestGenerateUnknownFormat(t *testing.T) {
	runDir := writeRun(t)
	if err := report.Generate(runDir, "pdf", &bytes.Buffer{}, report.Options{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestGenerateMissingRun(t *testing.T) {
	if err := report.Generate(t.TempDir(), "table", &bytes.Buffer{}, report.Options{}); err == nil {
		t.Error("expected error for a directory without a run")
	}
}
