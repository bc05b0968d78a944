package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/config"
	"github.com/signalnine/srebench/internal/efficiency"
	"github.com/signalnine/srebench/internal/evaluator"
	"github.com/signalnine/srebench/internal/result"
	"github.com/signalnine/srebench/internal/runner"
	"github.com/signalnine/srebench/internal/scenario"
)

func TestFilterScenarios(t *testing.T) {
	ids := []string{"scenario_001", "scenario_002", "oom_001"}

	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{"empty pattern returns all", "", 3},
		{"exact match", "oom_001", 1},
		{"prefix wildcard", "scenario_*", 2},
		{"match all", "*", 3},
		{"no match", "disk_*", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterScenarios(ids, tt.pattern)
			if len(got) != tt.want {
				t.Errorf("filterScenarios(%q) returned %d, want %d", tt.pattern, len(got), tt.want)
			}
		})
	}
}

func TestMatchScenario(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		pattern string
		want    bool
	}{
		{"exact match", "scenario_001", "scenario_001", true},
		{"exact mismatch", "scenario_001", "scenario_002", false},
		{"wildcard match", "scenario_001", "scenario_*", true},
		{"wildcard mismatch", "oom_001", "scenario_*", false},
		{"empty pattern exact", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchScenario(tt.id, tt.pattern); got != tt.want {
				t.Errorf("matchScenario(%q, %q) = %v, want %v", tt.id, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestDescribeAgent(t *testing.T) {
	tests := []struct {
		cfg  agent.Config
		want string
	}{
		{agent.Config{Adapter: agent.AdapterLLM}, "llm: googleai"},
		{agent.Config{Adapter: agent.AdapterLLM, Provider: "ollama", Model: "llama3"}, "llm: ollama/llama3"},
		{agent.Config{Adapter: agent.AdapterContainer, Image: "bot:1"}, "container: bot:1"},
		{agent.Config{Adapter: agent.AdapterReplay, Dir: "rec"}, "replay: rec"},
	}
	for _, tt := range tests {
		if got := describeAgent(tt.cfg); got != tt.want {
			t.Errorf("describeAgent(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestRescoreRun(t *testing.T) {
	ctx := context.Background()
	store, err := scenario.NewStore("../testdata/scenarios", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	ev := evaluator.New(store, agent.NewReplay("replay", "../testdata/replay"), evaluator.Options{
		Timeout:    time.Second,
		Weights:    compare.DefaultWeights(),
		Efficiency: efficiency.DefaultConfig(),
	})
	base := t.TempDir()
	s, err := runner.New([]runner.Evaluator{ev}, runner.Options{ResultsDir: base}).Run(ctx, []string{"scenario_001"}, "replay")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Scoring with a zero name tier cannot change an exact component match.
	w := compare.DefaultWeights()
	w.NameMatch = 0
	runDir := result.RunDir(base, s.RunID)
	got, n, err := rescoreRun(ctx, runDir, store, compare.New(w), efficiency.New(efficiency.DefaultConfig()))
	if err != nil {
		t.Fatalf("rescoreRun: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 re-scored scenario, got %d", n)
	}
	if got.AverageScores[compare.RootCauseScore] != 1 {
		t.Errorf("expected root cause 1, got %g", got.AverageScores[compare.RootCauseScore])
	}
	if _, err := result.ReadRun(runDir); err != nil {
		t.Errorf("re-scored run is not readable: %v", err)
	}
}

func TestResolveRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base, "r1")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(runDir)
	got, err := resolveRunDir(base, nil)
	if err != nil || got != want {
		t.Errorf("latest: got %q, %v; want %q", got, err, want)
	}
	got, err = resolveRunDir(base, []string{"r1"})
	if err != nil || got != want {
		t.Errorf("by id: got %q, %v; want %q", got, err, want)
	}
	if _, err := resolveRunDir(base, []string{"missing"}); err == nil {
		t.Error("expected error for unknown run")
	}
	if _, err := os.Stat(filepath.Join(base, "latest")); err != nil {
		t.Errorf("expected latest symlink: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json", ""} {
		if _, err := newLogger(config.Log{Level: "debug", Format: format}); err != nil {
			t.Errorf("format %q: %v", format, err)
		}
	}
	if _, err := newLogger(config.Log{Level: "loud", Format: "text"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(config.Log{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
