package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/efficiency"
	"github.com/signalnine/srebench/internal/result"
	"github.com/signalnine/srebench/internal/scenario"
)

func newRescoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore <run-id>",
		Short: "Re-score an existing run",
		Long:  "Compare each persisted agent output of a run against the current ground truth and scoring weights, updating results.json and summary.json in place.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			runDir, err := resolveRunDir(cfg.Results.Dir, args)
			if err != nil {
				return err
			}
			store, err := scenario.NewStore(cfg.Scenarios.Dir, cfg.Scenarios.CacheSize, nil)
			if err != nil {
				return err
			}
			s, n, err := rescoreRun(ctx, runDir, store, compare.New(cfg.Scoring), efficiency.New(cfg.Efficiency))
			if err != nil {
				return err
			}
			idx, err := result.OpenIndex(ctx, result.IndexPath(cfg.Results.Dir))
			if err != nil {
				return err
			}
			defer idx.Close()
			if err := idx.Upsert(ctx, s, runDir); err != nil {
				return err
			}
			fmt.Printf("Re-scored %d of %d scenarios in %s\n", n, s.ScenarioCount, s.RunID)
			return nil
		},
	}
}

// rescoreRun recomputes the scores of every successful result in runDir.
// Failed results have no output to score and are left as they are.
func rescoreRun(ctx context.Context, runDir string, store *scenario.Store, cmp *compare.Comparator, eff *efficiency.Evaluator) (*result.RunSummary, int, error) {
	s, err := result.ReadRun(runDir)
	if err != nil {
		return nil, 0, err
	}
	n := 0
	for _, id := range s.IDs() {
		res := s.ScenarioResults[id]
		if res.Failed() || res.AgentOutput == nil {
			continue
		}
		sc, err := store.Load(ctx, id)
		if err != nil {
			slog.Warn("skipping scenario", "scenario", id, "error", err)
			continue
		}
		old := res.ComparisonScores[compare.RootCauseScore]
		c := cmp.Compare(res.AgentOutput, sc.GroundTruth)
		res.ComparisonScores = c.Scores
		res.ComparisonDiagnostics = &c.Diagnostics
		res.EfficiencyScore = eff.Evaluate(res.AgentOutput.ExecutionTrace, res.StartedAt, res.FinishedAt)
		if err := result.WriteScenarioResult(runDir, res); err != nil {
			return nil, n, err
		}
		slog.Info("re-scored", "scenario", id, "root_cause_before", old, "root_cause", c.Scores[compare.RootCauseScore])
		n++
	}
	s.Recompute()
	if err := result.WriteSummary(runDir, s); err != nil {
		return nil, n, err
	}
	return s, n, nil
}
