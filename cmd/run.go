package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/config"
	"github.com/signalnine/srebench/internal/evaluator"
	"github.com/signalnine/srebench/internal/metrics"
	"github.com/signalnine/srebench/internal/report"
	"github.com/signalnine/srebench/internal/result"
	"github.com/signalnine/srebench/internal/runner"
	"github.com/signalnine/srebench/internal/scenario"
	"github.com/signalnine/srebench/internal/telemetry"
)

var (
	flagAgent    string
	flagScenario []string
	flagMatch    string
	flagParallel int
	flagRetries  int
	flagFormat   string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark run",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagAgent, "agent", "", "agent to evaluate (default: first configured agent)")
	cmd.Flags().StringSliceVar(&flagScenario, "scenario", nil, "scenario ids to run (default: all)")
	cmd.Flags().StringVar(&flagMatch, "match", "", "filter scenario ids by exact id or prefix ending in *")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "override max concurrent evaluations")
	cmd.Flags().IntVar(&flagRetries, "retries", -1, "override retries after an agent timeout")
	cmd.Flags().StringVar(&flagFormat, "format", "table", "report format (table, markdown, json)")
	return cmd
}

// pipeline is everything a run needs, built from the config.
type pipeline struct {
	cfg      *config.Config
	agent    agent.Config
	store    *scenario.Store
	metrics  *metrics.Recorder
	index    *result.Index
	runner   *runner.Runner
	shutdown telemetry.Shutdown
}

func newPipeline(ctx context.Context, cfg *config.Config, agentName string) (*pipeline, error) {
	if agentName == "" {
		agentName = cfg.Agents[0].Name
	}
	ac, ok := cfg.Agent(agentName)
	if !ok {
		return nil, fmt.Errorf("agent %q is not configured", agentName)
	}
	store, err := scenario.NewStore(cfg.Scenarios.Dir, cfg.Scenarios.CacheSize, nil)
	if err != nil {
		return nil, err
	}
	capability, err := agent.New(ctx, ac, nil)
	if err != nil {
		return nil, err
	}
	shutdown, err := startTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	idx, err := result.OpenIndex(ctx, result.IndexPath(cfg.Results.Dir))
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	rec := metrics.New()
	ev := evaluator.New(store, capability, evaluator.Options{
		Timeout:    cfg.AgentTimeout(ac),
		Weights:    cfg.Scoring,
		Efficiency: cfg.Efficiency,
		Metrics:    rec,
		Tracer:     telemetry.Tracer("github.com/signalnine/srebench/internal/evaluator"),
	})
	r := runner.New([]runner.Evaluator{ev}, runner.Options{
		ResultsDir: cfg.Results.Dir,
		Parallel:   cfg.Run.Parallel,
		Retries:    cfg.Run.Retries,
		RetryDelay: cfg.Run.RetryDelay,
		Metrics:    rec,
		Index:      idx,
		Progress:   printProgress,
	})
	return &pipeline{cfg: cfg, agent: ac, store: store, metrics: rec, index: idx, runner: r, shutdown: shutdown}, nil
}

func (p *pipeline) Close(ctx context.Context) {
	p.index.Close()
	p.shutdown(context.WithoutCancel(ctx))
}

// printReport renders the run that was just written.
func (p *pipeline) printReport(s *result.RunSummary, format string) error {
	fmt.Println("\n--- Results ---")
	return report.Write(report.Build(s, reportOptions(p.cfg, p.agent)), format, os.Stdout)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagParallel > 0 {
		cfg.Run.Parallel = flagParallel
	}
	if flagRetries >= 0 {
		cfg.Run.Retries = flagRetries
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg, flagAgent)
	if err != nil {
		return err
	}
	defer p.Close(ctx)

	ids := flagScenario
	if len(ids) == 0 {
		if ids, err = p.store.List(); err != nil {
			return err
		}
	}
	ids = filterScenarios(ids, flagMatch)
	if len(ids) == 0 {
		return fmt.Errorf("no scenarios selected in %s", cfg.Scenarios.Dir)
	}

	fmt.Printf("Running %d scenarios with %s (parallel %d)...\n", len(ids), p.agent.Name, cfg.Run.Parallel)
	s, runErr := p.runner.Run(ctx, ids, p.agent.Name)
	if s == nil {
		return runErr
	}
	fmt.Printf("Run directory: %s\n", result.RunDir(cfg.Results.Dir, s.RunID))
	if err := p.printReport(s, flagFormat); err != nil {
		return err
	}
	return runErr
}

func printProgress(done, total int, r *result.ScenarioResult) {
	prefix := fmt.Sprintf("[%d/%d] %s", done, total, r.ScenarioID)
	if r.Failed() {
		color.Red("%s  FAILED %s: %s", prefix, r.Error.Kind, r.Error.Message)
		return
	}
	color.Green("%s  ok  root_cause=%.2f causal_chain=%.2f efficiency=%.2f",
		prefix, r.ComparisonScores[compare.RootCauseScore], r.ComparisonScores[compare.CausalChainScore], r.EfficiencyScore)
}

func filterScenarios(ids []string, pattern string) []string {
	if pattern == "" {
		return ids
	}
	var filtered []string
	for _, id := range ids {
		if matchScenario(id, pattern) {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

func matchScenario(id, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(id, strings.TrimSuffix(pattern, "*"))
	}
	return id == pattern
}
