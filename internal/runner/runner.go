// Package runner drives the evaluator over a set of scenarios and persists
// the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/signalnine/srebench/internal/result"
	"github.com/signalnine/srebench/internal/scenario"
)

var ErrUnknownAgent = errors.New("unknown agent")

// Evaluator scores scenarios for one agent.
type Evaluator interface {
	AgentName() string
	Evaluate(ctx context.Context, id string) *result.ScenarioResult
	EvaluateScenario(ctx context.Context, sc *scenario.Scenario) *result.ScenarioResult
}

// Recorder receives accepted results and retries.
type Recorder interface {
	ObserveResult(r *result.ScenarioResult)
	ObserveRetry(agentName string)
	WriteTextfile(path string) error
}

// Indexer records finished runs.
type Indexer interface {
	Upsert(ctx context.Context, s *result.RunSummary, dir string) error
}

type Options struct {
	ResultsDir string
	Parallel   int
	Retries    int
	RetryDelay time.Duration
	Metrics    Recorder
	Index      Indexer
	Logger     *slog.Logger
	// Progress is called once per accepted result, under the accumulator lock.
	Progress func(done, total int, r *result.ScenarioResult)
}

type Runner struct {
	evaluators map[string]Evaluator
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func New(evaluators []Evaluator, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	byName := make(map[string]Evaluator, len(evaluators))
	for _, ev := range evaluators {
		byName[ev.AgentName()] = ev
	}
	return &Runner{evaluators: byName, opts: opts, logger: opts.Logger, now: time.Now}
}

// Run evaluates ids with the named agent. The returned summary is persisted
// even when the run is canceled, in which case it is marked incomplete and
// the context error is returned alongside it. Persistence failures abort the
// run.
func (r *Runner) Run(ctx context.Context, ids []string, agentName string) (*result.RunSummary, error) {
	ev, ok := r.evaluators[agentName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentName)
	}
	start := r.now().UTC()
	ids = dedupe(ids)
	tasks := make([]task, len(ids))
	for i, id := range ids {
		tasks[i] = task{id: id, eval: func(ctx context.Context) *result.ScenarioResult { return ev.Evaluate(ctx, id) }}
	}
	return r.run(ctx, result.NewRunID(start), start, ev.AgentName(), tasks)
}

// RunScenario evaluates a scenario loaded outside the store as a
// one-scenario run with a custom run id.
func (r *Runner) RunScenario(ctx context.Context, sc *scenario.Scenario, agentName string) (*result.RunSummary, error) {
	ev, ok := r.evaluators[agentName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentName)
	}
	t := task{id: sc.ID, eval: func(ctx context.Context) *result.ScenarioResult { return ev.EvaluateScenario(ctx, sc) }}
	return r.run(ctx, result.CustomRunID(), r.now().UTC(), ev.AgentName(), []task{t})
}

type task struct {
	id   string
	eval func(ctx context.Context) *result.ScenarioResult
}

// accumulator is the single point where results enter the summary.
type accumulator struct {
	mu      sync.Mutex
	summary *result.RunSummary
	runDir  string
	total   int
	err     error
}

func (r *Runner) run(ctx context.Context, runID string, start time.Time, agentName string, tasks []task) (*result.RunSummary, error) {
	runDir, err := result.CreateRunDir(r.opts.ResultsDir, runID)
	if err != nil {
		return nil, err
	}
	acc := &accumulator{
		summary: result.NewRunSummary(runID, agentName, start),
		runDir:  runDir,
		total:   len(tasks),
	}
	if err := result.WriteSummary(runDir, acc.summary); err != nil {
		return nil, err
	}
	logger := r.logger.With("run_id", runID, "agent", agentName)
	logger.Info("run started", "scenarios", len(tasks), "parallel", r.opts.Parallel, "dir", runDir)

	rctx, abort := context.WithCancel(ctx)
	defer abort()

	jobs := make([]Job, len(tasks))
	for i, t := range tasks {
		jobs[i] = func() error {
			if rctx.Err() != nil {
				return nil
			}
			res := r.evaluate(rctx, t, agentName)
			if err := r.accept(acc, res); err != nil {
				abort()
				return err
			}
			return nil
		}
	}
	errs := RunPool(r.opts.Parallel, jobs)

	acc.mu.Lock()
	defer acc.mu.Unlock()
	s := acc.summary
	s.FinishedAt = r.now().UTC()
	s.Complete = len(errs) == 0 && ctx.Err() == nil && len(s.ScenarioResults) == len(tasks)
	s.Recompute()
	if err := errors.Join(errs...); err != nil {
		_ = result.WriteSummary(runDir, s)
		logger.Error("run aborted", "error", err)
		return s, err
	}
	if err := result.WriteSummary(runDir, s); err != nil {
		return s, err
	}
	if r.opts.Metrics != nil {
		if err := r.opts.Metrics.WriteTextfile(filepath.Join(runDir, result.MetricsFile)); err != nil {
			return s, err
		}
	}
	if r.opts.Index != nil {
		if err := r.opts.Index.Upsert(context.WithoutCancel(ctx), s, runDir); err != nil {
			return s, fmt.Errorf("indexing run %s: %w", runID, err)
		}
	}
	logger.Info("run finished",
		"scenarios", s.ScenarioCount,
		"failed", s.FailedCount,
		"avg_efficiency", s.AverageEfficiencyScore,
		"complete", s.Complete,
	)
	if err := ctx.Err(); err != nil {
		return s, fmt.Errorf("run %s interrupted: %w", runID, err)
	}
	return s, nil
}

// evaluate runs t, retrying agent timeouts with jittered exponential
// backoff.
func (r *Runner) evaluate(ctx context.Context, t task, agentName string) *result.ScenarioResult {
	delay := r.opts.RetryDelay
	for attempt := 1; ; attempt++ {
		res := t.eval(ctx)
		res.Attempts = attempt
		if !retriable(res) || attempt > r.opts.Retries {
			return res
		}
		if r.opts.Metrics != nil {
			r.opts.Metrics.ObserveRetry(agentName)
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		r.logger.Info("retrying scenario", "scenario", t.id, "attempt", attempt+1, "delay", delay+jitter)
		select {
		case <-ctx.Done():
			res.Error = &result.ScenarioError{
				Kind:    result.KindCanceled,
				Stage:   res.Error.Stage,
				Message: fmt.Sprintf("canceled while waiting to retry: %v", ctx.Err()),
			}
			return res
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
}

func retriable(res *result.ScenarioResult) bool {
	return res.Error != nil && res.Error.Kind == result.KindAgentTimeout
}

func (r *Runner) accept(acc *accumulator, res *result.ScenarioResult) error {
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.err != nil {
		return nil
	}
	// The summary only references results already on disk.
	if err := result.WriteScenarioResult(acc.runDir, res); err != nil {
		acc.err = err
		return err
	}
	acc.summary.Add(res)
	if err := result.WriteSummary(acc.runDir, acc.summary); err != nil {
		acc.err = err
		return err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveResult(res)
	}
	if r.opts.Progress != nil {
		r.opts.Progress(len(acc.summary.ScenarioResults), acc.total, res)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
