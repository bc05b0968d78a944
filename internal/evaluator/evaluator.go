// Package evaluator runs one scenario through an agent and scores the
// answer. Failures at any stage are recorded on the result, never returned.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/efficiency"
	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/result"
	"github.com/signalnine/srebench/internal/scenario"
)

// Stages of one evaluation.
const (
	StageLoading  = "loading"
	StageInvoking = "invoking"
	StageScoring  = "scoring"
	StageDone     = "done"
	StageFailed   = "failed"
)

const tracerName = "github.com/signalnine/srebench/internal/evaluator"

// Loader resolves scenario ids.
type Loader interface {
	Load(ctx context.Context, id string) (*scenario.Scenario, error)
}

// Recorder receives stage latencies.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
}

type Options struct {
	Timeout    time.Duration
	Weights    compare.Weights
	Efficiency efficiency.Config
	Metrics    Recorder
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

// Evaluator scores one agent. It is safe for concurrent use when the
// capability is.
type Evaluator struct {
	loader     Loader
	agent      agent.Capability
	timeout    time.Duration
	comparator *compare.Comparator
	efficiency *efficiency.Evaluator
	metrics    Recorder
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

func New(loader Loader, c agent.Capability, opts Options) *Evaluator {
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Evaluator{
		loader:     loader,
		agent:      c,
		timeout:    opts.Timeout,
		comparator: compare.New(opts.Weights),
		efficiency: efficiency.New(opts.Efficiency),
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		logger:     opts.Logger.With("agent", c.Name()),
		now:        time.Now,
	}
}

// AgentName returns the name of the evaluated agent.
func (e *Evaluator) AgentName() string { return e.agent.Name() }

// Evaluate loads scenario id and evaluates it.
func (e *Evaluator) Evaluate(ctx context.Context, id string) *result.ScenarioResult {
	ctx, span := e.tracer.Start(ctx, "scenario.evaluate", trace.WithAttributes(
		attribute.String("srebench.scenario_id", id),
		attribute.String("srebench.agent", e.agent.Name()),
	))
	defer span.End()

	res := e.newResult(id)
	var sc *scenario.Scenario
	err := e.stage(ctx, StageLoading, func(ctx context.Context) error {
		var err error
		sc, err = e.loader.Load(ctx, id)
		return err
	})
	if err != nil {
		return e.fail(span, res, StageLoading, err)
	}
	return e.run(ctx, span, res, sc)
}

// EvaluateScenario evaluates an already loaded scenario, such as one read
// from outside the store.
func (e *Evaluator) EvaluateScenario(ctx context.Context, sc *scenario.Scenario) *result.ScenarioResult {
	ctx, span := e.tracer.Start(ctx, "scenario.evaluate", trace.WithAttributes(
		attribute.String("srebench.scenario_id", sc.ID),
		attribute.String("srebench.agent", e.agent.Name()),
	))
	defer span.End()
	return e.run(ctx, span, e.newResult(sc.ID), sc)
}

func (e *Evaluator) newResult(id string) *result.ScenarioResult {
	now := e.now()
	return &result.ScenarioResult{
		ScenarioID: id,
		AgentName:  e.agent.Name(),
		StartedAt:  now,
		FinishedAt: now,
		Attempts:   1,
	}
}

func (e *Evaluator) run(ctx context.Context, span trace.Span, res *result.ScenarioResult, sc *scenario.Scenario) *result.ScenarioResult {
	var out *model.AgentOutput
	res.StartedAt = e.now()
	err := e.stage(ctx, StageInvoking, func(ctx context.Context) error {
		var err error
		out, err = agent.Run(ctx, e.agent, sc, e.timeout)
		return err
	})
	res.FinishedAt = e.now()
	res.ElapsedSeconds = max(res.FinishedAt.Sub(res.StartedAt).Seconds(), 0)
	if err != nil {
		return e.fail(span, res, StageInvoking, err)
	}
	res.AgentOutput = out
	res.Usage = out.Usage()

	err = e.stage(ctx, StageScoring, func(context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scoring panicked: %v", r)
			}
		}()
		cmp := e.comparator.Compare(out, sc.GroundTruth)
		res.ComparisonScores = cmp.Scores
		res.ComparisonDiagnostics = &cmp.Diagnostics
		res.EfficiencyScore = e.efficiency.Evaluate(out.ExecutionTrace, res.StartedAt, res.FinishedAt)
		return nil
	})
	if err != nil {
		res.ComparisonScores, res.ComparisonDiagnostics, res.EfficiencyScore = nil, nil, 0
		return e.fail(span, res, StageScoring, err)
	}

	span.SetAttributes(
		attribute.Float64("srebench.root_cause_score", res.ComparisonScores[compare.RootCauseScore]),
		attribute.Float64("srebench.causal_chain_score", res.ComparisonScores[compare.CausalChainScore]),
		attribute.Float64("srebench.efficiency_score", res.EfficiencyScore),
	)
	e.logger.Info("scenario scored",
		"scenario", res.ScenarioID,
		"root_cause", res.ComparisonScores[compare.RootCauseScore],
		"causal_chain", res.ComparisonScores[compare.CausalChainScore],
		"resolution", res.ComparisonScores[compare.ResolutionScore],
		"efficiency", res.EfficiencyScore,
	)
	return res
}

// stage runs fn inside a span and records its latency.
func (e *Evaluator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "scenario."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	if e.metrics != nil {
		e.metrics.ObserveStage(name, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Evaluator) fail(span trace.Span, res *result.ScenarioResult, stage string, err error) *result.ScenarioResult {
	res.Error = &result.ScenarioError{
		Kind:    Classify(err),
		Stage:   stage,
		Message: err.Error(),
	}
	var merr *agent.MalformedOutputError
	if errors.As(err, &merr) {
		res.Error.RawResponse = merr.Raw
	}
	span.SetStatus(codes.Error, string(res.Error.Kind))
	span.SetAttributes(attribute.String("srebench.error_kind", string(res.Error.Kind)))
	e.logger.Warn("scenario failed", "scenario", res.ScenarioID, "stage", stage, "kind", res.Error.Kind, "error", err)
	return res
}

// Classify maps an evaluation error to its recorded kind.
func Classify(err error) result.ErrorKind {
	switch {
	case errors.Is(err, scenario.ErrNotFound):
		return result.KindScenarioNotFound
	case errors.Is(err, scenario.ErrMalformed):
		return result.KindScenarioMalformed
	case errors.Is(err, agent.ErrTimeout):
		return result.KindAgentTimeout
	case errors.Is(err, agent.ErrOutputMalformed):
		return result.KindAgentOutputMalformed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return result.KindCanceled
	default:
		return result.KindInternal
	}
}
