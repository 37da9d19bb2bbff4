// Package executor runs the three-layer pipeline for one test unit: fact
// establishment, constitutional reasoning, then integrity evaluation by the
// evaluator model.
//
// Each layer calls the gateway, writes a raw record for every call, parses
// the response and checks it for truncation. Truncated responses are retried
// with the next ladder budget; transient gateway errors are retried at the
// same budget with exponential backoff. A parsed layer is checkpointed so a
// re-executed unit resumes after it. The unit's fate is reported to the state
// store: completed with its result, failed (retryable or terminal), or
// released when the run is cancelled.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"crucible/internal/catalog"
	"crucible/internal/gateway"
	"crucible/internal/logging"
	"crucible/internal/parser"
	"crucible/internal/prompts"
	"crucible/internal/services"
	"crucible/internal/state"
	"crucible/internal/truncation"
)

// Store is the slice of the state store the executor writes through.
type Store interface {
	Transition(ctx context.Context, testID string, t state.Transition) error
	SaveCheckpoint(ctx context.Context, testID string, layer state.LayerResult) error
	Checkpoints(ctx context.Context, testID string) ([]state.LayerResult, error)
	RecordRaw(rec *state.RawRecord) (string, error)
}

// Options carries the per-run settings.
type Options struct {
	ExperimentID      string
	Models            map[string]gateway.ModelRef
	EvaluatorModel    string
	Temperature       float64
	TimeoutSeconds    int
	Budgets           map[prompts.Layer]int
	TransientAttempts int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

// Dependencies are the collaborators of an Executor.
type Dependencies struct {
	Gateway  gateway.Gateway
	Store    Store
	Catalog  *catalog.Catalog
	Prompts  prompts.Builder
	Parser   *parser.Parser
	Detector *truncation.Detector
	Logger   *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithClock replaces the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor runs units.
type Executor struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// New validates dependencies and returns an Executor.
func New(deps Dependencies, opts Options, options ...Option) (*Executor, error) {
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("executor: gateway is required")
	case deps.Store == nil:
		return nil, errors.New("executor: state store is required")
	case deps.Catalog == nil:
		return nil, errors.New("executor: catalog is required")
	case deps.Prompts == nil:
		return nil, errors.New("executor: prompt builder is required")
	case deps.Detector == nil:
		return nil, errors.New("executor: truncation detector is required")
	}
	if _, ok := opts.Models[opts.EvaluatorModel]; !ok {
		return nil, fmt.Errorf("executor: evaluator model %q is not configured", opts.EvaluatorModel)
	}
	if opts.TransientAttempts < 1 {
		opts.TransientAttempts = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Parser == nil {
		deps.Parser = parser.New(logger)
	}
	e := &Executor{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "executor"),
		sleep:  sleepWithContext,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// Execute runs unit to completion or to a typed failure. Unit failures come
// back as *ExecutionError after the store has been told; any other error is
// an infrastructure failure the caller should stop on.
func (e *Executor) Execute(ctx context.Context, unit state.Unit) (*state.TestResult, error) {
	ctx = services.WithTestID(ctx, unit.TestID)
	logger := logging.WithContext(ctx, e.logger)

	if err := e.deps.Store.Transition(ctx, unit.TestID, state.Transition{Kind: state.TransitionStart}); err != nil {
		return nil, fmt.Errorf("start unit: %w", err)
	}
	startedAt := e.now()
	logger.Info("unit started",
		logging.String("model", unit.ModelID),
		logging.Int("ordinal", unit.Ordinal),
		logging.Int("retry_count", unit.RetryCount),
		logging.String(logging.FieldEventType, "unit_started"),
	)

	layers, execErr := e.runLayers(ctx, unit)
	if execErr != nil {
		return nil, e.settleFailure(ctx, logger, unit, execErr)
	}

	result := &state.TestResult{
		TestID:         unit.TestID,
		ExperimentID:   e.opts.ExperimentID,
		ScenarioID:     unit.ScenarioID,
		ConstitutionID: unit.ConstitutionID,
		ModelID:        unit.ModelID,
		EvaluatorModel: e.opts.EvaluatorModel,
		Layers:         layers,
		StartedAt:      startedAt,
		CompletedAt:    e.now(),
	}
	for _, layer := range layers {
		if layer.ManualReview() {
			result.ManualReview = true
		}
	}
	if err := e.deps.Store.Transition(ctx, unit.TestID, state.Transition{Kind: state.TransitionComplete, Result: result}); err != nil {
		return nil, fmt.Errorf("complete unit: %w", err)
	}

	attrs := []logging.Attr{
		logging.Duration("duration", result.CompletedAt.Sub(startedAt)),
		logging.Bool("manual_review", result.ManualReview),
		logging.String(logging.FieldEventType, "unit_completed"),
	}
	if result.ManualReview {
		logging.WarnWithContext(logger, "unit completed with layers needing manual review", "unit_manual_review",
			logging.Any("layers", result.ManualReviewLayers()),
			logging.String(logging.FieldErrorHint, "read the raw text stored in the result artifact"),
			logging.String(logging.FieldImpact, "unit counted as completed and flagged in the manifest"),
		)
	}
	logger.Info("unit completed", logging.Args(attrs...)...)
	return result, nil
}

func (e *Executor) runLayers(ctx context.Context, unit state.Unit) ([]state.LayerResult, *ExecutionError) {
	checkpoints, err := e.deps.Store.Checkpoints(ctx, unit.TestID)
	if err != nil {
		// Without checkpoints the unit simply starts over.
		e.logger.Warn("checkpoint lookup failed",
			logging.String(logging.FieldTestID, unit.TestID),
			logging.Error(err),
		)
		checkpoints = nil
	}
	saved := make(map[prompts.Layer]state.LayerResult, len(checkpoints))
	for _, cp := range checkpoints {
		saved[prompts.Layer(cp.Layer)] = cp
	}

	results := make([]state.LayerResult, 0, len(prompts.Layers))
	for _, layer := range prompts.Layers {
		if cp, ok := saved[layer]; ok {
			e.logger.Debug("layer restored from checkpoint",
				logging.String(logging.FieldTestID, unit.TestID),
				logging.String(logging.FieldLayer, layer.Name()),
			)
			results = append(results, cp)
			continue
		}
		result, execErr := e.runLayer(ctx, unit, layer, results)
		if execErr != nil {
			return nil, execErr
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Executor) settleFailure(ctx context.Context, logger *slog.Logger, unit state.Unit, execErr *ExecutionError) error {
	// The run context may already be cancelled; the store still has to hear
	// about the unit.
	storeCtx := context.WithoutCancel(ctx)

	if execErr.Kind == KindInterrupted {
		if err := e.deps.Store.Transition(storeCtx, unit.TestID, state.Transition{Kind: state.TransitionRelease}); err != nil {
			return errors.Join(execErr, fmt.Errorf("release unit: %w", err))
		}
		logger.Info("unit released after interruption",
			logging.String(logging.FieldLayer, execErr.Layer.Name()),
			logging.String(logging.FieldEventType, "unit_released"),
		)
		return execErr
	}

	if err := e.deps.Store.Transition(storeCtx, unit.TestID, state.Transition{
		Kind:        state.TransitionFail,
		Error:       execErr.Error(),
		FailureKind: string(execErr.Kind),
		Terminal:    execErr.Terminal(),
	}); err != nil {
		return errors.Join(execErr, fmt.Errorf("record unit failure: %w", err))
	}
	logging.WarnWithContext(logger, "unit attempt failed", "unit_failed",
		logging.String(logging.FieldLayer, execErr.Layer.Name()),
		logging.String(logging.FieldErrorKind, string(execErr.Kind)),
		logging.Bool("terminal", execErr.Terminal()),
		logging.Error(execErr.Err),
		logging.String(logging.FieldErrorHint, failureHint(execErr.Kind)),
		logging.String(logging.FieldImpact, failureImpact(execErr.Terminal())),
	)
	return execErr
}

func failureHint(kind Kind) string {
	switch kind {
	case KindPermanent:
		return "check provider credentials, model name and request settings"
	case KindTruncation:
		return "raise the top rung of token_ladder or shorten the prompt"
	default:
		return "provider kept failing; the unit is retried on the next pass until max_retries"
	}
}

func failureImpact(terminal bool) string {
	if terminal {
		return "unit failed; requeue it with crucible retry after fixing the cause"
	}
	return "unit returned to pending"
}

func (e *Executor) modelFor(unit state.Unit, layer prompts.Layer) (gateway.ModelRef, error) {
	id := unit.ModelID
	if layer == prompts.LayerIntegrity {
		id = e.opts.EvaluatorModel
	}
	ref, ok := e.opts.Models[id]
	if !ok {
		return gateway.ModelRef{}, services.Wrap(services.ErrConfiguration, "executor", "resolve model", fmt.Sprintf("model %q is not configured", id), nil)
	}
	return ref, nil
}

func (e *Executor) buildPrompt(unit state.Unit, layer prompts.Layer, prior []state.LayerResult) (gateway.Prompt, error) {
	scenario, ok := e.deps.Catalog.Scenario(unit.ScenarioID)
	if !ok {
		return gateway.Prompt{}, services.Wrap(services.ErrNotFound, "executor", "build prompt", "scenario "+unit.ScenarioID, nil)
	}
	if layer == prompts.LayerFacts {
		return e.deps.Prompts.Facts(scenario)
	}
	constitution, ok := e.deps.Catalog.Constitution(unit.ConstitutionID)
	if !ok {
		return gateway.Prompt{}, services.Wrap(services.ErrNotFound, "executor", "build prompt", "constitution "+unit.ConstitutionID, nil)
	}
	if len(prior) < int(layer)-1 {
		return gateway.Prompt{}, fmt.Errorf("layer %s built without its predecessors", layer)
	}
	facts := prior[0].Output()
	if layer == prompts.LayerReasoning {
		return e.deps.Prompts.Reasoning(scenario, constitution, facts)
	}
	return e.deps.Prompts.Integrity(scenario, constitution, facts, prior[1].Output())
}

// runLayer drives one layer through the truncation ladder.
func (e *Executor) runLayer(ctx context.Context, unit state.Unit, layer prompts.Layer, prior []state.LayerResult) (state.LayerResult, *ExecutionError) {
	ctx = services.WithLayer(ctx, layer.Name())
	logger := logging.WithContext(ctx, e.logger)
	fail := func(kind Kind, err error) (state.LayerResult, *ExecutionError) {
		return state.LayerResult{}, &ExecutionError{Kind: kind, TestID: unit.TestID, Layer: layer, Err: err}
	}

	model, err := e.modelFor(unit, layer)
	if err != nil {
		return fail(KindPermanent, err)
	}
	prompt, err := e.buildPrompt(unit, layer, prior)
	if err != nil {
		return fail(KindPermanent, err)
	}
	schema := layer.Schema()

	budget := e.opts.Budgets[layer]
	if budget <= 0 {
		budget = e.deps.Detector.Ladder().Max()
	}
	started := time.Now()
	var (
		calls      int
		rawRecords []string
	)
	for {
		gen := gateway.GenerationConfig{
			MaxOutputTokens: budget,
			Temperature:     e.opts.Temperature,
			TimeoutSeconds:  e.opts.TimeoutSeconds,
		}
		resp, paths, n, err := e.callWithRetry(ctx, logger, unit, layer, model, prompt, gen)
		calls += n
		rawRecords = append(rawRecords, paths...)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return fail(KindInterrupted, ctx.Err())
			case gateway.IsPermanent(err):
				return fail(KindPermanent, err)
			default:
				return fail(KindTransientExhausted, err)
			}
		}

		out := e.deps.Parser.Parse(resp.Text, schema)
		verdict := e.deps.Detector.Assess(truncation.Input{
			Text:               resp.Text,
			FinishReason:       resp.FinishReason,
			AttemptedMaxTokens: budget,
			OutputTokens:       resp.Usage.OutputTokens,
			ParseStatus:        out.Status,
			ExpectJSON:         true,
		})
		path, err := e.recordResponse(unit, layer, model, gen, resp, out, verdict)
		if err != nil {
			return fail(KindTransientExhausted, err)
		}
		rawRecords = append(rawRecords, path)

		if verdict.Truncated {
			reasons := make([]string, 0, len(verdict.Reasons))
			for _, r := range verdict.Reasons {
				reasons = append(reasons, string(r))
			}
			if verdict.Exhausted {
				return fail(KindTruncation, services.Wrap(
					services.ErrTruncation, "executor", "run layer",
					fmt.Sprintf("still truncated at %d tokens (%v)", budget, reasons), nil,
				))
			}
			logger.Info("response truncated; escalating token budget",
				logging.Int("attempted_max_tokens", budget),
				logging.Int("next_max_tokens", verdict.NextBudget),
				logging.Any("reasons", reasons),
				logging.String(logging.FieldEventType, "truncation_retry"),
			)
			budget = verdict.NextBudget
			continue
		}

		result := state.LayerResult{
			Layer:        int(layer),
			Name:         layer.Name(),
			Model:        model.ID,
			Provider:     model.Provider,
			ParseStatus:  out.Status,
			Strategy:     out.Strategy,
			Fields:       out.Fields,
			Missing:      out.Missing,
			TokenBudget:  budget,
			Calls:        calls,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
			Duration:     time.Since(started),
			RawRecords:   rawRecords,
			Attempts:     out.Attempts,
		}
		if out.ManualReview() {
			result.RawText = out.RawText
		}
		if err := e.deps.Store.SaveCheckpoint(ctx, unit.TestID, result); err != nil {
			if ctx.Err() != nil {
				return fail(KindInterrupted, ctx.Err())
			}
			// The layer result is still good; only resumability suffers.
			logging.WarnWithContext(logger, "checkpoint save failed", "checkpoint_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a re-executed unit repeats this layer"),
			)
		}
		logger.Debug("layer parsed",
			logging.String("parse_status", string(out.Status)),
			logging.String("strategy", out.Strategy),
			logging.Int("calls", calls),
			logging.Int("token_budget", budget),
		)
		return result, nil
	}
}

var errRecordFailed = errors.New("raw record write failed")

// callWithRetry retries transient gateway errors at a fixed budget. Every
// failed call is recorded; the successful one is recorded by the caller once
// parsed. It returns the raw record paths written and the number of calls.
func (e *Executor) callWithRetry(
	ctx context.Context,
	logger *slog.Logger,
	unit state.Unit,
	layer prompts.Layer,
	model gateway.ModelRef,
	prompt gateway.Prompt,
	gen gateway.GenerationConfig,
) (gateway.RawResponse, []string, int, error) {
	var paths []string
	for attempt := 1; ; attempt++ {
		resp, err := e.deps.Gateway.Call(ctx, model, prompt, gen)
		if err == nil {
			return resp, paths, attempt, nil
		}

		path, recErr := e.deps.Store.RecordRaw(&state.RawRecord{
			TestID:      unit.TestID,
			Layer:       int(layer),
			Model:       model.ID,
			Provider:    model.Provider,
			MaxTokens:   gen.MaxOutputTokens,
			Temperature: gen.Temperature,
			TimeoutSecs: gen.TimeoutSeconds,
			ParseStatus: state.ParseStatusCallFailed,
			Error:       err.Error(),
		})
		if recErr != nil {
			return gateway.RawResponse{}, paths, attempt, fmt.Errorf("%w: %w", errRecordFailed, recErr)
		}
		paths = append(paths, filepath.Base(path))

		if ctx.Err() != nil || gateway.IsPermanent(err) {
			return gateway.RawResponse{}, paths, attempt, err
		}
		if attempt >= e.opts.TransientAttempts {
			return gateway.RawResponse{}, paths, attempt, fmt.Errorf("%d transient failures: %w", attempt, err)
		}
		delay := backoffDelay(attempt, e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, gateway.RetryAfterOf(err))
		logger.Info("transient gateway error; retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", e.opts.TransientAttempts),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "transient_retry"),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return gateway.RawResponse{}, paths, attempt, err
		}
	}
}

func (e *Executor) recordResponse(
	unit state.Unit,
	layer prompts.Layer,
	model gateway.ModelRef,
	gen gateway.GenerationConfig,
	resp gateway.RawResponse,
	out parser.Output,
	verdict truncation.Verdict,
) (string, error) {
	rec := &state.RawRecord{
		TestID:       unit.TestID,
		Layer:        int(layer),
		Model:        model.ID,
		Provider:     model.Provider,
		RequestID:    resp.RequestID,
		Text:         resp.Text,
		MaxTokens:    gen.MaxOutputTokens,
		Temperature:  gen.Temperature,
		TimeoutSecs:  gen.TimeoutSeconds,
		FinishReason: resp.FinishReason,
		ProviderStop: resp.ProviderFinishReason,
		Usage:        resp.Usage,
		ParseStatus:  string(out.Status),
		Strategy:     out.Strategy,
		Truncated:    verdict.Truncated,
		Latency:      resp.Latency,
	}
	for _, r := range verdict.Reasons {
		rec.TruncReasons = append(rec.TruncReasons, string(r))
	}
	path, err := e.deps.Store.RecordRaw(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errRecordFailed, err)
	}
	return filepath.Base(path), nil
}
