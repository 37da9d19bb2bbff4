// Package orchestrator drives an experiment to completion: it creates or
// resumes the unit matrix, executes pending units pass after pass in paced
// round-robin batches, and reports a Summary.
//
// Unit failures are data recorded in the state store. Only infrastructure
// errors (state writes) and cancellation end a run early; either way the
// on-disk state stays resumable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"crucible/internal/executor"
	"crucible/internal/logging"
	"crucible/internal/notifications"
	"crucible/internal/services"
	"crucible/internal/state"
)

// Store is the slice of the state store the orchestrator needs.
type Store interface {
	Create(ctx context.Context, matrix state.Matrix) (state.Experiment, error)
	Resume(ctx context.Context, matrix state.Matrix) (*state.Experiment, error)
	PendingAndRetryable(ctx context.Context) ([]state.Unit, error)
	Unit(ctx context.Context, testID string) (*state.Unit, error)
	Counts(ctx context.Context) (state.Counts, error)
	SetExperimentStatus(ctx context.Context, status state.ExperimentStatus) error
	WriteMetadata(v any) error
}

// UnitExecutor runs a single unit. *executor.Executor implements it.
type UnitExecutor interface {
	Execute(ctx context.Context, unit state.Unit) (*state.TestResult, error)
}

// ExecutorFactory builds the executor once the experiment identity is known.
type ExecutorFactory func(exp state.Experiment) (UnitExecutor, error)

// Options tune pacing.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Orchestrator runs experiments.
type Orchestrator struct {
	store    Store
	executor ExecutorFactory
	notifier notifications.Service
	opts     Options
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the inter-batch pause.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// New returns an Orchestrator. A nil notifier disables notifications.
func New(store Store, factory ExecutorFactory, notifier notifications.Service, opts Options, logger *slog.Logger, options ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	o := &Orchestrator{
		store:    store,
		executor: factory,
		notifier: notifier,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		sleep:    sleepWithContext,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Run creates or resumes the experiment described by matrix and executes
// every pending unit. Calling Run again on the same state converges on the
// same Summary without re-running completed units.
func (o *Orchestrator) Run(ctx context.Context, matrix state.Matrix) (Summary, error) {
	started := o.now()
	runID, ok := services.RunIDFromContext(ctx)
	if !ok || runID == "" {
		runID = uuid.NewString()
		ctx = services.WithRunID(ctx, runID)
	}
	summary := Summary{Name: matrix.Name, RunID: runID}

	exp, err := o.prepare(ctx, matrix)
	if err != nil {
		return summary, err
	}
	summary.ExperimentID = exp.ID
	ctx = services.WithExperimentID(ctx, exp.ID)
	logger := logging.WithContext(ctx, o.logger)

	exec, err := o.executor(exp)
	if err != nil {
		return summary, fmt.Errorf("build executor: %w", err)
	}

	counts, err := o.store.Counts(ctx)
	if err != nil {
		return summary, err
	}
	if err := o.store.SetExperimentStatus(ctx, state.ExperimentRunning); err != nil {
		return summary, err
	}
	o.writeMetadata(logger, exp, runID, state.ExperimentRunning, counts, started, nil)
	logger.Info("experiment run started",
		logging.String("name", exp.Name),
		logging.Int("total", counts.Total),
		logging.Int("pending", counts.Pending),
		logging.Int("completed", counts.Completed),
		logging.Int("failed", counts.Failed),
		logging.String(logging.FieldEventType, "run_started"),
	)
	if counts.Pending > 0 {
		o.notify(ctx, logger, notifications.EventRunStarted, notifications.Payload{
			"experiment": exp.Name,
			"pending":    counts.Pending,
			"total":      counts.Total,
		})
	}

	runErr := o.drive(ctx, logger, exec, &summary)

	finished := o.now()
	summary.Duration = finished.Sub(started)
	// The run context may be cancelled; final bookkeeping must still land.
	finalCtx := context.WithoutCancel(ctx)
	if counts, err := o.store.Counts(finalCtx); err == nil {
		summary.apply(counts)
	} else {
		runErr = errors.Join(runErr, err)
	}

	status := state.ExperimentCompleted
	if runErr != nil || !summary.Done() {
		status = state.ExperimentInterrupted
		summary.Interrupted = true
	}
	if err := o.store.SetExperimentStatus(finalCtx, status); err != nil {
		runErr = errors.Join(runErr, err)
	}
	final, _ := o.store.Counts(finalCtx)
	o.writeMetadata(logger, exp, runID, status, final, started, &finished)

	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) {
			o.notify(finalCtx, logger, notifications.EventError, notifications.Payload{
				"context": "experiment " + exp.Name,
				"error":   runErr,
			})
		}
		logging.WarnWithContext(logger, "experiment run stopped early", "run_interrupted",
			logging.Error(runErr),
			logging.Int("pending", summary.Pending),
			logging.String(logging.FieldErrorHint, "run crucible run again to resume"),
			logging.String(logging.FieldImpact, "remaining units stay pending"),
		)
		return summary, runErr
	}

	logger.Info("experiment run finished",
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("manual_review", summary.ManualReview),
		logging.Int("passes", summary.Passes),
		logging.Int("executed", summary.Executed),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "run_completed"),
	)
	if summary.Executed > 0 {
		o.notify(finalCtx, logger, notifications.EventRunCompleted, notifications.Payload{
			"experiment":    exp.Name,
			"completed":     summary.Completed,
			"failed":        summary.Failed,
			"manual_review": summary.ManualReview,
			"duration":      summary.Duration,
		})
	}
	return summary, nil
}

func (o *Orchestrator) prepare(ctx context.Context, matrix state.Matrix) (state.Experiment, error) {
	existing, err := o.store.Resume(ctx, matrix)
	if err != nil {
		return state.Experiment{}, err
	}
	if existing != nil {
		o.logger.Info("resuming experiment",
			logging.String(logging.FieldExperimentID, existing.ID),
			logging.String("status", string(existing.Status)),
			logging.String(logging.FieldEventType, "experiment_resumed"),
		)
		return *existing, nil
	}
	return o.store.Create(ctx, matrix)
}

// drive runs passes until nothing is pending.
func (o *Orchestrator) drive(ctx context.Context, logger *slog.Logger, exec UnitExecutor, summary *Summary) error {
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pending, err := o.store.PendingAndRetryable(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		summary.Passes++
		batches := Batches(pending, o.opts.BatchSize)
		logger.Info("pass started",
			logging.Int("pass", summary.Passes),
			logging.Int("units", len(pending)),
			logging.Int("batches", len(batches)),
			logging.String(logging.FieldEventType, "pass_started"),
		)
		for _, batch := range batches {
			if !first && o.opts.BatchDelay > 0 {
				if err := o.sleep(ctx, o.opts.BatchDelay); err != nil {
					return err
				}
			}
			first = false
			summary.Batches++
			if err := o.runBatch(ctx, logger, exec, batch, summary); err != nil {
				return err
			}
		}
	}
}

// runBatch executes a batch concurrently. Unit failures are recorded and
// swallowed; an infrastructure error cancels the rest of the batch.
func (o *Orchestrator) runBatch(ctx context.Context, logger *slog.Logger, exec UnitExecutor, batch []state.Unit, summary *Summary) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, unit := range batch {
		g.Go(func() error {
			_, err := exec.Execute(gctx, unit)
			if err == nil {
				return nil
			}
			execErr, ok := executor.AsExecutionError(err)
			if !ok {
				return fmt.Errorf("unit %s: %w", unit.TestID, err)
			}
			if execErr.Kind != executor.KindInterrupted {
				o.onUnitFailure(ctx, logger, unit, execErr)
			}
			return nil
		})
	}
	summary.Executed += len(batch)
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (o *Orchestrator) onUnitFailure(ctx context.Context, logger *slog.Logger, unit state.Unit, execErr *executor.ExecutionError) {
	current, err := o.store.Unit(ctx, unit.TestID)
	if err != nil || current.Status != state.StatusFailed {
		return
	}
	logging.ErrorWithContext(logger, "unit failed", "unit_failed_terminal",
		logging.String(logging.FieldTestID, unit.TestID),
		logging.String(logging.FieldErrorKind, string(execErr.Kind)),
		logging.Int("retry_count", current.RetryCount),
		logging.Alert("unit_failed"),
		logging.Error(execErr),
		logging.String(logging.FieldErrorHint, "inspect the raw records, then requeue with crucible retry"),
		logging.String(logging.FieldImpact, "unit excluded from further passes"),
	)
	o.notify(ctx, logger, notifications.EventUnitFailed, notifications.Payload{
		"test_id": unit.TestID,
		"kind":    string(execErr.Kind),
		"error":   execErr.Err,
	})
}

func (o *Orchestrator) writeMetadata(logger *slog.Logger, exp state.Experiment, runID string, status state.ExperimentStatus, counts state.Counts, started time.Time, finished *time.Time) {
	meta := Metadata{
		ID:          exp.ID,
		Name:        exp.Name,
		Fingerprint: exp.Fingerprint,
		RunID:       runID,
		Matrix:      exp.Matrix,
		Status:      status,
		Counts:      counts,
		CreatedAt:   exp.CreatedAt,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if err := o.store.WriteMetadata(meta); err != nil {
		logging.WarnWithContext(logger, "experiment metadata write failed", "metadata_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "experiment.json is stale; unit state is unaffected"),
		)
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
