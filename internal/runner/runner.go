package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"crucible/internal/catalog"
	"crucible/internal/config"
	"crucible/internal/executor"
	"crucible/internal/gateway"
	"crucible/internal/logging"
	"crucible/internal/manifest"
	"crucible/internal/notifications"
	"crucible/internal/orchestrator"
	"crucible/internal/parser"
	"crucible/internal/preflight"
	"crucible/internal/prompts"
	"crucible/internal/services"
	"crucible/internal/state"
	"crucible/internal/truncation"
)

// Options tunes a run.
type Options struct {
	SkipPreflight bool
	// Ping sends a tiny request to every provider during preflight.
	Ping bool
	// Gateway replaces the provider router.
	Gateway gateway.Gateway
	// Notifier replaces the ntfy service built from config.
	Notifier notifications.Service
}

// Result is the outcome of Run.
type Result struct {
	Summary  orchestrator.Summary
	Manifest *manifest.Manifest
}

// OpenStore opens the state store for cfg's experiment directory.
func OpenStore(cfg *config.Config, logger *slog.Logger) (*state.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return state.Open(cfg.ExperimentDir(), state.Options{
		MaxRetries: cfg.Experiment.MaxRetries,
		Logger:     logger,
	})
}

// ResolveMatrix expands the configured selection against the catalog. An
// empty selection means every catalog entry.
func ResolveMatrix(cfg *config.Config, cat *catalog.Catalog) (state.Matrix, error) {
	scenarios, err := cat.SelectScenarios(cfg.Experiment.Scenarios)
	if err != nil {
		return state.Matrix{}, err
	}
	constitutions, err := cat.SelectConstitutions(cfg.Experiment.Constitutions)
	if err != nil {
		return state.Matrix{}, err
	}
	return state.Matrix{
		Name:           cfg.Experiment.Name,
		Scenarios:      scenarios,
		Constitutions:  constitutions,
		Models:         append([]string(nil), cfg.Experiment.Models...),
		EvaluatorModel: cfg.Experiment.EvaluatorModel,
	}, nil
}

// Run executes or resumes the configured experiment until every unit is
// terminal or ctx is cancelled. SIGINT and SIGTERM cancel the run; the
// directory stays resumable.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (Result, error) {
	if cfg == nil {
		return Result{}, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger = logging.NewComponentLogger(logger, "runner")
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays)

	store, err := OpenStore(cfg, logger)
	if err != nil {
		return Result{}, fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	var result Result
	err = WithLock(store, func() error {
		var runErr error
		result, runErr = run(ctx, cfg, store, logger, opts)
		return runErr
	})
	return result, err
}

func run(ctx context.Context, cfg *config.Config, store *state.Store, logger *slog.Logger, opts Options) (Result, error) {
	gw := opts.Gateway
	var providers map[string]gateway.Provider
	if gw == nil {
		built, err := BuildProviders(ctx, cfg)
		if err != nil {
			return Result{}, services.Wrap(services.ErrConfiguration, "runner", "build providers", err.Error(), err)
		}
		providers = built
		gw = NewRouter(logger, providers)
	}

	if !opts.SkipPreflight {
		checkOpts := preflight.Options{}
		if opts.Ping {
			checkOpts.Providers = providers
		}
		results := preflight.RunAll(ctx, cfg, checkOpts)
		for _, r := range results {
			logger.Debug("preflight check",
				logging.String("check", r.Name),
				logging.Bool("passed", r.Passed),
				logging.String("detail", r.Detail),
			)
		}
		if err := preflight.Err(results); err != nil {
			return Result{}, services.Wrap(services.ErrConfiguration, "runner", "preflight", err.Error(), err)
		}
	}

	cat, err := catalog.Load(cfg.Paths.ScenariosFile, cfg.Paths.ConstitutionsFile)
	if err != nil {
		return Result{}, err
	}
	matrix, err := ResolveMatrix(cfg, cat)
	if err != nil {
		return Result{}, err
	}
	builder, err := prompts.NewTemplateBuilder()
	if err != nil {
		return Result{}, err
	}
	ladder, err := truncation.NewLadder(cfg.Experiment.TokenLadder)
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "runner", "token ladder", err.Error(), err)
	}
	detector := truncation.NewDetector(ladder, cfg.Experiment.NearLimitRatio)
	resultParser := parser.New(logger)

	factory := func(exp state.Experiment) (orchestrator.UnitExecutor, error) {
		return executor.New(executor.Dependencies{
			Gateway:  gw,
			Store:    store,
			Catalog:  cat,
			Prompts:  builder,
			Parser:   resultParser,
			Detector: detector,
			Logger:   logger,
		}, executor.OptionsFromConfig(cfg, exp.ID))
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	orch := orchestrator.New(store, factory, notifier, orchestrator.Options{
		BatchSize:  cfg.Experiment.BatchSize,
		BatchDelay: cfg.BatchDelay(),
	}, logger)

	summary, runErr := orch.Run(ctx, matrix)
	result := Result{Summary: summary}

	m, err := manifest.Write(context.WithoutCancel(ctx), store, store, time.Now())
	if err != nil {
		logging.WarnWithContext(logger, "manifest not written", "manifest_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run crucible manifest to rebuild it"),
			logging.String(logging.FieldImpact, "manifest.json may be stale"),
		)
	} else {
		result.Manifest = m
	}
	return result, runErr
}
