package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crucible/internal/catalog"
	"crucible/internal/config"
	"crucible/internal/executor"
	"crucible/internal/gateway"
	"crucible/internal/notifications"
	"crucible/internal/orchestrator"
	"crucible/internal/parser"
	"crucible/internal/prompts"
	"crucible/internal/services"
	"crucible/internal/state"
	"crucible/internal/testsupport"
	"crucible/internal/truncation"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// perUnit counts gateway calls by test id and layer.
type perUnit struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *perUnit) next(ctx context.Context, call testsupport.Call) (string, int, int) {
	id, _ := services.TestIDFromContext(ctx)
	layer := testsupport.LayerOf(call.Prompt)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[id]++
	return id, layer, p.calls[id]
}

func (p *perUnit) total(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

type fixture struct {
	cfg      *config.Config
	store    *state.Store
	gw       *testsupport.Gateway
	notifier *recordingNotifier
	orch     *orchestrator.Orchestrator
	sleeps   int
}

func newFixture(t *testing.T, gw *testsupport.Gateway, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithCatalog()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	return newFixtureFor(t, cfg, testsupport.MustOpenStore(t, cfg), gw)
}

func newFixtureFor(t *testing.T, cfg *config.Config, store *state.Store, gw *testsupport.Gateway) *fixture {
	t.Helper()
	cat, err := catalog.Load(cfg.Paths.ScenariosFile, cfg.Paths.ConstitutionsFile)
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	builder, err := prompts.NewTemplateBuilder()
	if err != nil {
		t.Fatalf("NewTemplateBuilder: %v", err)
	}
	ladder, err := truncation.NewLadder(cfg.Experiment.TokenLadder)
	if err != nil {
		t.Fatalf("NewLadder: %v", err)
	}
	f := &fixture{cfg: cfg, store: store, gw: gw, notifier: &recordingNotifier{}}
	factory := func(exp state.Experiment) (orchestrator.UnitExecutor, error) {
		return executor.New(executor.Dependencies{
			Gateway:  gw,
			Store:    store,
			Catalog:  cat,
			Prompts:  builder,
			Detector: truncation.NewDetector(ladder, cfg.Experiment.NearLimitRatio),
		}, executor.OptionsFromConfig(cfg, exp.ID), executor.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}))
	}
	f.orch = orchestrator.New(store, factory, f.notifier, orchestrator.Options{
		BatchSize:  cfg.Experiment.BatchSize,
		BatchDelay: time.Minute,
	}, nil, orchestrator.WithSleep(func(ctx context.Context, _ time.Duration) error {
		f.sleeps++
		return ctx.Err()
	}))
	return f
}

func (f *fixture) run(t *testing.T, ctx context.Context) orchestrator.Summary {
	t.Helper()
	summary, err := f.orch.Run(ctx, testsupport.Matrix(f.cfg))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return summary
}

// Unit #5 (s2_c1_m1) times out until its fourth call; unit #7 (s2_c2_m1)
// answers layer 2 with prose.
func TestRunConcreteScenario(t *testing.T) {
	for _, tt := range []struct {
		name  string
		prose string
	}{
		{name: "punctuated prose", prose: "Honestly, I do not think a structured answer fits here."},
		{name: "unpunctuated prose", prose: "I would rather not answer in JSON"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			runConcreteScenario(t, tt.prose)
		})
	}
}

// runConcreteScenario drives the 2x2x2 matrix where unit #5 times out on its
// first attempt and unit #7 answers layer 2 with prose.
func runConcreteScenario(t *testing.T, prose string) {
	t.Helper()
	calls := &perUnit{}
	gw := &testsupport.Gateway{Respond: func(ctx context.Context, call testsupport.Call, _ int) (gateway.RawResponse, error) {
		id, layer, n := calls.next(ctx, call)
		switch {
		case id == "s2_c1_m1" && n <= 3:
			return gateway.RawResponse{}, gateway.Transient(context.DeadlineExceeded)
		case id == "s2_c2_m1" && layer == 2:
			return testsupport.Reply(prose), nil
		}
		return testsupport.Reply(testsupport.ValidJSON(call.Prompt)), nil
	}}
	f := newFixture(t, gw, testsupport.WithTransientAttempts(2))

	summary := f.run(t, context.Background())
	if summary.Total != 8 || summary.Completed != 8 || summary.Failed != 0 || summary.ManualReview != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Passes != 2 {
		t.Fatalf("expected a second pass for the timed-out unit, got %d", summary.Passes)
	}
	if !summary.Done() || summary.Interrupted {
		t.Fatalf("run should be complete: %+v", summary)
	}

	ctx := context.Background()
	retried, err := f.store.Unit(ctx, "s2_c1_m1")
	if err != nil {
		t.Fatalf("Unit: %v", err)
	}
	if retried.Status != state.StatusCompleted || retried.RetryCount != 1 {
		t.Fatalf("unit #5: %+v", retried)
	}
	degraded, err := f.store.Result("s2_c2_m1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !degraded.ManualReview || degraded.Layers[1].ParseStatus != parser.StatusManualReview {
		t.Fatalf("unit #7 should have layer 2 in manual review: %+v", degraded.Layers[1])
	}

	// Zero data loss: one raw record per gateway call.
	units, err := f.store.Units(ctx)
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	records := 0
	for _, unit := range units {
		recs, err := f.store.RawRecords(unit.TestID)
		if err != nil {
			t.Fatalf("RawRecords: %v", err)
		}
		if len(recs) != calls.total(unit.TestID) {
			t.Fatalf("%s: %d raw records for %d calls", unit.TestID, len(recs), calls.total(unit.TestID))
		}
		records += len(recs)
	}
	if records != gw.CallCount() {
		t.Fatalf("raw records %d != calls %d", records, gw.CallCount())
	}

	if f.notifier.count(notifications.EventRunStarted) != 1 || f.notifier.count(notifications.EventRunCompleted) != 1 {
		t.Fatalf("unexpected notifications %v", f.notifier.events)
	}
	if f.notifier.count(notifications.EventUnitFailed) != 0 {
		t.Fatal("no unit should be reported failed")
	}

	var meta orchestrator.Metadata
	if err := readJSON(f.store.MetadataPath(), &meta); err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.Status != state.ExperimentCompleted || meta.Counts.Completed != 8 || meta.FinishedAt == nil {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, &testsupport.Gateway{})
	first := f.run(t, context.Background())
	callsAfterFirst := f.gw.CallCount()

	second := f.run(t, context.Background())
	if f.gw.CallCount() != callsAfterFirst {
		t.Fatalf("second run made %d new calls", f.gw.CallCount()-callsAfterFirst)
	}
	if second.Executed != 0 || second.Passes != 0 {
		t.Fatalf("second run executed units: %+v", second)
	}
	if first.Completed != second.Completed || first.Total != second.Total || first.ExperimentID != second.ExperimentID {
		t.Fatalf("summaries diverge: %+v vs %+v", first, second)
	}
	if f.notifier.count(notifications.EventRunCompleted) != 1 {
		t.Fatal("a run with nothing to do should not notify completion")
	}
}

func TestRunRetryCap(t *testing.T) {
	calls := &perUnit{}
	gw := &testsupport.Gateway{Respond: func(ctx context.Context, call testsupport.Call, _ int) (gateway.RawResponse, error) {
		if id, _, _ := calls.next(ctx, call); id == "s1_c1_m1" {
			return gateway.RawResponse{}, gateway.Transient(errors.New("503 service unavailable"))
		}
		return testsupport.Reply(testsupport.ValidJSON(call.Prompt)), nil
	}}
	f := newFixture(t, gw, testsupport.WithMaxRetries(3), testsupport.WithTransientAttempts(1))

	summary := f.run(t, context.Background())
	if summary.Failed != 1 || summary.Completed != 7 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.FailuresByKind[string(executor.KindTransientExhausted)] != 1 {
		t.Fatalf("failure kind not recorded: %+v", summary.FailuresByKind)
	}
	if got := calls.total("s1_c1_m1"); got != 3 {
		t.Fatalf("unit attempted %d times, want exactly 3", got)
	}
	unit, err := f.store.Unit(context.Background(), "s1_c1_m1")
	if err != nil {
		t.Fatalf("Unit: %v", err)
	}
	if unit.Status != state.StatusFailed || unit.RetryCount != 3 {
		t.Fatalf("unexpected unit %+v", unit)
	}
	if f.notifier.count(notifications.EventUnitFailed) != 1 {
		t.Fatal("terminal failure should be notified once")
	}

	// A rerun leaves the failed unit alone.
	again := f.run(t, context.Background())
	if calls.total("s1_c1_m1") != 3 || again.Failed != 1 {
		t.Fatalf("failed unit was retried on resume: %+v", again)
	}
}

func TestRunRecoversFromCrashAfterFinalRawRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCatalog())
	store, _ := testsupport.MustCreate(t, cfg)
	ctx := context.Background()
	const id = "s2_c2_m2"

	// The previous process parsed layers 1 and 2, wrote the layer 3 raw
	// record and died before the result.
	if err := store.Transition(ctx, id, state.Transition{Kind: state.TransitionStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, layer := range []prompts.Layer{prompts.LayerFacts, prompts.LayerReasoning} {
		prompt := gateway.Prompt{User: "facts"}
		if layer == prompts.LayerReasoning {
			prompt.User = "recommendation"
		}
		out := parser.New(nil).Parse(testsupport.ValidJSON(prompt), layer.Schema())
		if err := store.SaveCheckpoint(ctx, id, state.LayerResult{
			Layer: int(layer), Name: layer.Name(), Model: "m2",
			ParseStatus: out.Status, Strategy: out.Strategy, Fields: out.Fields,
		}); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
	}
	if _, err := store.RecordRaw(&state.RawRecord{TestID: id, Layer: 3, Text: "{}", ParseStatus: "success"}); err != nil {
		t.Fatalf("RecordRaw: %v", err)
	}

	calls := &perUnit{}
	gw := &testsupport.Gateway{Respond: func(ctx context.Context, call testsupport.Call, _ int) (gateway.RawResponse, error) {
		calls.next(ctx, call)
		return testsupport.Reply(testsupport.ValidJSON(call.Prompt)), nil
	}}
	f := newFixtureFor(t, cfg, store, gw)
	summary := f.run(t, ctx)
	if summary.Completed != 8 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got := calls.total(id); got != 1 {
		t.Fatalf("recovered unit should only repeat layer 3, made %d calls", got)
	}
	result, err := store.Result(id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(result.Layers) != 3 {
		t.Fatalf("result layers = %d", len(result.Layers))
	}
	records, err := store.RawRecords(id)
	if err != nil {
		t.Fatalf("RawRecords: %v", err)
	}
	if len(records) != 2 || records[1].Sequence != 2 {
		t.Fatalf("expected the orphaned record kept plus one new, got %+v", records)
	}
}

func TestRunCancelledIsResumable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	gw := &testsupport.Gateway{Respond: func(callCtx context.Context, call testsupport.Call, _ int) (gateway.RawResponse, error) {
		if id, _ := services.TestIDFromContext(callCtx); id == "s2_c1_m1" {
			once.Do(cancel)
			return gateway.RawResponse{}, callCtx.Err()
		}
		return testsupport.Reply(testsupport.ValidJSON(call.Prompt)), nil
	}}
	f := newFixture(t, gw)

	summary, err := f.orch.Run(ctx, testsupport.Matrix(f.cfg))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !summary.Interrupted || summary.InProgress != 0 {
		t.Fatalf("cancelled run must leave nothing in progress: %+v", summary)
	}
	if summary.Completed == 8 {
		t.Fatal("run should have stopped early")
	}
	unit, err := f.store.Unit(context.Background(), "s2_c1_m1")
	if err != nil {
		t.Fatalf("Unit: %v", err)
	}
	if unit.RetryCount != 0 {
		t.Fatalf("interruption consumed a retry: %+v", unit)
	}

	f.gw.Respond = nil
	resumed := f.run(t, context.Background())
	if resumed.Completed != 8 || resumed.Interrupted {
		t.Fatalf("resumed run did not finish: %+v", resumed)
	}
}

func TestRunRefusesChangedMatrix(t *testing.T) {
	f := newFixture(t, &testsupport.Gateway{})
	f.run(t, context.Background())

	changed := testsupport.Matrix(f.cfg)
	changed.Scenarios = []string{"s1"}
	if _, err := f.orch.Run(context.Background(), changed); !errors.Is(err, state.ErrMatrixMismatch) {
		t.Fatalf("expected matrix mismatch, got %v", err)
	}
}

func TestRunPausesBetweenBatches(t *testing.T) {
	f := newFixture(t, &testsupport.Gateway{})
	summary := f.run(t, context.Background())
	if summary.Batches != 4 {
		t.Fatalf("batches = %d, want 4", summary.Batches)
	}
	if f.sleeps != summary.Batches-1 {
		t.Fatalf("pauses = %d, want %d", f.sleeps, summary.Batches-1)
	}
}
