package testsupport

import (
	"path/filepath"
	"testing"

	"crucible/internal/config"
)

// FakeProvider is the provider name test configs bind their models to.
const FakeProvider = "fake"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The matrix is 2 scenarios x 2 constitutions x 2 models (s1, s2 / c1, c2 /
// m1, m2) with m1 as evaluator, no batch pause and millisecond backoff.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScenariosFile = filepath.Join(base, "scenarios.yaml")
	cfgVal.Paths.ConstitutionsFile = filepath.Join(base, "constitutions.yaml")

	cfgVal.Experiment.Name = "test"
	cfgVal.Experiment.Scenarios = []string{"s1", "s2"}
	cfgVal.Experiment.Constitutions = []string{"c1", "c2"}
	cfgVal.Experiment.Models = []string{"m1", "m2"}
	cfgVal.Experiment.EvaluatorModel = "m1"
	cfgVal.Experiment.BatchDelaySeconds = 0
	cfgVal.Experiment.RetryBaseDelayMS = 1
	cfgVal.Experiment.RetryMaxDelayMS = 5
	cfgVal.Experiment.TimeoutSeconds = 5

	cfgVal.Models = []config.Model{
		{ID: "m1", Provider: FakeProvider, Name: "fake/model-one"},
		{ID: "m2", Provider: FakeProvider, Name: "fake/model-two"},
	}
	cfgVal.Providers[FakeProvider] = config.Provider{
		Kind:    config.ProviderKindOpenAI,
		APIKey:  "test",
		BaseURL: "http://127.0.0.1:0/v1",
	}
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxRetries overrides the full-unit retry cap.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Experiment.MaxRetries = n
	}
}

// WithTransientAttempts overrides the per-layer transient call budget.
func WithTransientAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Experiment.TransientAttempts = n
	}
}

// WithBatchSize overrides the batch size.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Experiment.BatchSize = n
	}
}

// WithCatalog writes the default scenario and constitution files.
func WithCatalog() ConfigOption {
	return func(b *configBuilder) {
		WriteCatalog(b.t, b.cfg)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
