package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"crucible/internal/config"
)

const minimalConfig = `
[experiment]
name = "pilot run"
models = ["m1", "m2"]
evaluator_model = "m1"

[[models]]
id = "m1"
provider = "openrouter"
name = "vendor/model-one"

[[models]]
id = "m2"
provider = "anthropic"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crucible.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected existing config, got resolved=%q exists=%v", resolved, exists)
	}

	wantData := filepath.Join(tempHome, ".local", "share", "crucible", "experiments")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.ExperimentDir() != filepath.Join(wantData, "pilot_run") {
		t.Fatalf("unexpected experiment dir: %q", cfg.ExperimentDir())
	}
	if cfg.Experiment.MaxRetries != 3 || cfg.Experiment.BatchSize != 6 || cfg.Experiment.BatchDelaySeconds != 60 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Experiment)
	}
	if diff := cmp.Diff([]int{8000, 12000, 16000, 20000, 30000}, cfg.Experiment.TokenLadder); diff != "" {
		t.Fatalf("token ladder mismatch (-want +got):\n%s", diff)
	}
	m2, ok := cfg.Model("m2")
	if !ok || m2.Name != "m2" {
		t.Fatalf("expected model name to default to id, got %+v", m2)
	}
	anthropic, ok := cfg.Provider("anthropic")
	if !ok || anthropic.Version != "2023-06-01" || anthropic.Kind != config.ProviderKindAnthropic {
		t.Fatalf("unexpected anthropic provider: %+v", anthropic)
	}
	if diff := cmp.Diff([]string{"openrouter", "anthropic"}, cfg.UsedProviders()); diff != "" {
		t.Fatalf("used providers mismatch (-want +got):\n%s", diff)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.ExperimentDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestLoadMissingFileRequiresModels(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if exists {
		t.Fatal("expected missing file")
	}
	if err == nil || !strings.Contains(err.Error(), "experiment.models") {
		t.Fatalf("expected models error, got %v", err)
	}
}

func TestProviderKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic")

	body := minimalConfig + `
[providers.anthropic]
api_key = "file-key"
`
	cfg, _, _, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.Providers["openrouter"].APIKey; got != "env-key" {
		t.Fatalf("expected env fallback for openrouter, got %q", got)
	}
	anthropic := cfg.Providers["anthropic"]
	if anthropic.APIKey != "file-key" {
		t.Fatalf("expected file key to win, got %q", anthropic.APIKey)
	}
	if anthropic.BaseURL == "" {
		t.Fatal("expected default base url merged into partial provider block")
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := map[string]string{
		"openrouter": "OPENROUTER_API_KEY",
		"my-proxy":   "MY_PROXY_API_KEY",
		" xai ":      "XAI_API_KEY",
	}
	for in, want := range tests {
		if got := config.APIKeyEnvVar(in); got != want {
			t.Fatalf("APIKeyEnvVar(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := []struct {
		name   string
		extra  string
		expect string
	}{
		{"unknown evaluator", `evaluator_model = "nope"`, "evaluator_model"},
		{"decreasing ladder", `token_ladder = [8000, 4000]`, "strictly increasing"},
		{"zero batch", `batch_size = 0`, "experiment.batch_size"},
		{"ratio", `near_limit_ratio = 1.5`, "near_limit_ratio"},
		{"temperature", `temperature = 3.0`, "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Replace(minimalConfig, `evaluator_model = "m1"`, `evaluator_model = "m1"`+"\n"+tt.extra, 1)
			if strings.HasPrefix(tt.extra, "evaluator_model") {
				body = strings.Replace(minimalConfig, `evaluator_model = "m1"`, tt.extra, 1)
			}
			_, _, _, err := config.Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), tt.expect) {
				t.Fatalf("expected error containing %q, got %v", tt.expect, err)
			}
		})
	}
}

func TestValidateRejectsUnknownProviderKind(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	body := minimalConfig + `
[providers.custom]
kind = "carrier-pigeon"
`
	_, _, _, err := config.Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected unsupported kind error, got %v", err)
	}
}

func TestValidateRejectsModelWithUnknownProvider(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	body := strings.Replace(minimalConfig, `provider = "anthropic"`, `provider = "mystery"`, 1)
	_, _, _, err := config.Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Experiment.EvaluatorModel != "claude" {
		t.Fatalf("unexpected evaluator: %q", cfg.Experiment.EvaluatorModel)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := config.Default()
	if cfg.BatchDelay().Seconds() != 60 {
		t.Fatalf("unexpected batch delay %v", cfg.BatchDelay())
	}
	if cfg.CallTimeout().Seconds() != 180 {
		t.Fatalf("unexpected call timeout %v", cfg.CallTimeout())
	}
	if cfg.RetryMaxDelay() < cfg.RetryBaseDelay() {
		t.Fatal("max delay should not be below base delay")
	}
}
