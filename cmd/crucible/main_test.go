package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"crucible/internal/gateway"
	"crucible/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	calls      *atomic.Int64
}

// setupCLITestEnv writes a config whose two models talk to a local
// OpenAI-compatible server answering every layer with valid JSON.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	calls := &atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var prompt gateway.Prompt
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompt.User = m.Content
			}
		}
		text := testsupport.ValidJSON(prompt)
		if strings.Contains(prompt.User, `"ok"`) {
			text = `{"ok":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": text},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 40, "completion_tokens": 60},
		})
	}))
	t.Cleanup(srv.Close)

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	scenarios := filepath.Join(base, "scenarios.yaml")
	constitutions := filepath.Join(base, "constitutions.yaml")
	if err := os.WriteFile(scenarios, []byte(testsupport.ScenariosYAML), 0o644); err != nil {
		t.Fatalf("write scenarios: %v", err)
	}
	if err := os.WriteFile(constitutions, []byte(testsupport.ConstitutionsYAML), 0o644); err != nil {
		t.Fatalf("write constitutions: %v", err)
	}

	env := &cliTestEnv{
		configPath: filepath.Join(base, "config.toml"),
		dataDir:    filepath.Join(base, "data"),
		calls:      calls,
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
scenarios_file = %q
constitutions_file = %q

[experiment]
name = "cli"
scenarios = ["s1", "s2"]
constitutions = ["c1", "c2"]
models = ["m1", "m2"]
evaluator_model = "m1"
batch_delay_seconds = 0
retry_base_delay_ms = 1
retry_max_delay_ms = 5

[[models]]
id = "m1"
provider = "local"
name = "local/one"

[[models]]
id = "m2"
provider = "local"
name = "local/two"

[providers.local]
kind = "openai"
base_url = %q
api_key = "test"

[logging]
level = "error"
`, env.dataDir, filepath.Join(base, "logs"), scenarios, constitutions, srv.URL)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestCLIRunStatusAndManifest(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status before run: %v", err)
	}
	requireContains(t, out, "No experiment")

	out, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "8 units executed")
	if got := env.calls.Load(); got != 24 {
		t.Fatalf("expected 24 provider calls, got %d", got)
	}

	out, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "0 units executed")
	if got := env.calls.Load(); got != 24 {
		t.Fatalf("second run called providers again: %d", got)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "8/8")

	out, _, err = runCLI(t, []string{"units", "--status", "completed", "--model", "m2"}, env.configPath)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	requireContains(t, out, "s2_c2_m2")
	if strings.Contains(out, "s1_c1_m1") {
		t.Fatalf("model filter ignored:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"manifest", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	var m struct {
		Completed []string `json:"completed"`
		Failed    []any    `json:"failed"`
	}
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("decode manifest: %v\n%s", err, out)
	}
	if len(m.Completed) != 8 || len(m.Failed) != 0 {
		t.Fatalf("unexpected manifest %+v", m)
	}

	out, _, err = runCLI(t, []string{"retry"}, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "No failed units")
}

func TestCLIUnitsRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"units", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestCLIPreflight(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"preflight", "--ping"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "All checks passed")
	requireContains(t, out, "Provider local")
}

func TestCLITestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not sent")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}
