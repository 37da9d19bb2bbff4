package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"crucible/internal/textutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data, log and catalog locations.
type Paths struct {
	DataDir           string `toml:"data_dir"`
	LogDir            string `toml:"log_dir"`
	ScenariosFile     string `toml:"scenarios_file"`
	ConstitutionsFile string `toml:"constitutions_file"`
}

// Experiment describes the test matrix and the execution thresholds applied
// to every unit in it.
type Experiment struct {
	Name           string   `toml:"name"`
	Scenarios      []string `toml:"scenarios"`
	Constitutions  []string `toml:"constitutions"`
	Models         []string `toml:"models"`
	EvaluatorModel string   `toml:"evaluator_model"`

	MaxRetries        int `toml:"max_retries"`
	BatchSize         int `toml:"batch_size"`
	BatchDelaySeconds int `toml:"batch_delay_seconds"`
	TransientAttempts int `toml:"transient_attempts"`
	RetryBaseDelayMS  int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS   int `toml:"retry_max_delay_ms"`

	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`

	TokenLadder      []int   `toml:"token_ladder"`
	FactBudget       int     `toml:"fact_budget"`
	ReasoningBudget  int     `toml:"reasoning_budget"`
	EvaluationBudget int     `toml:"evaluation_budget"`
	NearLimitRatio   float64 `toml:"near_limit_ratio"`
}

// Model maps a matrix model id onto a provider and the provider's model name.
type Model struct {
	ID       string `toml:"id"`
	Provider string `toml:"provider"`
	Name     string `toml:"name"`
}

// Provider holds connection settings for one LLM backend.
type Provider struct {
	Kind    string `toml:"kind"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Referer string `toml:"referer"`
	Title   string `toml:"title"`
	Version string `toml:"version"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunStart       bool   `toml:"run_start"`
	RunComplete    bool   `toml:"run_complete"`
	UnitFailures   bool   `toml:"unit_failures"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for crucible.
//
// Configuration sections:
//   - Paths: experiment data, logs and the scenario/constitution catalogs
//   - Experiment: matrix selection, retry, batching and token thresholds
//   - Models: matrix model ids bound to providers
//   - Providers: LLM backend credentials and endpoints
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths               `toml:"paths"`
	Experiment    Experiment          `toml:"experiment"`
	Models        []Model             `toml:"models"`
	Providers     map[string]Provider `toml:"providers"`
	Notifications Notifications       `toml:"notifications"`
	Logging       Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("crucible.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, log and experiment directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.ExperimentDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExperimentDir returns the directory holding state and artifacts for the
// configured experiment.
func (c *Config) ExperimentDir() string {
	return filepath.Join(c.Paths.DataDir, textutil.SanitizeToken(c.Experiment.Name))
}

// Model returns the model entry for id.
func (c *Config) Model(id string) (Model, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Provider returns the provider settings registered under name.
func (c *Config) Provider(name string) (Provider, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// UsedProviders lists the providers referenced by the matrix models and the
// evaluator, in first-use order.
func (c *Config) UsedProviders() []string {
	seen := make(map[string]struct{})
	var names []string
	ids := append(append([]string(nil), c.Experiment.Models...), c.Experiment.EvaluatorModel)
	for _, id := range ids {
		m, ok := c.Model(id)
		if !ok {
			continue
		}
		if _, dup := seen[m.Provider]; dup {
			continue
		}
		seen[m.Provider] = struct{}{}
		names = append(names, m.Provider)
	}
	return names
}

// BatchDelay returns the pause between batches.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Experiment.BatchDelaySeconds) * time.Second
}

// CallTimeout returns the per-call gateway timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Experiment.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first transient backoff step.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Experiment.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay caps transient backoff, including Retry-After hints.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Experiment.RetryMaxDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
