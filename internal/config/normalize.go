package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExperiment()
	c.normalizeModels()
	c.normalizeProviders()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ScenariosFile, err = expandPath(strings.TrimSpace(c.Paths.ScenariosFile)); err != nil {
		return fmt.Errorf("paths.scenarios_file: %w", err)
	}
	if c.Paths.ConstitutionsFile, err = expandPath(strings.TrimSpace(c.Paths.ConstitutionsFile)); err != nil {
		return fmt.Errorf("paths.constitutions_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeExperiment() {
	e := &c.Experiment
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		e.Name = defaultExperimentName
	}
	e.Scenarios = normalizeIDs(e.Scenarios)
	e.Constitutions = normalizeIDs(e.Constitutions)
	e.Models = normalizeIDs(e.Models)
	e.EvaluatorModel = strings.TrimSpace(e.EvaluatorModel)
	if len(e.TokenLadder) == 0 {
		e.TokenLadder = defaultTokenLadder()
	}
	if e.RetryMaxDelayMS > 0 && e.RetryBaseDelayMS > e.RetryMaxDelayMS {
		e.RetryBaseDelayMS = e.RetryMaxDelayMS
	}
}

func (c *Config) normalizeModels() {
	for i := range c.Models {
		m := &c.Models[i]
		m.ID = strings.TrimSpace(m.ID)
		m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			m.Name = m.ID
		}
	}
}

func (c *Config) normalizeProviders() {
	defaults := defaultProviders()
	merged := make(map[string]Provider, len(defaults)+len(c.Providers))
	for name, p := range defaults {
		merged[name] = p
	}
	for rawName, p := range c.Providers {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			continue
		}
		base := merged[name]
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.BaseURL = strings.TrimSpace(p.BaseURL)
		p.Referer = strings.TrimSpace(p.Referer)
		p.Title = strings.TrimSpace(p.Title)
		p.Version = strings.TrimSpace(p.Version)
		if p.Kind == "" {
			p.Kind = base.Kind
		}
		if p.Kind == "" {
			p.Kind = ProviderKindOpenAI
		}
		if p.BaseURL == "" {
			p.BaseURL = base.BaseURL
		}
		if p.Referer == "" {
			p.Referer = base.Referer
		}
		if p.Title == "" {
			p.Title = base.Title
		}
		if p.Version == "" {
			p.Version = base.Version
		}
		merged[name] = p
	}
	for name, p := range merged {
		if p.APIKey == "" {
			if value, ok := os.LookupEnv(APIKeyEnvVar(name)); ok {
				p.APIKey = strings.TrimSpace(value)
			}
		}
		if p.Kind == ProviderKindAnthropic && p.Version == "" {
			p.Version = defaultAnthropicAPI
		}
		merged[name] = p
	}
	c.Providers = merged
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = defaultLogLevel
	case "warning":
		c.Logging.Level = "warn"
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// APIKeyEnvVar returns the environment variable consulted when a provider has
// no api_key configured, e.g. OPENROUTER_API_KEY.
func APIKeyEnvVar(provider string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(provider)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String() + "_API_KEY"
}

func normalizeIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
