package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. Provider credentials are not
// checked here so read-only commands work without keys; see preflight.
func (c *Config) Validate() error {
	if err := c.validateMatrix(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	if err := c.validateLadder(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMatrix() error {
	if len(c.Experiment.Models) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("experiment.models must list at least one model. Edit %s (create with 'crucible config init')", defaultPath)
	}
	seen := make(map[string]struct{}, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("models[%d].id must be set", i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("models: duplicate id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.Provider == "" {
			return fmt.Errorf("models[%d].provider must be set", i)
		}
	}
	for _, id := range c.Experiment.Models {
		if _, ok := c.Model(id); !ok {
			return fmt.Errorf("experiment.models references unknown model %q", id)
		}
	}
	if c.Experiment.EvaluatorModel == "" {
		return errors.New("experiment.evaluator_model must be set")
	}
	if _, ok := c.Model(c.Experiment.EvaluatorModel); !ok {
		return fmt.Errorf("experiment.evaluator_model references unknown model %q", c.Experiment.EvaluatorModel)
	}
	return nil
}

func (c *Config) validateThresholds() error {
	e := c.Experiment
	if err := ensurePositiveMap(map[string]int{
		"experiment.max_retries":        e.MaxRetries,
		"experiment.batch_size":         e.BatchSize,
		"experiment.transient_attempts": e.TransientAttempts,
		"experiment.timeout_seconds":    e.TimeoutSeconds,
		"experiment.fact_budget":        e.FactBudget,
		"experiment.reasoning_budget":   e.ReasoningBudget,
		"experiment.evaluation_budget":  e.EvaluationBudget,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if e.BatchDelaySeconds < 0 {
		return errors.New("experiment.batch_delay_seconds must be >= 0")
	}
	if e.RetryBaseDelayMS < 0 || e.RetryMaxDelayMS < 0 {
		return errors.New("experiment.retry_base_delay_ms and retry_max_delay_ms must be >= 0")
	}
	if e.Temperature < 0 || e.Temperature > 2 {
		return errors.New("experiment.temperature must be between 0 and 2")
	}
	if e.NearLimitRatio <= 0 || e.NearLimitRatio > 1 {
		return errors.New("experiment.near_limit_ratio must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateLadder() error {
	ladder := c.Experiment.TokenLadder
	for i, rung := range ladder {
		if rung <= 0 {
			return fmt.Errorf("experiment.token_ladder[%d] must be positive", i)
		}
		if i > 0 && rung <= ladder[i-1] {
			return errors.New("experiment.token_ladder must be strictly increasing")
		}
	}
	return nil
}

func (c *Config) validateProviders() error {
	for name, p := range c.Providers {
		switch p.Kind {
		case ProviderKindOpenAI, ProviderKindAnthropic:
			if p.BaseURL == "" {
				return fmt.Errorf("providers.%s.base_url must be set", name)
			}
		case ProviderKindGemini:
		default:
			return fmt.Errorf("providers.%s.kind %q is not supported (use openai, anthropic or gemini)", name, p.Kind)
		}
	}
	for _, m := range c.Models {
		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", m.ID, m.Provider)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ScenariosFile == "" {
		return errors.New("paths.scenarios_file must be set")
	}
	if c.Paths.ConstitutionsFile == "" {
		return errors.New("paths.constitutions_file must be set")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
