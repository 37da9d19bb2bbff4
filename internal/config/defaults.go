package config

const (
	defaultConfigPath        = "~/.config/crucible/config.toml"
	defaultDataDir           = "~/.local/share/crucible/experiments"
	defaultLogDir            = "~/.local/share/crucible/logs"
	defaultScenariosFile     = "~/.config/crucible/scenarios.yaml"
	defaultConstitutionsFile = "~/.config/crucible/constitutions.yaml"
	defaultExperimentName    = "default"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30

	defaultMaxRetries        = 3
	defaultBatchSize         = 6
	defaultBatchDelaySeconds = 60
	defaultTransientAttempts = 3
	defaultRetryBaseDelayMS  = 2000
	defaultRetryMaxDelayMS   = 60000
	defaultTemperature       = 0.7
	defaultTimeoutSeconds    = 180
	defaultFactBudget        = 8000
	defaultReasoningBudget   = 12000
	defaultEvaluationBudget  = 8000
	defaultNearLimitRatio    = 0.95

	// ProviderKindOpenAI covers every OpenAI-compatible chat completions API.
	ProviderKindOpenAI    = "openai"
	ProviderKindAnthropic = "anthropic"
	ProviderKindGemini    = "gemini"

	defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenAIURL     = "https://api.openai.com/v1/chat/completions"
	defaultXAIURL        = "https://api.x.ai/v1/chat/completions"
	defaultDeepSeekURL   = "https://api.deepseek.com/chat/completions"
	defaultAnthropicURL  = "https://api.anthropic.com/v1"
	defaultAnthropicAPI  = "2023-06-01"
	defaultProviderRefer = "https://github.com/crucible-lab/crucible"
	defaultProviderTitle = "Crucible"
	defaultNotifyTimeout = 10
)

func defaultTokenLadder() []int {
	return []int{8000, 12000, 16000, 20000, 30000}
}

func defaultProviders() map[string]Provider {
	return map[string]Provider{
		"openrouter": {Kind: ProviderKindOpenAI, BaseURL: defaultOpenRouterURL, Referer: defaultProviderRefer, Title: defaultProviderTitle},
		"openai":     {Kind: ProviderKindOpenAI, BaseURL: defaultOpenAIURL},
		"xai":        {Kind: ProviderKindOpenAI, BaseURL: defaultXAIURL},
		"deepseek":   {Kind: ProviderKindOpenAI, BaseURL: defaultDeepSeekURL},
		"anthropic":  {Kind: ProviderKindAnthropic, BaseURL: defaultAnthropicURL, Version: defaultAnthropicAPI},
		"gemini":     {Kind: ProviderKindGemini},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:           defaultDataDir,
			LogDir:            defaultLogDir,
			ScenariosFile:     defaultScenariosFile,
			ConstitutionsFile: defaultConstitutionsFile,
		},
		Experiment: Experiment{
			Name:              defaultExperimentName,
			MaxRetries:        defaultMaxRetries,
			BatchSize:         defaultBatchSize,
			BatchDelaySeconds: defaultBatchDelaySeconds,
			TransientAttempts: defaultTransientAttempts,
			RetryBaseDelayMS:  defaultRetryBaseDelayMS,
			RetryMaxDelayMS:   defaultRetryMaxDelayMS,
			Temperature:       defaultTemperature,
			TimeoutSeconds:    defaultTimeoutSeconds,
			TokenLadder:       defaultTokenLadder(),
			FactBudget:        defaultFactBudget,
			ReasoningBudget:   defaultReasoningBudget,
			EvaluationBudget:  defaultEvaluationBudget,
			NearLimitRatio:    defaultNearLimitRatio,
		},
		Providers: defaultProviders(),
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunStart:       true,
			RunComplete:    true,
			UnitFailures:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
