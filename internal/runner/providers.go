package runner

import (
	"context"
	"fmt"
	"log/slog"

	"crucible/internal/config"
	"crucible/internal/gateway"
	"crucible/internal/services/anthropic"
	"crucible/internal/services/gemini"
	"crucible/internal/services/llm"
)

// BuildProviders constructs a client for every provider the experiment uses.
func BuildProviders(ctx context.Context, cfg *config.Config) (map[string]gateway.Provider, error) {
	providers := make(map[string]gateway.Provider)
	for _, name := range cfg.UsedProviders() {
		pc, ok := cfg.Provider(name)
		if !ok {
			return nil, fmt.Errorf("provider %q is not configured", name)
		}
		provider, err := newProvider(ctx, name, pc)
		if err != nil {
			return nil, err
		}
		providers[name] = provider
	}
	return providers, nil
}

func newProvider(ctx context.Context, name string, pc config.Provider) (gateway.Provider, error) {
	switch pc.Kind {
	case config.ProviderKindOpenAI:
		return llm.NewClient(llm.Config{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Referer: pc.Referer,
			Title:   pc.Title,
		}), nil
	case config.ProviderKindAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Version: pc.Version,
		}), nil
	case config.ProviderKindGemini:
		client, err := gemini.NewClient(ctx, gemini.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("provider %q: unsupported kind %q", name, pc.Kind)
	}
}

// NewRouter registers providers on a gateway.Router.
func NewRouter(logger *slog.Logger, providers map[string]gateway.Provider) *gateway.Router {
	router := gateway.NewRouter(logger)
	for name, provider := range providers {
		router.Register(name, provider)
	}
	return router
}
