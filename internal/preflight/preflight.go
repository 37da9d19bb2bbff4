package preflight

import (
	"context"
	"fmt"
	"strings"

	"crucible/internal/config"
	"crucible/internal/gateway"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects the optional checks.
type Options struct {
	// Providers, when set, are pinged with the first configured model that
	// routes to them.
	Providers map[string]gateway.Provider
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckCatalog(cfg))
	results = append(results, CheckProviderKeys(cfg)...)

	for _, name := range cfg.UsedProviders() {
		provider, ok := opts.Providers[name]
		if !ok {
			continue
		}
		model, ok := firstModelFor(cfg, name)
		if !ok {
			continue
		}
		results = append(results, CheckProvider(ctx, "Provider "+name, provider, model))
	}

	return results
}

// Err returns an error naming every failed check, or nil.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(failed, "; "))
}

func firstModelFor(cfg *config.Config, provider string) (string, bool) {
	ids := append(append([]string(nil), cfg.Experiment.Models...), cfg.Experiment.EvaluatorModel)
	for _, id := range ids {
		if m, ok := cfg.Model(id); ok && m.Provider == provider {
			return m.Name, true
		}
	}
	return "", false
}
