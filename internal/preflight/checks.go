package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"crucible/internal/catalog"
	"crucible/internal/config"
	"crucible/internal/gateway"
)

const pingTimeout = 30 * time.Second

// healthChecker is implemented by providers with a dedicated health probe.
type healthChecker interface {
	HealthCheck(ctx context.Context, model string) error
}

// CheckProvider verifies that the provider answers a tiny request for model.
// It uses a 30-second timeout and a single attempt.
func CheckProvider(ctx context.Context, name string, provider gateway.Provider, model string) Result {
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	var err error
	if hc, ok := provider.(healthChecker); ok {
		err = hc.HealthCheck(checkCtx, model)
	} else {
		var resp gateway.RawResponse
		resp, err = provider.Complete(checkCtx, gateway.Request{
			Model:           model,
			System:          "Reply with the single word ok.",
			User:            "ok?",
			MaxOutputTokens: 16,
		})
		if err == nil && strings.TrimSpace(resp.Text) == "" {
			err = errors.New("empty response")
		}
	}
	if err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", model)}
}

// CheckProviderKeys reports whether every provider used by the experiment
// has an API key, either in the config file or its environment variable.
func CheckProviderKeys(cfg *config.Config) []Result {
	var results []Result
	for _, name := range cfg.UsedProviders() {
		label := "API key " + name
		provider, ok := cfg.Provider(name)
		if !ok {
			results = append(results, Result{Name: label, Detail: "provider not configured"})
			continue
		}
		if strings.TrimSpace(provider.APIKey) == "" {
			results = append(results, Result{Name: label, Detail: fmt.Sprintf("missing (set api_key or %s)", config.APIKeyEnvVar(name))})
			continue
		}
		results = append(results, Result{Name: label, Passed: true, Detail: "present"})
	}
	return results
}

// CheckCatalog verifies the scenario and constitution files parse and
// contain every id the experiment selects.
func CheckCatalog(cfg *config.Config) Result {
	const name = "Catalog"

	cat, err := catalog.Load(cfg.Paths.ScenariosFile, cfg.Paths.ConstitutionsFile)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	scenarios, err := cat.SelectScenarios(cfg.Experiment.Scenarios)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	constitutions, err := cat.SelectConstitutions(cfg.Experiment.Constitutions)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d scenarios, %d constitutions", len(scenarios), len(constitutions))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	if gateway.IsPermanent(err) {
		return "rejected: " + err.Error()
	}
	return err.Error()
}
