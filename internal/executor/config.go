package executor

import (
	"crucible/internal/config"
	"crucible/internal/gateway"
	"crucible/internal/prompts"
)

// OptionsFromConfig maps the experiment section onto executor options.
func OptionsFromConfig(cfg *config.Config, experimentID string) Options {
	models := make(map[string]gateway.ModelRef, len(cfg.Models))
	for _, m := range cfg.Models {
		models[m.ID] = gateway.ModelRef{ID: m.ID, Provider: m.Provider, Name: m.Name}
	}
	exp := cfg.Experiment
	return Options{
		ExperimentID:   experimentID,
		Models:         models,
		EvaluatorModel: exp.EvaluatorModel,
		Temperature:    exp.Temperature,
		TimeoutSeconds: exp.TimeoutSeconds,
		Budgets: map[prompts.Layer]int{
			prompts.LayerFacts:     exp.FactBudget,
			prompts.LayerReasoning: exp.ReasoningBudget,
			prompts.LayerIntegrity: exp.EvaluationBudget,
		},
		TransientAttempts: exp.TransientAttempts,
		RetryBaseDelay:    cfg.RetryBaseDelay(),
		RetryMaxDelay:     cfg.RetryMaxDelay(),
	}
}
