package prompts_test

import (
	"strings"
	"testing"

	"crucible/internal/catalog"
	"crucible/internal/parser"
	"crucible/internal/prompts"
)

var (
	scenario     = catalog.Scenario{ID: "s1", Title: "Trolley", Description: "A runaway trolley.", Facts: []string{"five people"}}
	constitution = catalog.Constitution{ID: "c1", Name: "Harm minimization", Description: "Minimize harm.", Values: []string{"welfare", "care"}}
)

func TestTemplateBuilderRendersAllLayers(t *testing.T) {
	b, err := prompts.NewTemplateBuilder()
	if err != nil {
		t.Fatalf("NewTemplateBuilder: %v", err)
	}

	facts, err := b.Facts(scenario)
	if err != nil {
		t.Fatalf("Facts: %v", err)
	}
	if facts.System == "" || !strings.Contains(facts.User, "five people") || !strings.Contains(facts.User, "established_facts") {
		t.Fatalf("unexpected facts prompt %+v", facts)
	}

	factsOut := parser.Output{Status: parser.StatusSuccess, Fields: map[string]any{"established_facts": "the trolley is moving"}}
	reasoning, err := b.Reasoning(scenario, constitution, factsOut)
	if err != nil {
		t.Fatalf("Reasoning: %v", err)
	}
	if !strings.Contains(reasoning.User, "the trolley is moving") || !strings.Contains(reasoning.User, "welfare, care") {
		t.Fatalf("reasoning prompt missing inputs: %s", reasoning.User)
	}
	if !strings.Contains(reasoning.User, parser.MissingSentinel) {
		t.Fatal("absent fields should render as the missing sentinel")
	}

	reasoningOut := parser.Output{Status: parser.StatusPartialSuccess, Fields: map[string]any{"reasoning": "pull the lever"}}
	integrity, err := b.Integrity(scenario, constitution, factsOut, reasoningOut)
	if err != nil {
		t.Fatalf("Integrity: %v", err)
	}
	if !strings.Contains(integrity.User, "pull the lever") {
		t.Fatalf("integrity prompt missing reasoning: %s", integrity.User)
	}
}

func TestLayerNamesAndSchemas(t *testing.T) {
	for _, layer := range prompts.Layers {
		if layer.Name() == "unknown" {
			t.Fatalf("layer %d has no name", layer)
		}
		if len(layer.Schema().Fields) == 0 {
			t.Fatalf("layer %s has no schema", layer)
		}
	}
	if prompts.Layer(9).Name() != "unknown" {
		t.Fatal("out of range layer should be unknown")
	}
}
