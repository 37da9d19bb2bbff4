package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"crucible/internal/services"
)

// Matrix describes the experiment dimensions.
type Matrix struct {
	Name           string   `json:"name"`
	Scenarios      []string `json:"scenarios"`
	Constitutions  []string `json:"constitutions"`
	Models         []string `json:"models"`
	EvaluatorModel string   `json:"evaluator_model"`
}

// Size is the number of units the matrix expands to.
func (m Matrix) Size() int {
	return len(m.Scenarios) * len(m.Constitutions) * len(m.Models)
}

// TestID builds the stable identifier for a unit.
func TestID(scenarioID, constitutionID, modelID string) string {
	return scenarioID + "_" + constitutionID + "_" + modelID
}

// Units expands the matrix scenario-major, then constitution, with the model
// innermost. Ordinals start at 1. Coordinates that collapse to the same test
// id, or to the same artifact file name, are rejected.
func (m Matrix) Units() ([]Unit, error) {
	if m.Size() == 0 {
		return nil, services.Wrap(services.ErrValidation, "state", "expand matrix", "matrix has an empty dimension", nil)
	}
	units := make([]Unit, 0, m.Size())
	seen := make(map[string]string, m.Size())
	ordinal := 0
	for _, scenario := range m.Scenarios {
		for _, constitution := range m.Constitutions {
			for _, model := range m.Models {
				ordinal++
				id := TestID(scenario, constitution, model)
				name := artifactName(id)
				if other, dup := seen[name]; dup {
					return nil, services.Wrap(
						services.ErrValidation,
						"state",
						"expand matrix",
						fmt.Sprintf("test ids %q and %q share the artifact name %q", other, id, name),
						nil,
					)
				}
				seen[name] = id
				units = append(units, Unit{
					TestID:         id,
					ScenarioID:     scenario,
					ConstitutionID: constitution,
					ModelID:        model,
					Ordinal:        ordinal,
					Status:         StatusPending,
				})
			}
		}
	}
	return units, nil
}

// Fingerprint identifies the matrix contents. Resuming against a different
// fingerprint is refused.
func (m Matrix) Fingerprint() string {
	h := sha256.New()
	write := func(label string, values []string) {
		h.Write([]byte(label))
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(values, "\x1f")))
		h.Write([]byte{0})
	}
	write("scenarios", m.Scenarios)
	write("constitutions", m.Constitutions)
	write("models", m.Models)
	write("evaluator", []string{m.EvaluatorModel})
	return hex.EncodeToString(h.Sum(nil))[:16]
}
