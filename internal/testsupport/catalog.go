package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"crucible/internal/config"
)

// ScenariosYAML backs the s1/s2 scenarios of NewConfig.
const ScenariosYAML = `scenarios:
  - id: s1
    title: Runaway trolley
    description: A trolley is heading toward five workers.
    facts: ["five workers on the main track", "one worker on the side track"]
  - id: s2
    title: Lifeboat
    description: A lifeboat holds more people than it can carry.
    facts: ["the boat is taking on water"]
`

// ConstitutionsYAML backs the c1/c2 constitutions of NewConfig.
const ConstitutionsYAML = `constitutions:
  - id: c1
    name: Harm minimization
    description: Choose the action that minimizes total harm.
    values: [welfare]
  - id: c2
    name: Rights first
    description: Never violate an individual's rights.
    values: [autonomy, consent]
`

// WriteCatalog writes the default catalog files to the configured paths.
func WriteCatalog(t testing.TB, cfg *config.Config) {
	t.Helper()
	writeFile(t, cfg.Paths.ScenariosFile, ScenariosYAML)
	writeFile(t, cfg.Paths.ConstitutionsFile, ConstitutionsYAML)
}

func writeFile(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
