// Package catalog loads the scenarios and constitutions an experiment is
// built from. Both are YAML lists keyed by id and are read once per run.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"crucible/internal/services"
)

// Scenario is a dilemma presented to every model.
type Scenario struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Description string   `yaml:"description" json:"description"`
	Facts       []string `yaml:"facts,omitempty" json:"facts,omitempty"`
}

// Constitution is a value framework a model reasons under.
type Constitution struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Values      []string `yaml:"values,omitempty" json:"values,omitempty"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

type constitutionFile struct {
	Constitutions []Constitution `yaml:"constitutions"`
}

// Catalog holds the loaded entries in file order.
type Catalog struct {
	Scenarios     []Scenario
	Constitutions []Constitution
}

// Load reads both catalog files.
func Load(scenariosPath, constitutionsPath string) (*Catalog, error) {
	var sf scenarioFile
	if err := decodeFile(scenariosPath, &sf); err != nil {
		return nil, err
	}
	var cf constitutionFile
	if err := decodeFile(constitutionsPath, &cf); err != nil {
		return nil, err
	}
	cat := &Catalog{Scenarios: sf.Scenarios, Constitutions: cf.Constitutions}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Parse decodes catalogs from in-memory YAML.
func Parse(scenariosYAML, constitutionsYAML []byte) (*Catalog, error) {
	var sf scenarioFile
	if err := decodeKnownFields(scenariosYAML, &sf); err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "parse scenarios", "invalid YAML", err)
	}
	var cf constitutionFile
	if err := decodeKnownFields(constitutionsYAML, &cf); err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "parse constitutions", "invalid YAML", err)
	}
	cat := &Catalog{Scenarios: sf.Scenarios, Constitutions: cf.Constitutions}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "catalog", "read", path, err)
		}
		return fmt.Errorf("read catalog %s: %w", path, err)
	}
	if err := decodeKnownFields(data, out); err != nil {
		return services.Wrap(services.ErrValidation, "catalog", "parse", path, err)
	}
	return nil
}

func decodeKnownFields(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not supported")
	} else if !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed after first YAML document: %w", err)
	}
	return nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]struct{})
	for i, s := range c.Scenarios {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return services.Wrap(services.ErrValidation, "catalog", "validate", fmt.Sprintf("scenario %d has no id", i), nil)
		}
		if _, dup := seen[id]; dup {
			return services.Wrap(services.ErrValidation, "catalog", "validate", fmt.Sprintf("duplicate scenario id %q", id), nil)
		}
		seen[id] = struct{}{}
		c.Scenarios[i].ID = id
	}
	seen = make(map[string]struct{})
	for i, k := range c.Constitutions {
		id := strings.TrimSpace(k.ID)
		if id == "" {
			return services.Wrap(services.ErrValidation, "catalog", "validate", fmt.Sprintf("constitution %d has no id", i), nil)
		}
		if _, dup := seen[id]; dup {
			return services.Wrap(services.ErrValidation, "catalog", "validate", fmt.Sprintf("duplicate constitution id %q", id), nil)
		}
		seen[id] = struct{}{}
		c.Constitutions[i].ID = id
	}
	return nil
}

// Scenario returns the scenario with id.
func (c *Catalog) Scenario(id string) (Scenario, bool) {
	for _, s := range c.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// Constitution returns the constitution with id.
func (c *Catalog) Constitution(id string) (Constitution, bool) {
	for _, k := range c.Constitutions {
		if k.ID == id {
			return k, true
		}
	}
	return Constitution{}, false
}

// SelectScenarios returns the requested scenario ids in the given order, or
// every scenario in file order when ids is empty.
func (c *Catalog) SelectScenarios(ids []string) ([]string, error) {
	if len(ids) == 0 {
		out := make([]string, 0, len(c.Scenarios))
		for _, s := range c.Scenarios {
			out = append(out, s.ID)
		}
		return out, nil
	}
	for _, id := range ids {
		if _, ok := c.Scenario(id); !ok {
			return nil, services.Wrap(services.ErrNotFound, "catalog", "select", fmt.Sprintf("unknown scenario %q", id), nil)
		}
	}
	return append([]string(nil), ids...), nil
}

// SelectConstitutions mirrors SelectScenarios for constitutions.
func (c *Catalog) SelectConstitutions(ids []string) ([]string, error) {
	if len(ids) == 0 {
		out := make([]string, 0, len(c.Constitutions))
		for _, k := range c.Constitutions {
			out = append(out, k.ID)
		}
		return out, nil
	}
	for _, id := range ids {
		if _, ok := c.Constitution(id); !ok {
			return nil, services.Wrap(services.ErrNotFound, "catalog", "select", fmt.Sprintf("unknown constitution %q", id), nil)
		}
	}
	return append([]string(nil), ids...), nil
}
