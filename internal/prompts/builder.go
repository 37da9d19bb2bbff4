// Package prompts renders the three layer prompts from catalog entries and
// earlier layer outputs. Wording lives in embedded templates so it can change
// without touching the executor.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"crucible/internal/catalog"
	"crucible/internal/gateway"
	"crucible/internal/parser"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Builder produces the prompt for each layer.
type Builder interface {
	Facts(s catalog.Scenario) (gateway.Prompt, error)
	Reasoning(s catalog.Scenario, c catalog.Constitution, facts parser.Output) (gateway.Prompt, error)
	Integrity(s catalog.Scenario, c catalog.Constitution, facts, reasoning parser.Output) (gateway.Prompt, error)
}

// TemplateBuilder renders prompts from the embedded templates.
type TemplateBuilder struct {
	tmpl *template.Template
}

// NewTemplateBuilder parses the embedded templates.
func NewTemplateBuilder() (*TemplateBuilder, error) {
	tmpl, err := template.New("prompts").Funcs(template.FuncMap{
		"join":  strings.Join,
		"field": func(o parser.Output, name string) string { return o.Text(name) },
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	return &TemplateBuilder{tmpl: tmpl}, nil
}

type promptData struct {
	Scenario     catalog.Scenario
	Constitution catalog.Constitution
	Facts        parser.Output
	Reasoning    parser.Output
	Schema       parser.Schema
}

// Facts implements Builder.
func (b *TemplateBuilder) Facts(s catalog.Scenario) (gateway.Prompt, error) {
	return b.render("facts", promptData{Scenario: s, Schema: LayerFacts.Schema()})
}

// Reasoning implements Builder.
func (b *TemplateBuilder) Reasoning(s catalog.Scenario, c catalog.Constitution, facts parser.Output) (gateway.Prompt, error) {
	return b.render("reasoning", promptData{Scenario: s, Constitution: c, Facts: facts, Schema: LayerReasoning.Schema()})
}

// Integrity implements Builder.
func (b *TemplateBuilder) Integrity(s catalog.Scenario, c catalog.Constitution, facts, reasoning parser.Output) (gateway.Prompt, error) {
	return b.render("integrity", promptData{Scenario: s, Constitution: c, Facts: facts, Reasoning: reasoning, Schema: LayerIntegrity.Schema()})
}

func (b *TemplateBuilder) render(name string, data promptData) (gateway.Prompt, error) {
	var system, user bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&system, name+"_system.tmpl", data); err != nil {
		return gateway.Prompt{}, fmt.Errorf("render %s system prompt: %w", name, err)
	}
	if err := b.tmpl.ExecuteTemplate(&user, name+"_user.tmpl", data); err != nil {
		return gateway.Prompt{}, fmt.Errorf("render %s user prompt: %w", name, err)
	}
	return gateway.Prompt{
		System: strings.TrimSpace(system.String()),
		User:   strings.TrimSpace(user.String()),
	}, nil
}
