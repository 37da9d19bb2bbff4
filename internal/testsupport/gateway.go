package testsupport

import (
	"context"
	"strings"
	"sync"

	"crucible/internal/gateway"
)

// Call records one request seen by a Gateway.
type Call struct {
	Model  gateway.ModelRef
	Prompt gateway.Prompt
	Gen    gateway.GenerationConfig
}

// Gateway is a scripted gateway.Gateway. Respond decides each reply; when it
// is nil every call returns ValidJSON for the prompt's layer.
type Gateway struct {
	Respond func(ctx context.Context, call Call, n int) (gateway.RawResponse, error)

	mu    sync.Mutex
	calls []Call
}

// Call implements gateway.Gateway. n counts previous calls with the same
// model and user prompt, starting at 1.
func (g *Gateway) Call(ctx context.Context, model gateway.ModelRef, prompt gateway.Prompt, gen gateway.GenerationConfig) (gateway.RawResponse, error) {
	call := Call{Model: model, Prompt: prompt, Gen: gen}
	g.mu.Lock()
	g.calls = append(g.calls, call)
	n := 0
	for _, c := range g.calls {
		if c.Model.ID == model.ID && c.Prompt.User == prompt.User {
			n++
		}
	}
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return gateway.RawResponse{}, err
	}
	if g.Respond == nil {
		return Reply(ValidJSON(prompt)), nil
	}
	return g.Respond(ctx, call, n)
}

// Calls returns a snapshot of recorded calls.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how many calls were made.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Reply wraps text in a clean stop response.
func Reply(text string) gateway.RawResponse {
	return gateway.RawResponse{
		Text:         text,
		FinishReason: gateway.FinishStop,
		Usage:        gateway.Usage{InputTokens: 10, OutputTokens: len(text) / 4},
	}
}

// LayerOf infers the layer from the rendered user prompt.
func LayerOf(prompt gateway.Prompt) int {
	switch {
	case strings.Contains(prompt.User, "factual_adherence"):
		return 3
	case strings.Contains(prompt.User, "recommendation"):
		return 2
	default:
		return 1
	}
}

// ValidJSON returns a well-formed response carrying every field of the
// prompt's layer.
func ValidJSON(prompt gateway.Prompt) string {
	switch LayerOf(prompt) {
	case 3:
		return `{"factual_adherence": 5, "value_transparency": 4, "logical_coherence": 5, "overall_assessment": "consistent"}`
	case 2:
		return `{"reasoning": "weighing the outcomes", "recommendation": "act", "values_applied": ["welfare"], "tradeoffs_acknowledged": "some harm remains"}`
	default:
		return `{"established_facts": ["five workers"], "ambiguous_elements": ["timing"], "key_questions": ["can they move?"]}`
	}
}
