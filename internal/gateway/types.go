package gateway

import (
	"context"
	"time"
)

// Normalized finish reasons.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
	FinishOther         = "other"
)

// ModelRef identifies a model by matrix id, provider and provider-side name.
type ModelRef struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// Prompt is the text sent to a model.
type Prompt struct {
	System string `json:"system,omitempty"`
	User   string `json:"user"`
}

// GenerationConfig carries per-call generation parameters.
type GenerationConfig struct {
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`
	TimeoutSeconds  int     `json:"timeout_seconds"`
}

// Timeout returns the per-call deadline; zero disables it.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Usage reports provider token accounting. Zero means unreported.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RawResponse is a completed call, before any parsing.
type RawResponse struct {
	Text                 string        `json:"text"`
	FinishReason         string        `json:"finish_reason"`
	ProviderFinishReason string        `json:"provider_finish_reason,omitempty"`
	Usage                Usage         `json:"usage"`
	Model                string        `json:"model"`
	Provider             string        `json:"provider"`
	RequestID            string        `json:"request_id,omitempty"`
	Latency              time.Duration `json:"latency"`
}

// Request is what a Provider receives from the Router.
type Request struct {
	Model           string
	System          string
	User            string
	MaxOutputTokens int
	Temperature     float64
}

// Provider talks to one backend. Implementations return *CallError for
// classified failures; anything else is treated as transient.
type Provider interface {
	Complete(ctx context.Context, req Request) (RawResponse, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (RawResponse, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (RawResponse, error) {
	return f(ctx, req)
}

// Gateway is the call surface the executor depends on.
type Gateway interface {
	Call(ctx context.Context, model ModelRef, prompt Prompt, gen GenerationConfig) (RawResponse, error)
}
