package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crucible/internal/gateway"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 10 * time.Minute
	jsonResponseType   = "json_object"
)

// Config captures the runtime settings required to talk to an
// OpenAI-compatible chat completions endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Referer string
	Title   string
	// JSONMode requests response_format=json_object.
	JSONMode bool
}

// Client wraps an OpenAI-compatible chat completion API and implements
// gateway.Provider. It issues exactly one HTTP request per Complete call.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration. The
// per-call deadline comes from the request context; the HTTP client timeout
// is only a backstop.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:   strings.TrimSpace(cfg.APIKey),
			BaseURL:  strings.TrimSpace(cfg.BaseURL),
			Referer:  strings.TrimSpace(cfg.Referer),
			Title:    strings.TrimSpace(cfg.Title),
			JSONMode: cfg.JSONMode,
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// Complete implements gateway.Provider.
func (c *Client) Complete(ctx context.Context, req gateway.Request) (gateway.RawResponse, error) {
	if c.cfg.APIKey == "" {
		return gateway.RawResponse{}, gateway.Permanent(errors.New("llm complete: api key required"))
	}
	if strings.TrimSpace(req.User) == "" {
		return gateway.RawResponse{}, gateway.Permanent(errors.New("llm complete: user prompt required"))
	}
	payload := chatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.User})
	if c.cfg.JSONMode {
		payload.ResponseFormat = map[string]string{"type": jsonResponseType}
	}

	completion, err := c.sendChatRequestOnce(ctx, payload)
	if err != nil {
		return gateway.RawResponse{}, err
	}
	content, finishReason := extractCompletionPayload(completion)
	if content == "" && finishReason == "" {
		if refusal := extractCompletionRefusal(completion); refusal != "" {
			return gateway.RawResponse{}, gateway.Permanent(fmt.Errorf("llm complete: refusal: %s", refusal))
		}
	}
	return gateway.RawResponse{
		Text:                 content,
		ProviderFinishReason: finishReason,
		Usage: gateway.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}, nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context, model string) error {
	resp, err := c.Complete(ctx, gateway.Request{
		Model:           model,
		System:          "You must respond with JSON only.",
		User:            `Respond with {"ok":true}`,
		MaxOutputTokens: 32,
	})
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	if !strings.Contains(resp.Text, "ok") {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type completionChoice struct {
	Message completionMessage `json:"message"`
	// Some OpenAI-compatible gateways answer a non-streaming call with the
	// streaming "delta" shape or the legacy "text" field.
	Delta        completionMessage `json:"delta"`
	Text         string            `json:"text"`
	FinishReason string            `json:"finish_reason"`
}

type completionMessage struct {
	Content      string `json:"content"`
	Refusal      string `json:"refusal"`
	FunctionCall *struct {
		Arguments string `json:"arguments"`
	} `json:"function_call"`
	ToolCalls []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// body returns the message text, falling back to function or tool call
// arguments for models that answer structured prompts that way.
func (m completionMessage) body() string {
	if text := strings.TrimSpace(m.Content); text != "" {
		return text
	}
	if m.FunctionCall != nil {
		if args := strings.TrimSpace(m.FunctionCall.Arguments); args != "" {
			return args
		}
	}
	for _, call := range m.ToolCalls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

// extractCompletionPayload returns the first non-empty choice body and the
// first reported finish reason.
func extractCompletionPayload(completion chatCompletionResponse) (content, finishReason string) {
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		for _, candidate := range []string{choice.Message.body(), choice.Delta.body(), strings.TrimSpace(choice.Text)} {
			if candidate != "" {
				return candidate, finishReason
			}
		}
	}
	return "", finishReason
}

func extractCompletionRefusal(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		for _, refusal := range []string{choice.Message.Refusal, choice.Delta.Refusal} {
			if refusal = strings.TrimSpace(refusal); refusal != "" {
				return refusal
			}
		}
	}
	return ""
}

func (c *Client) newRequest(ctx context.Context, payload chatCompletionRequest) (*http.Request, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	return req, nil
}

// sendChatRequestOnce performs one POST. Status codes and decode failures
// are classified for the gateway; transport errors are returned as-is.
func (c *Client) sendChatRequestOnce(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse
	req, err := c.newRequest(ctx, payload)
	if err != nil {
		return completion, gateway.Permanent(fmt.Errorf("llm request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	switch {
	case err != nil:
		return completion, gateway.Transient(fmt.Errorf("llm request: read body: %w", err))
	case resp.StatusCode >= http.StatusMultipleChoices:
		retryAfter, _ := gateway.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, gateway.StatusError(resp.StatusCode, string(body), retryAfter)
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, gateway.Transient(fmt.Errorf("llm request: decode response: %w", err))
	}
	if completion.Error != nil {
		return completion, gateway.Transient(fmt.Errorf("llm request: provider error: %s", strings.TrimSpace(completion.Error.Message)))
	}
	return completion, nil
}
