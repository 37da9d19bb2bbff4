// Package anthropic implements gateway.Provider over the Anthropic Messages API.
package anthropic

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
	defaultBaseURL     = "https://api.anthropic.com/v1"
	defaultAPIVersion  = "2023-06-01"
	defaultHTTPTimeout = 10 * time.Minute
)

// Config captures Anthropic connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Version string
}

// Client issues one /messages request per Complete call.
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

// NewClient constructs a client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Version: strings.TrimSpace(cfg.Version),
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	if c.cfg.Version == "" {
		c.cfg.Version = defaultAPIVersion
	}
	return c
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements gateway.Provider.
func (c *Client) Complete(ctx context.Context, req gateway.Request) (gateway.RawResponse, error) {
	if c.cfg.APIKey == "" {
		return gateway.RawResponse{}, gateway.Permanent(errors.New("anthropic: api key required"))
	}
	if req.MaxOutputTokens <= 0 {
		return gateway.RawResponse{}, gateway.Permanent(errors.New("anthropic: max_tokens must be positive"))
	}
	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		System:      strings.TrimSpace(req.System),
		Messages:    []message{{Role: "user", Content: req.User}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return gateway.RawResponse{}, gateway.Permanent(fmt.Errorf("anthropic: encode body: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return gateway.RawResponse{}, gateway.Permanent(fmt.Errorf("anthropic: new request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", c.cfg.Version)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gateway.RawResponse{}, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return gateway.RawResponse{}, gateway.Transient(fmt.Errorf("anthropic: read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := gateway.ParseRetryAfter(resp.Header.Get("retry-after"))
		// 529 overloaded is covered by the 5xx rule.
		return gateway.RawResponse{}, gateway.StatusError(resp.StatusCode, string(payload), retryAfter)
	}

	var decoded messagesResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return gateway.RawResponse{}, gateway.Transient(fmt.Errorf("anthropic: decode response: %w", err))
	}
	if decoded.Error != nil {
		return gateway.RawResponse{}, gateway.Transient(fmt.Errorf("anthropic: %s: %s", decoded.Error.Type, decoded.Error.Message))
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return gateway.RawResponse{
		Text:                 text.String(),
		ProviderFinishReason: decoded.StopReason,
		Usage: gateway.Usage{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
		},
	}, nil
}
