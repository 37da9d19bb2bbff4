// Package gemini implements gateway.Provider with the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"crucible/internal/gateway"
)

// Config captures Gemini connection settings. BaseURL is optional.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client wraps a genai.Client.
type Client struct {
	client *genai.Client
}

// NewClient constructs a Gemini client for the Gemini Developer API.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: client}, nil
}

// Complete implements gateway.Provider.
func (c *Client) Complete(ctx context.Context, req gateway.Request) (gateway.RawResponse, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.User), genCfg)
	if err != nil {
		return gateway.RawResponse{}, classifyError(err)
	}
	return toRawResponse(resp)
}

func toRawResponse(resp *genai.GenerateContentResponse) (gateway.RawResponse, error) {
	if resp == nil {
		return gateway.RawResponse{}, gateway.Transient(errors.New("gemini: nil response"))
	}
	out := gateway.RawResponse{}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return out, gateway.Permanent(fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason))
		}
		return out, gateway.Transient(errors.New("gemini: no candidates"))
	}
	out.Text = resp.Text()
	out.ProviderFinishReason = string(resp.Candidates[0].FinishReason)
	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = gateway.Usage{
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
		}
	}
	return out, nil
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return gateway.StatusError(apiErr.Code, apiErr.Status+": "+apiErr.Message, 0)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return gateway.StatusError(apiErrPtr.Code, apiErrPtr.Status+": "+apiErrPtr.Message, 0)
	}
	return fmt.Errorf("gemini: %w", err)
}
