package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"

	"crucible/internal/gateway"
)

func TestToRawResponseMapsFinishAndUsage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(`{"facts":"x"}`, genai.RoleModel),
			FinishReason: genai.FinishReasonMaxTokens,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     4,
			CandidatesTokenCount: 8000,
		},
	}
	out, err := toRawResponse(resp)
	if err != nil {
		t.Fatalf("toRawResponse: %v", err)
	}
	if out.Text != `{"facts":"x"}` {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if gateway.NormalizeFinishReason(out.ProviderFinishReason) != gateway.FinishLength {
		t.Fatalf("MAX_TOKENS should normalize to length, got %q", out.ProviderFinishReason)
	}
	if out.Usage.OutputTokens != 8000 || out.Usage.InputTokens != 4 {
		t.Fatalf("unexpected usage %+v", out.Usage)
	}
}

func TestToRawResponseNoCandidates(t *testing.T) {
	if _, err := toRawResponse(&genai.GenerateContentResponse{}); !gateway.IsTransient(err) {
		t.Fatalf("expected transient, got %v", err)
	}
	blocked := &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety}}
	if _, err := toRawResponse(blocked); !gateway.IsPermanent(err) {
		t.Fatalf("expected permanent for blocked prompt, got %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	if err := classifyError(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}); !gateway.IsTransient(err) {
		t.Fatalf("429 should be transient, got %v", err)
	}
	if err := classifyError(genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}); !gateway.IsPermanent(err) {
		t.Fatalf("403 should be permanent, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestCompleteAgainstFakeEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": `{"ok":true}`}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 5},
		})
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := client.Complete(context.Background(), gateway.Request{Model: "gemini-test", System: "s", User: "u", MaxOutputTokens: 100})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"ok":true}` || resp.Usage.OutputTokens != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
}
