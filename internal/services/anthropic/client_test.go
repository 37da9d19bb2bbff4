package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crucible/internal/gateway"
)

func TestCompleteMapsStopReasonAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") != defaultAPIVersion {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.MaxTokens != 12000 || req.System != "sys" || req.Messages[0].Content != "user" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     []any{map[string]any{"type": "text", "text": `{"a":`}, map[string]any{"type": "text", "text": `1}`}},
			"stop_reason": "max_tokens",
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 12000},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL + "/"})
	resp, err := client.Complete(context.Background(), gateway.Request{Model: "claude", System: "sys", User: "user", MaxOutputTokens: 12000})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"a":1}` {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if gateway.NormalizeFinishReason(resp.ProviderFinishReason) != gateway.FinishLength {
		t.Fatalf("max_tokens should normalize to length, got %q", resp.ProviderFinishReason)
	}
	if resp.Usage.OutputTokens != 12000 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestCompleteOverloadedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), gateway.Request{User: "u", MaxOutputTokens: 10})
	if !gateway.IsTransient(err) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestCompleteBadRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), gateway.Request{User: "u", MaxOutputTokens: 10})
	if !gateway.IsPermanent(err) {
		t.Fatalf("expected permanent, got %v", err)
	}
}

func TestCompleteRequiresKeyAndBudget(t *testing.T) {
	if _, err := NewClient(Config{}).Complete(context.Background(), gateway.Request{User: "u", MaxOutputTokens: 1}); !gateway.IsPermanent(err) {
		t.Fatalf("expected permanent for missing key, got %v", err)
	}
	if _, err := NewClient(Config{APIKey: "k"}).Complete(context.Background(), gateway.Request{User: "u"}); !gateway.IsPermanent(err) {
		t.Fatalf("expected permanent for missing budget, got %v", err)
	}
}
