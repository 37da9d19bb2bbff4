package services_test

import (
	"context"
	"testing"

	"crucible/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTestID(ctx, "s1_c1_m1")
	ctx = services.WithLayer(ctx, "reasoning")
	ctx = services.WithExperimentID(ctx, "exp-1")
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TestIDFromContext(ctx); !ok || id != "s1_c1_m1" {
		t.Fatalf("unexpected test id: %v %v", id, ok)
	}
	if layer, ok := services.LayerFromContext(ctx); !ok || layer != "reasoning" {
		t.Fatalf("unexpected layer: %v %v", layer, ok)
	}
	if id, ok := services.ExperimentIDFromContext(ctx); !ok || id != "exp-1" {
		t.Fatalf("unexpected experiment id: %v %v", id, ok)
	}
	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestLayerBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithLayer(ctx, "")
	if _, ok := services.LayerFromContext(ctx); ok {
		t.Fatal("expected no layer value")
	}
}
