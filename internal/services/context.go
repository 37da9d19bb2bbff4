package services

import "context"

type contextKey string

const (
	testIDKey       contextKey = "test_id"
	layerKey        contextKey = "layer"
	experimentIDKey contextKey = "experiment_id"
	runIDKey        contextKey = "run_id"
	requestIDKey    contextKey = "request_id"
)

// WithTestID annotates context with the unit's test identifier.
func WithTestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, testIDKey, id)
}

// TestIDFromContext extracts the unit's test identifier if present.
func TestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(testIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithLayer annotates context with the pipeline layer name.
func WithLayer(ctx context.Context, layer string) context.Context {
	if layer == "" {
		return ctx
	}
	return context.WithValue(ctx, layerKey, layer)
}

// LayerFromContext returns the layer name if present.
func LayerFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(layerKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithExperimentID annotates context with the experiment identifier.
func WithExperimentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, experimentIDKey, id)
}

// ExperimentIDFromContext returns the experiment identifier if present.
func ExperimentIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(experimentIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the identifier of the current process run.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
