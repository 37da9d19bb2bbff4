package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crucible/internal/logging"
	"crucible/internal/services"
)

// Router implements Gateway by dispatching on ModelRef.Provider.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *slog.Logger
	now       func() time.Time
}

// NewRouter returns an empty router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		logger:    logging.NewComponentLogger(logger, "gateway"),
		now:       time.Now,
	}
}

// Register binds a provider name to an implementation.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(strings.TrimSpace(name))] = provider
}

// Providers lists registered provider names.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Call performs exactly one provider request.
func (r *Router) Call(ctx context.Context, model ModelRef, prompt Prompt, gen GenerationConfig) (RawResponse, error) {
	r.mu.RLock()
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(model.Provider))]
	r.mu.RUnlock()
	if !ok {
		return RawResponse{}, &CallError{
			Kind:     KindPermanent,
			Provider: model.Provider,
			Model:    model.ID,
			Err:      fmt.Errorf("unknown provider %q", model.Provider),
		}
	}

	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = services.WithRequestID(ctx, requestID)
	}
	callCtx := ctx
	if timeout := gen.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, r.logger)
	start := r.now()
	resp, err := provider.Complete(callCtx, Request{
		Model:           model.Name,
		System:          prompt.System,
		User:            prompt.User,
		MaxOutputTokens: gen.MaxOutputTokens,
		Temperature:     gen.Temperature,
	})
	latency := r.now().Sub(start)

	if err != nil {
		if ctx.Err() != nil {
			return RawResponse{}, ctx.Err()
		}
		callErr := classify(err)
		if callErr.Provider == "" {
			callErr.Provider = model.Provider
		}
		if callErr.Model == "" {
			callErr.Model = model.ID
		}
		logger.Debug("model call failed",
			logging.String("model", model.ID),
			logging.String("kind", string(callErr.Kind)),
			logging.Int("status_code", callErr.StatusCode),
			logging.Duration("latency", latency),
			logging.Error(err),
		)
		return RawResponse{}, callErr
	}

	resp.Model = model.ID
	resp.Provider = model.Provider
	resp.RequestID = requestID
	resp.Latency = latency
	if resp.FinishReason == "" {
		resp.FinishReason = NormalizeFinishReason(resp.ProviderFinishReason)
	}
	if strings.TrimSpace(resp.Text) == "" && resp.FinishReason != FinishLength {
		return RawResponse{}, &CallError{
			Kind:     KindTransient,
			Provider: model.Provider,
			Model:    model.ID,
			Err:      errors.New("empty completion (finish_reason=" + resp.ProviderFinishReason + ")"),
		}
	}

	logger.Debug("model call completed",
		logging.String("model", model.ID),
		logging.String("finish_reason", resp.FinishReason),
		logging.Int("max_tokens", gen.MaxOutputTokens),
		logging.Int("output_tokens", resp.Usage.OutputTokens),
		logging.Duration("latency", latency),
	)
	return resp, nil
}
