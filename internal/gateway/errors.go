package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crucible/internal/services"
)

// Kind classifies a call failure.
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
)

// CallError is the only error type Router.Call returns for provider failures.
type CallError struct {
	Kind       Kind
	Provider   string
	Model      string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *CallError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("gateway ")
	b.WriteString(string(e.Kind))
	if e.Provider != "" || e.Model != "" {
		fmt.Fprintf(&b, " (%s/%s)", e.Provider, e.Model)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " http %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CallError) Unwrap() error { return e.Err }

// Is maps the kind onto the services markers so callers can use errors.Is.
func (e *CallError) Is(target error) bool {
	switch target {
	case services.ErrTransient:
		return e.Kind == KindTransient
	case services.ErrPermanent:
		return e.Kind == KindPermanent
	}
	return false
}

// Transient returns a transient CallError.
func Transient(err error) *CallError { return &CallError{Kind: KindTransient, Err: err} }

// Permanent returns a permanent CallError.
func Permanent(err error) *CallError { return &CallError{Kind: KindPermanent, Err: err} }

// StatusError classifies an HTTP failure: 408, 429 and 5xx are transient,
// every other status is permanent.
func StatusError(status int, body string, retryAfter time.Duration) *CallError {
	kind := KindPermanent
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		kind = KindTransient
	}
	return &CallError{
		Kind:       kind,
		StatusCode: status,
		RetryAfter: retryAfter,
		Err:        fmt.Errorf("http %d: %s", status, summarizeBody(body)),
	}
}

// IsTransient reports whether err is a transient call failure.
func IsTransient(err error) bool { return errors.Is(err, services.ErrTransient) }

// IsPermanent reports whether err is a permanent call failure.
func IsPermanent(err error) bool { return errors.Is(err, services.ErrPermanent) }

// RetryAfterOf returns the provider's Retry-After hint carried by err.
func RetryAfterOf(err error) time.Duration {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.RetryAfter
	}
	return 0
}

// classify converts an arbitrary provider error into a CallError. Errors the
// provider did not classify (timeouts, connection resets) are transient.
func classify(err error) *CallError {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(fmt.Errorf("call timed out: %w", err))
	}
	return Transient(err)
}

// ParseRetryAfter parses a Retry-After header as seconds or an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func summarizeBody(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 240
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
