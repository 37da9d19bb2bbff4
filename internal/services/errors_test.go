package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"crucible/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "reasoning", "call", "rate limited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"reasoning", "call", "rate limited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"transient", services.Wrap(services.ErrTransient, "facts", "call", "timeout", nil), services.KindTransient},
		{"permanent", fmt.Errorf("outer: %w", services.ErrPermanent), services.KindPermanent},
		{"truncation", services.Wrap(services.ErrTruncation, "facts", "ladder", "exhausted", nil), services.KindTruncation},
		{"config", services.Wrap(services.ErrConfiguration, "", "", "missing key", nil), services.KindConfiguration},
		{"unknown", errors.New("plain"), services.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsRetryableOnlyForTransient(t *testing.T) {
	if !services.IsRetryable(services.Wrap(services.ErrTransient, "", "", "x", nil)) {
		t.Fatal("expected transient error to be retryable")
	}
	if services.IsRetryable(services.Wrap(services.ErrPermanent, "", "", "x", nil)) {
		t.Fatal("expected permanent error not to be retryable")
	}
	if services.IsRetryable(nil) {
		t.Fatal("expected nil error not to be retryable")
	}
}

func TestDetailsCarriesHint(t *testing.T) {
	details := services.Details(services.Wrap(services.ErrPermanent, "evaluation", "call", "http 401", nil))
	if details.Kind != services.KindPermanent {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Hint == "" || details.Message == "" {
		t.Fatalf("expected hint and message, got %+v", details)
	}
}
