package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusRequestTimeout, KindTimeout},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusInternalServerError, KindServerError},
		{http.StatusBadGateway, KindServerError},
		{http.StatusBadRequest, KindMalformed},
		{http.StatusUnprocessableEntity, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := KindForStatus(tt.status); got != tt.want {
				t.Errorf("KindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestError_Transient(t *testing.T) {
	transient := []Kind{KindTimeout, KindRateLimited, KindServerError}
	permanent := []Kind{KindAuth, KindMalformed}

	for _, k := range transient {
		e := &Error{Provider: "x", Kind: k}
		if !e.Transient() {
			t.Errorf("%s should be transient", k)
		}
		if e.ReasonCode() != ReasonTransient {
			t.Errorf("%s reason = %s, want %s", k, e.ReasonCode(), ReasonTransient)
		}
	}
	for _, k := range permanent {
		e := &Error{Provider: "x", Kind: k}
		if e.Transient() {
			t.Errorf("%s should not be transient", k)
		}
		if e.ReasonCode() != ReasonPermanent {
			t.Errorf("%s reason = %s, want %s", k, e.ReasonCode(), ReasonPermanent)
		}
	}
}

func TestStatusError_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	e := StatusError("openai", http.StatusTooManyRequests, "slow down", h)
	if e.Kind != KindRateLimited {
		t.Errorf("Kind = %s, want %s", e.Kind, KindRateLimited)
	}
	if e.RetryDelay() != 2*time.Second {
		t.Errorf("RetryDelay() = %v, want 2s", e.RetryDelay())
	}
}

func TestClassify(t *testing.T) {
	t.Run("passes through provider errors", func(t *testing.T) {
		orig := &Error{Provider: "claude", Kind: KindAuth}
		if got := Classify("other", orig); got != orig {
			t.Errorf("Classify() = %v, want original", got)
		}
	})

	t.Run("passes through cancellation", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", context.Canceled)
		if got := Classify("x", err); !errors.Is(got, context.Canceled) || IsTransient(got) {
			t.Errorf("Classify() = %v, want cancellation unchanged", got)
		}
	})

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"connection refused", errors.New("dial tcp: connection refused"), KindServerError},
		{"timeout text", errors.New("i/o timeout"), KindTimeout},
		{"other", errors.New("unexpected token"), KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("x", tt.err)
			var pe *Error
			if !errors.As(got, &pe) {
				t.Fatalf("Classify() = %T, want *Error", got)
			}
			if pe.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", pe.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}
