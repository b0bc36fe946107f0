package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindServerError Kind = "server_error"
	KindAuth        Kind = "auth_error"
	KindMalformed   Kind = "malformed"
	// KindBadOutput is a response that arrived but does not parse or does
	// not match the expected schema.
	KindBadOutput Kind = "bad_output"
)

// Reason codes reported on failed jobs.
const (
	ReasonTransient = "transient_provider_error"
	ReasonPermanent = "permanent_provider_error"
)

// Error is the provider error taxonomy. Timeouts, rate limits and server
// errors are transient; auth failures and malformed requests are permanent.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	// RetryAfter is the server-requested wait, when one was sent.
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	}
	return false
}

// RetryDelay returns the server-requested wait before the next attempt.
func (e *Error) RetryDelay() time.Duration { return e.RetryAfter }

// ReasonCode returns the stable machine-readable failure reason.
func (e *Error) ReasonCode() string {
	if e.Transient() {
		return ReasonTransient
	}
	return ReasonPermanent
}

// IsTransient reports whether err is a transient provider error.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient()
}

// IsBadOutput reports whether err is unusable model output.
func IsBadOutput(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindBadOutput
}

// KindForStatus maps an HTTP status code onto the taxonomy.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindServerError
	default:
		return KindMalformed
	}
}

// StatusError builds an Error from an HTTP response status.
func StatusError(provider string, status int, message string, header http.Header) *Error {
	e := &Error{
		Provider:   provider,
		Kind:       KindForStatus(status),
		StatusCode: status,
		Message:    message,
	}
	if header != nil {
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return e
}

// Classify maps a transport-level failure onto the taxonomy. Errors that are
// already *Error, and context cancellation, pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: provider, Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Provider: provider, Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Provider: provider, Kind: KindServerError, Err: err}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "EOF"):
		return &Error{Provider: provider, Kind: KindServerError, Err: err}
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return &Error{Provider: provider, Kind: KindTimeout, Err: err}
	}
	return &Error{Provider: provider, Kind: KindMalformed, Err: err}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
