package providers

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimited throttles a Caller to a steady request rate.
type RateLimited struct {
	caller  Caller
	limiter *rate.Limiter
}

// NewRateLimited wraps c with a token bucket of rps requests per second.
// The burst allows one second worth of requests, at least one.
func NewRateLimited(c Caller, rps float64) *RateLimited {
	burst := int(math.Max(1, math.Ceil(rps)))
	return &RateLimited{
		caller:  c,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the wrapped provider's name.
func (r *RateLimited) Name() string {
	return r.caller.Name()
}

func (r *RateLimited) Model() string {
	return ModelOf(r.caller)
}

// Call waits for a token, then forwards the request. A wait that cannot
// finish before the attempt's deadline is reported as a timeout.
func (r *RateLimited) Call(ctx context.Context, req *Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && ctxErr == context.Canceled {
			return "", ctxErr
		}
		return "", &Error{Provider: r.caller.Name(), Kind: KindTimeout, Err: err}
	}
	return r.caller.Call(ctx, req)
}

// Tokens reports the tokens currently available.
func (r *RateLimited) Tokens() float64 {
	return r.limiter.Tokens()
}
