package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jackzampolin/problembook/internal/cache"
	"github.com/jackzampolin/problembook/internal/retry"
)

// FallbackPolicy selects which AI failures hand over to the rule-based
// extractor.
type FallbackPolicy int

const (
	// FallbackOnAnyFailure falls back on exhausted retries and on
	// permanent provider failures.
	FallbackOnAnyFailure FallbackPolicy = iota
	// FallbackOnExhaustion falls back only when retries ran out or the
	// output was unusable. Other permanent failures are returned to the
	// caller.
	FallbackOnExhaustion
)

// HybridConfig configures a Hybrid extractor.
type HybridConfig struct {
	// AI is tried first. It may be nil, in which case only rules run.
	AI Extractor
	// Rules is the deterministic fallback (default: RuleExtractor).
	Rules Extractor
	// Cache holds AI results and, when CacheFallback is set, rule results
	// under a separate key. It may be nil.
	Cache          *cache.Cache[*Result]
	CacheTTL       time.Duration
	CacheFallback  bool
	FallbackPolicy FallbackPolicy
	Logger         *slog.Logger
}

// Hybrid runs AI extraction with caching, validation and a rule-based
// fallback. Concurrent calls for the same cache key share one AI call.
type Hybrid struct {
	ai            Extractor
	rules         Extractor
	cache         *cache.Cache[*Result]
	cacheTTL      time.Duration
	cacheFallback bool
	policy        FallbackPolicy
	flight        singleflight.Group
	logger        *slog.Logger
}

// NewHybrid creates a hybrid extractor.
func NewHybrid(cfg HybridConfig) *Hybrid {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := cfg.Rules
	if rules == nil {
		rules = NewRuleExtractor()
	}
	return &Hybrid{
		ai:            cfg.AI,
		rules:         rules,
		cache:         cfg.Cache,
		cacheTTL:      cfg.CacheTTL,
		cacheFallback: cfg.CacheFallback,
		policy:        cfg.FallbackPolicy,
		logger:        logger.With("component", "hybrid_extractor"),
	}
}

// Name returns the extractor identifier.
func (h *Hybrid) Name() string {
	return "hybrid"
}

// cacheKey fingerprints the input for one extractor. The page is part of
// the parameters because theory IDs depend on it, and the model because a
// reload may switch it.
func cacheKey(extractor Extractor, in Input) cache.Key {
	params := map[string]string{
		"book_id": in.BookID,
		"chapter": strconv.Itoa(in.Chapter),
		"page":    strconv.Itoa(in.Page),
	}
	if m, ok := extractor.(interface{ Model() string }); ok {
		params["model"] = m.Model()
	}
	return cache.NewKey(in.Text, extractor.Name(), params)
}

// Extract returns the AI result when it is available and well formed,
// otherwise the rule-based result. It fails with *EmptyError when neither
// produced a block, and with ctx.Err() when cancelled.
func (h *Hybrid) Extract(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := h.logger.With("book_id", in.BookID, "page", in.Page)

	var aiErr error
	if h.ai != nil {
		r, err := h.extractAI(ctx, in)
		if err == nil {
			return r, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var invalid *invalidResultError
		if !errors.As(err, &invalid) && retry.IsPermanent(err) && h.policy == FallbackOnExhaustion {
			return nil, err
		}
		log.Warn("ai extraction failed, falling back to rules", "error", err)
		aiErr = err
	}

	r, err := h.extractRules(ctx, in)
	if err != nil {
		return nil, err
	}
	if r.Empty() {
		return nil, &EmptyError{BookID: in.BookID, Page: in.Page, AIErr: aiErr}
	}
	return r, nil
}

func (h *Hybrid) extractAI(ctx context.Context, in Input) (*Result, error) {
	key := cacheKey(h.ai, in)
	if h.cache != nil {
		if r, ok := h.cache.Get(key); ok && r != nil {
			return r.Clone(), nil
		}
	}

	ch := h.flight.DoChan(string(key), func() (any, error) {
		r, err := h.ai.Extract(ctx, in)
		if err != nil {
			return nil, err
		}
		if err := Validate(r); err != nil {
			return nil, &invalidResultError{err: err}
		}
		if h.cache != nil {
			if err := h.cache.Put(key, r, h.cacheTTL); err != nil {
				h.logger.Warn("failed to cache ai result", "error", err)
			}
		}
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// The shared call belonged to another caller that was cancelled.
			if res.Shared && errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
				return h.extractAIDirect(ctx, in, key)
			}
			return nil, res.Err
		}
		return res.Val.(*Result).Clone(), nil
	}
}

func (h *Hybrid) extractAIDirect(ctx context.Context, in Input, key cache.Key) (*Result, error) {
	r, err := h.ai.Extract(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := Validate(r); err != nil {
		return nil, &invalidResultError{err: err}
	}
	if h.cache != nil {
		if err := h.cache.Put(key, r, h.cacheTTL); err != nil {
			h.logger.Warn("failed to cache ai result", "error", err)
		}
	}
	return r.Clone(), nil
}

func (h *Hybrid) extractRules(ctx context.Context, in Input) (*Result, error) {
	var key cache.Key
	if h.cache != nil && h.cacheFallback {
		key = cacheKey(h.rules, in)
		if r, ok := h.cache.Get(key); ok && r != nil {
			return r.Clone(), nil
		}
	}
	r, err := h.rules.Extract(ctx, in)
	if err != nil {
		return nil, err
	}
	if key != "" && !r.Empty() {
		if err := h.cache.Put(key, r, h.cacheTTL); err != nil {
			h.logger.Warn("failed to cache rule result", "error", err)
		}
	}
	return r, nil
}

// invalidResultError reports AI output that parsed but is unusable.
type invalidResultError struct {
	err error
}

func (e *invalidResultError) Error() string {
	return fmt.Sprintf("ai result rejected: %v", e.err)
}

func (e *invalidResultError) Unwrap() error { return e.err }
