package provider

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rlmlabs/rlmreview/internal/domain"
	"github.com/rlmlabs/rlmreview/internal/transport"
)

// DefaultRetryConfig is the gateway's retry policy: base 500ms, cap
// 30s, multiplier 2, at most 5 attempts.
func DefaultRetryConfig() transport.RetryConfig {
	return transport.RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// FullJitterBackoff computes the wait before attempt using full jitter
// (AWS's formula: a uniform random duration in [0, min(cap, base*2^attempt)]).
// This differs deliberately from transport.ExponentialBackoff's ±25% jitter
// around the midpoint: full jitter avoids the thundering-herd retries a
// shared ±25% band produces when many sandboxed fetch_file calls back off
// against the same rate-limited host at once.
func FullJitterBackoff(attempt int, cfg transport.RetryConfig) time.Duration {
	capped := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if capped > float64(cfg.MaxBackoff) {
		capped = float64(cfg.MaxBackoff)
	}
	if capped <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * capped)
}

// Operation is a gateway call that can be retried.
type Operation func(ctx context.Context) error

// RetryWithFullJitter runs operation with full-jitter exponential backoff,
// retrying only errors marked retryable (RateLimited and Transport) and
// stopping immediately on any other domain.Error or on context
// cancellation.
func RetryWithFullJitter(ctx context.Context, op Operation, cfg transport.RetryConfig) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt >= cfg.MaxRetries {
			return err
		}

		wait := FullJitterBackoff(attempt, cfg)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	var derr *domain.Error
	if de, ok := err.(*domain.Error); ok {
		derr = de
	} else {
		return false
	}
	switch derr.Code {
	case domain.ErrRateLimited, domain.ErrTransport:
		return true
	default:
		return false
	}
}
