// Package retry implements the single retry policy threaded through every
// external-call site. Only recoverable error kinds (rate limiting, provider
// timeouts) are retried; everything else surfaces immediately.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
)

// Policy describes how external calls are retried. The zero value is not
// usable; construct via DefaultPolicy or from configuration.
type Policy struct {
	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the backoff base for recoverable timeouts. The delay
	// doubles each attempt.
	BaseDelay time.Duration
	// RateLimitDelay is the backoff base used when the provider signalled
	// quota exhaustion. It should be substantially larger than BaseDelay.
	RateLimitDelay time.Duration
	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration
	// Jitter adds up to this fraction (0..1) of random extra delay so
	// concurrent streams do not retry in lockstep.
	Jitter float64
}

// DefaultPolicy returns the baseline policy: three attempts, 2s base backoff,
// 30s rate-limit backoff, 2m cap, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		RateLimitDelay: 30 * time.Second,
		MaxDelay:       2 * time.Minute,
		Jitter:         0.2,
	}
}

// Delay computes the backoff before attempt n (0-based counting of completed
// attempts) for an error of the given kind.
func (p Policy) Delay(attempt int, kind core.Kind) time.Duration {
	base := p.BaseDelay
	if kind == core.KindRateLimited {
		base = p.RateLimitDelay
	}
	d := base << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, p Policy, log logging.Logger, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		kind := core.KindOf(lastErr)
		if !kind.Retryable() || attempt == p.MaxAttempts-1 {
			break
		}
		wait := p.Delay(attempt, kind)
		log.Warn("retrying after recoverable error",
			"operation", op, "attempt", attempt+1, "kind", string(kind), "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
