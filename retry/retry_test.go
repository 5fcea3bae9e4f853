package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		RateLimitDelay: time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
	}
}

func TestDoRetriesRecoverableKinds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), logging.NoOpLogger{}, "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return core.NewStageError(core.KindProviderTimeout, "search", "", errors.New("timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), logging.NoOpLogger{}, "op", func(ctx context.Context) error {
		calls++
		return core.NewStageError(core.KindSearchUnavailable, "search", "", errors.New("down"))
	})
	assert.Equal(t, core.KindSearchUnavailable, core.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), logging.NoOpLogger{}, "op", func(ctx context.Context) error {
		calls++
		return core.NewStageError(core.KindRateLimited, "search", "", errors.New("quota"))
	})
	assert.Equal(t, core.KindRateLimited, core.KindOf(err))
	assert.Equal(t, 3, calls)
}

func TestDoPlainErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), logging.NoOpLogger{}, "op", func(ctx context.Context) error {
		calls++
		return errors.New("plain failure")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastPolicy(), logging.NoOpLogger{}, "op", func(ctx context.Context) error {
		t.Fatal("fn must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelayUsesRateLimitBase(t *testing.T) {
	p := Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		RateLimitDelay: 30 * time.Second,
		MaxDelay:       2 * time.Minute,
	}
	assert.Equal(t, time.Second, p.Delay(0, core.KindProviderTimeout))
	assert.Equal(t, 2*time.Second, p.Delay(1, core.KindProviderTimeout))
	assert.Equal(t, 30*time.Second, p.Delay(0, core.KindRateLimited))
	// The cap applies.
	assert.Equal(t, 2*time.Minute, p.Delay(3, core.KindRateLimited))
}
