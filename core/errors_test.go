package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindProviderTimeout.Retryable())
	assert.False(t, KindSearchUnavailable.Retryable())
	assert.False(t, KindContentRejected.Retryable())
	assert.False(t, KindInvalidRequest.Retryable())
	assert.False(t, KindStreamDegraded.Retryable())
	assert.False(t, KindPersistenceFailure.Retryable())
}

func TestStageError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStageError(KindProviderTimeout, "search", StreamLegal, cause)

	assert.Equal(t, KindProviderTimeout, KindOf(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "search")
	assert.Contains(t, err.Error(), "legal")

	// Kind survives wrapping.
	wrapped := fmt.Errorf("stream pipeline: %w", err)
	assert.Equal(t, KindProviderTimeout, KindOf(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
