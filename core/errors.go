package core

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors so retry and degradation policy can be
// decided without inspecting provider-specific error values.
type Kind string

const (
	// KindSearchUnavailable marks a non-recoverable search provider failure.
	KindSearchUnavailable Kind = "search_unavailable"
	// KindRateLimited marks provider quota exhaustion. Recoverable, but the
	// orchestrator applies a longer backoff than for ordinary timeouts.
	KindRateLimited Kind = "rate_limited"
	// KindProviderTimeout marks a timed-out external call. Recoverable.
	KindProviderTimeout Kind = "provider_timeout"
	// KindContentRejected marks normal ingestion filtering, not a failure.
	KindContentRejected Kind = "content_rejected"
	// KindInvalidRequest marks a caller error. Fails fast, never retried.
	KindInvalidRequest Kind = "invalid_request"
	// KindStreamDegraded marks a stream that exhausted its retries.
	KindStreamDegraded Kind = "stream_degraded"
	// KindPersistenceFailure marks a failed final write. Fatal for the run.
	KindPersistenceFailure Kind = "persistence_failure"
)

// Retryable reports whether errors of this kind may be retried with backoff.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindProviderTimeout
}

// StageError is the uniform error value returned by stages and providers.
// It carries the taxonomy kind plus where the failure happened.
type StageError struct {
	Kind   Kind
	Stage  string
	Stream Stream
	Err    error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s", e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: stage %s", msg, e.Stage)
	}
	if e.Stream != "" {
		msg = fmt.Sprintf("%s: stream %s", msg, e.Stream)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with a kind and the stage/stream it came from.
func NewStageError(kind Kind, stage string, stream Stream, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Stream: stream, Err: err}
}

// KindOf extracts the taxonomy kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsRetryable reports whether err carries a recoverable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
