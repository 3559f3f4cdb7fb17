package models

import (
	"errors"
	"fmt"
)

// Domain error kinds. Upstream failures are recorded against the circuit
// breaker and never surfaced to callers; authorization failures are the only
// hard errors.
var (
	ErrUpstreamUnavailable   = errors.New("workflow engine unavailable")
	ErrMalformedExecution    = errors.New("malformed execution data")
	ErrAuthorizationDenied   = errors.New("authorization denied")
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrNoExecutionData       = errors.New("no execution data available")
	ErrSummarizationFailed   = errors.New("summarization failed")
	ErrRefreshAlreadyRunning = errors.New("refresh already in flight")
)

// UpstreamError wraps a transport-level failure from the engine client.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstreamUnavailable }
