// Package fetch provides the resilient outbound-fetch orchestration layer.
// It composes caching, adaptive rate limiting, circuit breaking, retries, and
// pooled connections per upstream source, and exposes aggregate health and
// statistics for operational consumers.
package fetch

import (
	"errors"
	"fmt"

	"bioterminal/internal/domain/entity"
)

// Sentinel errors for fetch orchestration.
var (
	// ErrSourceNotFound indicates that no orchestrator is registered for the
	// requested source ID. It matches entity.ErrNotFound under errors.Is.
	ErrSourceNotFound = fmt.Errorf("source not registered: %w", entity.ErrNotFound)

	// ErrNoParser indicates that a source was registered without a parse function.
	ErrNoParser = errors.New("no parser configured for source")
)

// TransientError wraps a network-level failure that is worth retrying:
// timeouts, connection resets, 5xx responses.
type TransientError struct {
	SourceID string
	Err      error
}

// Error returns a formatted error message.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch error for source %s: %v", e.SourceID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks the error as retryable for the retry policy.
func (e *TransientError) Transient() bool { return true }

// ParseError indicates the upstream responded but its content could not be
// parsed. Parse failures are never retried: the upstream likely changed shape,
// and hammering it would not help.
type ParseError struct {
	SourceID string
	Err      error
}

// Error returns a formatted error message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for source %s: %v", e.SourceID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// Transient marks the error as non-retryable for the retry policy.
func (e *ParseError) Transient() bool { return false }
