// Package recovery decides how failed remote invocations are retried.
package recovery

import (
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay before the retry that follows attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error kind and attempt count.
	ShouldRetry(kind domain.ErrorKind, attempt int) bool

	// IsFatal reports whether the kind aborts the whole batch.
	IsFatal(kind domain.ErrorKind) bool
}

// nonRetryable kinds fail the row immediately.
var nonRetryable = map[domain.ErrorKind]bool{
	domain.ErrorKindAuthentication: true,
	domain.ErrorKindValidation:     true,
}

// IsRetryable reports whether kind may be retried at all.
func IsRetryable(kind domain.ErrorKind) bool {
	return !nonRetryable[kind]
}

// IsFatal reports whether kind aborts the batch. Only authentication failures do:
// every later row would fail the same way.
func IsFatal(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindAuthentication
}
