package recovery

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// MaxJitter bounds the random delay added to every backoff.
const MaxJitter = 100 * time.Millisecond

// ExponentialBackoff implements the retry policy of the batch loop.
type ExponentialBackoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Jitter returns a value in [0, MaxJitter). Nil uses math/rand.
	Jitter func() time.Duration
}

// DefaultBackoff returns the executor defaults.
// 1s, 2s, 4s (Max 60s), three retries.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// NewBackoff creates a policy from explicit settings.
func NewBackoff(maxRetries int, initialDelay, maxDelay time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		MaxRetries:   maxRetries,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
	}
}

// GetDelay calculates delay: min(InitialDelay * 2^attempt + jitter, MaxDelay)
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	base := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	delay := base + float64(s.jitter())
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks the kind is retryable and the retry budget is not spent.
func (s *ExponentialBackoff) ShouldRetry(kind domain.ErrorKind, attempt int) bool {
	if !IsRetryable(kind) {
		return false
	}
	return attempt < s.MaxRetries
}

// IsFatal reports whether kind aborts the batch.
func (s *ExponentialBackoff) IsFatal(kind domain.ErrorKind) bool {
	return IsFatal(kind)
}

func (s *ExponentialBackoff) jitter() time.Duration {
	if s.Jitter != nil {
		return s.Jitter()
	}
	return rand.N(MaxJitter)
}
