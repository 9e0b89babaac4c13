package subscription

import (
	"math"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

// ErrInvalidRetryArgument reports an unusable retry strategy parameter.
var ErrInvalidRetryArgument = apperrors.New(apperrors.CodeInvalidRetryStrategyArgument, "invalid retry strategy argument")

// RetryStrategy decides when a retrying subscription runs again.
type RetryStrategy interface {
	// ShouldRetry reports whether a subscription that has already been retried
	// attempt times, last saved at lastSavedAt, is due at now.
	ShouldRetry(attempt int, lastSavedAt, now time.Time) bool
	// Exhausted reports whether attempt is beyond what the strategy allows.
	Exhausted(attempt int) bool
}

// NoRetry fails a subscription on its first error.
type NoRetry struct{}

// ShouldRetry always reports false.
func (NoRetry) ShouldRetry(int, time.Time, time.Time) bool { return false }

// Exhausted always reports true.
func (NoRetry) Exhausted(int) bool { return true }

// ClockBased retries with exponential backoff measured from the last save:
// a retry is due once now >= lastSavedAt + BaseDelay * Factor^attempt.
type ClockBased struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxAttempts int
}

// NewClockBased validates and builds a clock-based strategy.
func NewClockBased(baseDelay time.Duration, factor float64, maxAttempts int) (ClockBased, error) {
	switch {
	case baseDelay <= 0:
		return ClockBased{}, apperrors.WrapWithMetadata(apperrors.CodeInvalidRetryStrategyArgument,
			"base delay must be positive", map[string]string{"base_delay": baseDelay.String()}, ErrInvalidRetryArgument)
	case factor < 1 || math.IsNaN(factor) || math.IsInf(factor, 0):
		return ClockBased{}, apperrors.Wrap(apperrors.CodeInvalidRetryStrategyArgument,
			"factor must be a finite number >= 1", ErrInvalidRetryArgument)
	case maxAttempts < 1:
		return ClockBased{}, apperrors.Wrap(apperrors.CodeInvalidRetryStrategyArgument,
			"max attempts must be positive", ErrInvalidRetryArgument)
	}
	return ClockBased{BaseDelay: baseDelay, Factor: factor, MaxAttempts: maxAttempts}, nil
}

// ShouldRetry reports whether the backoff for attempt has elapsed.
func (c ClockBased) ShouldRetry(attempt int, lastSavedAt, now time.Time) bool {
	if c.Exhausted(attempt) {
		return false
	}
	return !now.Before(lastSavedAt.Add(c.Delay(attempt)))
}

// Exhausted reports attempt >= MaxAttempts.
func (c ClockBased) Exhausted(attempt int) bool {
	return attempt >= c.MaxAttempts
}

// Delay returns BaseDelay * Factor^attempt, saturating at the largest
// representable duration.
func (c ClockBased) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(c.BaseDelay) * math.Pow(c.Factor, float64(attempt))
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
