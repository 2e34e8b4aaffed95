package providers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"
)

// HTTPError carries the status and body of a failed API call so the
// retry layer can tell transient failures from permanent ones.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrEmptyCompletion means the API answered with a well-formed response
// carrying no text. Counts as transient and is retried.
var ErrEmptyCompletion = errors.New("providers: empty completion")

// RetryConfig controls the retry loop around provider calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig retries once after a short backoff. Chat turns are
// latency-sensitive; a second failure falls through to the scripted
// replies instead of keeping the customer waiting.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// IsRetryable reports whether an error is worth another attempt.
// Server-side failures and timeouts are; auth and quota errors are not,
// since repeating them only burns the window faster.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrEmptyCompletion) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status >= 500:
			return true
		case httpErr.Status == 408:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Wrapped transport errors (connection refused, reset) arrive as
	// *url.Error which satisfies net.Error, so anything left here is a
	// permanent local failure such as a marshal error.
	return false
}

// RetryDo runs fn with the configured retry policy. Between attempts it
// honors Retry-After when present, otherwise exponential backoff with
// jitter. Context cancellation aborts the wait immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt, lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

func backoffDelay(cfg RetryConfig, attempt int, lastErr error) time.Duration {
	var httpErr *HTTPError
	if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := cfg.BaseDelay << (attempt - 1)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	// Up to 25% jitter so concurrent chats don't hammer in sync.
	return delay + time.Duration(rand.Int63n(int64(delay)/4+1))
}

// ParseRetryAfter interprets a Retry-After header value given in
// seconds. HTTP-date values are rare on chat APIs and are ignored.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
