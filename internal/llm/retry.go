package llm

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns defaults for rate limit and overload retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// RetryProvider wraps a provider with automatic retry on transient errors.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	logger *zap.Logger
}

// WrapWithRetry wraps a provider with retry logic.
func WrapWithRetry(p Provider, config RetryConfig, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryProvider{inner: p, config: config, logger: logger}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var lastErr error

		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			// Events already forwarded cannot be taken back, so only the
			// failures that happen before the first event are retried.
			forwarded := false
			stream, err := r.inner.Stream(ctx, req)
			if err == nil {
				forwarded, err = r.forwardEvents(ctx, stream, events)
				if err == nil {
					return nil
				}
			}
			if forwarded || !isRetryable(err) {
				return err
			}
			lastErr = err

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= r.config.MaxAttempts {
				break
			}

			wait := r.calculateBackoff(attempt, lastErr)
			r.logger.Warn("retrying provider request",
				zap.String("provider", r.inner.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))

			if err := send(ctx, events, Event{
				Type:             EventRetry,
				RetryAttempt:     attempt,
				RetryMaxAttempts: r.config.MaxAttempts,
				RetryWaitSecs:    wait.Seconds(),
			}); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		return lastErr
	}), nil
}

// forwardEvents reads events from the inner stream and forwards them.
// It reports whether any event reached the caller.
func (r *RetryProvider) forwardEvents(ctx context.Context, stream Stream, events chan<- Event) (bool, error) {
	defer stream.Close()

	forwarded := false
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return forwarded, nil
		}
		if err != nil {
			return forwarded, err
		}
		if event.Type == EventError && event.Err != nil {
			return forwarded, event.Err
		}
		if err := send(ctx, events, event); err != nil {
			return forwarded, err
		}
		forwarded = true
	}
}

// isRetryable returns true if the error is a transient error worth retrying.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "overloaded") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}

// retryAfterRegex matches Retry-After values in error messages.
var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// calculateBackoff computes the wait duration for a retry attempt.
func (r *RetryProvider) calculateBackoff(attempt int, err error) time.Duration {
	if err != nil {
		if matches := retryAfterRegex.FindStringSubmatch(err.Error()); len(matches) > 1 {
			if secs, parseErr := strconv.Atoi(matches[1]); parseErr == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, r.config.MaxBackoff)
			}
		}
	}

	// Exponential backoff: base * 2^(attempt-1), +/- 25% jitter
	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))
	backoff += (rand.Float64() - 0.5) * 0.5 * backoff

	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	return time.Duration(backoff)
}
