package collyfetcher

import (
	"context"
	"errors"
	"time"
)

// FixedRetryPolicy retries transient failures a bounded number of times with
// a constant delay between attempts.
type FixedRetryPolicy struct {
	maxRetries int
	delay      time.Duration
}

// NewFixedRetryPolicy builds a policy allowing maxRetries retries after the
// first attempt. A negative maxRetries disables retries.
func NewFixedRetryPolicy(maxRetries int, delay time.Duration) *FixedRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay < 0 {
		delay = 0
	}
	return &FixedRetryPolicy{maxRetries: maxRetries, delay: delay}
}

// ShouldRetry decides whether the failed attempt (zero-based) is retried.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait duration before the next attempt.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}
