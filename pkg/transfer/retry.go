package transfer

import (
	"errors"
	"time"
)

// RetryPolicy decides how often an unacknowledged packet is retransmitted
// and how the wait grows between attempts.
type RetryPolicy struct {
	MaxRetries    int           `json:"max_retries"`
	BackoffFactor float64       `json:"backoff_factor"`
	MaxDelay      time.Duration `json:"max_delay"`
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:    DefaultMaxRetries,
		BackoffFactor: DefaultBackoffFactor,
		MaxDelay:      DefaultMaxDelay,
	}
}

// NoRetryPolicy treats the first timeout as fatal.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 0, BackoffFactor: 1, MaxDelay: DefaultMaxDelay}
}

func (rp *RetryPolicy) Validate() error {
	if rp.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	if rp.BackoffFactor < 1 {
		return errors.New("backoff_factor must be at least 1")
	}
	if rp.MaxDelay <= 0 {
		return errors.New("max_delay must be positive")
	}
	return nil
}

// GetRetryDelay calculates the wait for the given attempt, starting at base
// and growing by BackoffFactor up to MaxDelay.
func (rp *RetryPolicy) GetRetryDelay(base time.Duration, retryCount int) time.Duration {
	delay := base
	if delay > rp.MaxDelay {
		return rp.MaxDelay
	}
	for i := 0; i < retryCount; i++ {
		delay = time.Duration(float64(delay) * rp.BackoffFactor)
		if delay > rp.MaxDelay {
			return rp.MaxDelay
		}
	}
	return delay
}

// CanRetry reports whether another retransmission is allowed after retryCount.
func (rp *RetryPolicy) CanRetry(retryCount int) bool {
	return retryCount < rp.MaxRetries
}
