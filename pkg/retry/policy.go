package retry

import (
	"errors"
	"math"
	"time"
)

// ErrMaxRetriesExceeded is returned when an operation exhausts its policy's
// MaxRetries without succeeding.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy configures how a Retrier attempts and backs off an operation.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64
	RetryableFunc func(error) bool
}

// Validate checks the policy for sane bounds.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("retry: MaxRetries must be >= 0")
	}
	if p.BaseDelay <= 0 {
		return errors.New("retry: BaseDelay must be > 0")
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return errors.New("retry: MaxDelay must be >= BaseDelay")
	}
	if p.Multiplier < 1 {
		return errors.New("retry: Multiplier must be >= 1")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return errors.New("retry: Jitter must be in [0,1]")
	}
	return nil
}

// DefaultPolicy returns a general-purpose retry policy: up to five retries
// after the first attempt, doubling from one second, capped at thirty
// seconds, with 20% jitter. No caller in the engine uses it.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// LifecyclePolicy returns the backoff policy used by the outgoing-payment
// lifecycle engine and the webhook dispatcher: base delay baseSeconds,
// doubling per attempt, with no delay cap and no jitter. MaxRetries is set
// to maxAttempts; both callers only use Backoff.Calculate and enforce
// their own attempt limit.
func LifecyclePolicy(baseSeconds int, maxAttempts int) Policy {
	return Policy{
		MaxRetries: maxAttempts,
		BaseDelay:  time.Duration(baseSeconds) * time.Second,
		MaxDelay:   0,
		Multiplier: 2,
		Jitter:     0,
	}
}

// Backoff computes the delay before a given attempt number under a Policy.
type Backoff struct {
	policy Policy
}

// NewBackoff returns a Backoff bound to policy.
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay to wait before attempt (1-indexed).
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.policy.BaseDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if b.policy.MaxDelay > 0 && delay > float64(b.policy.MaxDelay) {
		delay = float64(b.policy.MaxDelay)
	}
	if b.policy.Jitter > 0 {
		delay = delay * (1 - b.policy.Jitter + b.policy.Jitter*pseudoRandomFraction(attempt))
	}
	return time.Duration(delay)
}

// pseudoRandomFraction derives a deterministic, attempt-keyed value in
// [0,1) so jittered backoff stays reproducible in tests without a seeded
// random source.
func pseudoRandomFraction(attempt int) float64 {
	h := uint32(2166136261)
	for _, b := range []byte{byte(attempt), byte(attempt >> 8)} {
		h ^= uint32(b)
		h *= 16777619
	}
	return float64(h%10000) / 10000.0
}
