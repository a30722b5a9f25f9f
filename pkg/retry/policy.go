// Package retry provides the generic retry loop used by every destination
// adapter. Delay grows exponentially from InitialDelay up to MaxDelay with
// optional jitter, and only errors classified as retryable are attempted
// again. The final error is always returned as a classified *errors.Error
// rather than surfaced through panics or sentinel values.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/maccman/opentrack-sub000/pkg/errors"
)

// Policy defines retry behavior. MaxAttempts counts retries after the
// initial call, not total calls.
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// OnRetry, when set, is invoked before each backoff sleep with the
	// attempt number that just failed and its classified error. Used for
	// logging and metrics only.
	OnRetry func(attempt int, err error)
}

// NewPolicy creates a retry policy with exponential backoff. maxAttempts is
// the number of retries after the initial call, so a budget of 3 makes up to
// four calls in total.
func NewPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) *Policy {
	return &Policy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        maxDelay,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
	}
}

// DefaultPolicy returns the policy destination adapters use unless configured
// otherwise: the initial call plus up to three retries, with delays around
// 1s, 2s, 4s.
func DefaultPolicy() *Policy {
	return NewPolicy(3, time.Second, 30*time.Second)
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is exhausted: attempts 0..MaxAttempts inclusive. Side effects
// are not guaranteed idempotent: a retried send may duplicate a delivery.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	var lastErr *errors.Error

	retries := p.MaxAttempts
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = errors.Classify(err)
		if !lastErr.Retryable {
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt == retries {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}

	return lastErr
}

// GetDelay returns the backoff delay for a given attempt. The pre-jitter value
// is non-decreasing in the attempt number and the result never exceeds
// MaxDelay.
func (p *Policy) GetDelay(attempt int) time.Duration {
	return p.delay(attempt)
}

func (p *Policy) delay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))

	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		delay = delay - delta + rand.Float64()*2*delta
		if delay > float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// Clone creates a copy of the policy
func (p *Policy) Clone() *Policy {
	return &Policy{
		MaxAttempts:     p.MaxAttempts,
		InitialDelay:    p.InitialDelay,
		MaxDelay:        p.MaxDelay,
		Multiplier:      p.Multiplier,
		RandomizeFactor: p.RandomizeFactor,
		OnRetry:         p.OnRetry,
	}
}

// WithMaxAttempts returns a new policy with updated max attempts
func (p *Policy) WithMaxAttempts(attempts int) *Policy {
	policy := p.Clone()
	policy.MaxAttempts = attempts
	return policy
}

// WithDelay returns a new policy with updated delays
func (p *Policy) WithDelay(initial, max time.Duration) *Policy {
	policy := p.Clone()
	policy.InitialDelay = initial
	policy.MaxDelay = max
	return policy
}

// WithRandomization returns a new policy with updated jitter
func (p *Policy) WithRandomization(factor float64) *Policy {
	policy := p.Clone()
	policy.RandomizeFactor = factor
	return policy
}
