package weft

import (
	"context"
	"math"
	"time"

	"github.com/petrijr/weft/pkg/api"
)

// RetryPolicy describes how often a helper body is attempted and how long to
// wait between attempts.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt. Values <= 1 disable retries.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry. Zero retries
	// immediately and keeps the helper synchronous.
	InitialBackoff time.Duration
	// BackoffMultiplier grows the delay each retry. Values <= 0 mean 1.
	BackoffMultiplier float64
	// MaxBackoff caps the delay; zero means no cap.
	MaxBackoff time.Duration
}

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with Retrying.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{policy: RetryPolicy{MaxAttempts: maxAttempts}}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = initial
	p.MaxBackoff = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff waits delay between every attempt.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialBackoff = delay
	p.MaxBackoff = 0
	p.BackoffMultiplier = 1.0
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialBackoff = 0
	p.MaxBackoff = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

// Delay returns the wait before retry n (1 for the first retry).
func (p RetryPolicy) Delay(n int) time.Duration {
	if p.InitialBackoff <= 0 || n < 1 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(p.InitialBackoff) * math.Pow(mult, float64(n-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// run attempts call starting at attempt from and returns the last error.
func (p RetryPolicy) run(ctx context.Context, from int, call func() error) error {
	var err error
	for attempt := from; attempt <= p.attempts(); attempt++ {
		if d := p.Delay(attempt - 1); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err = call(); err == nil {
			return nil
		}
	}
	return err
}

// Retrying returns a helper body that calls fn until it succeeds or the
// policy runs out of attempts. Without backoff the helper settles
// immediately; otherwise the retries run as deferred work.
func Retrying(policy RetryPolicy, fn func(ctx context.Context, args HelperArgs) error) HelperFunc {
	return func(ctx context.Context, args HelperArgs, next Next) api.Maybe[HelperResult] {
		call := func() error { return fn(ctx, args) }
		if policy.InitialBackoff <= 0 {
			return api.From(HelperResult{}, policy.run(ctx, 1, call))
		}
		err := call()
		if err == nil || policy.attempts() == 1 {
			return api.From(HelperResult{}, err)
		}
		return api.Go(func() (HelperResult, error) {
			return HelperResult{}, policy.run(ctx, 2, call)
		})
	}
}
