// Package retry runs operations under a bounded exponential-backoff policy.
//
// Every retrying call site in the service (agent execution, provider calls,
// meta-analysis) goes through Do with a Policy, so backoff and jitter behave
// the same everywhere.
package retry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"
)

// JitterFraction is the largest share of the current delay added as jitter.
const JitterFraction = 0.3

// ErrInvalidPolicy is returned by Validate and Do for malformed policies.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts counts the first attempt, so 1 means no retries.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// BackoffFactor multiplies the delay after every failed attempt.
	BackoffFactor float64
	// Jitter adds up to JitterFraction of the current delay to each wait.
	Jitter bool
	// IsRetryable decides whether an error is transient. Nil means IsRetryable.
	IsRetryable func(error) bool
}

// DefaultPolicy retries rate limits and server faults twice after the
// first attempt, starting at 200ms and tripling up to 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 3,
		Jitter:        true,
		IsRetryable:   IsRetryable,
	}
}

// NoRetry runs an operation exactly once.
func NoRetry() Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 1
	return p
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, p.MaxAttempts)
	case p.InitialDelay < 0:
		return fmt.Errorf("%w: negative initial delay %s", ErrInvalidPolicy, p.InitialDelay)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("%w: max delay %s below initial delay %s", ErrInvalidPolicy, p.MaxDelay, p.InitialDelay)
	case p.BackoffFactor < 1:
		return fmt.Errorf("%w: backoff factor %g < 1", ErrInvalidPolicy, p.BackoffFactor)
	}
	return nil
}

// WithAttempts returns a copy of p allowing n attempts in total.
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

func (p Policy) retryable(err error) bool {
	if p.IsRetryable == nil {
		return IsRetryable(err)
	}
	return p.IsRetryable(err)
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusOf extracts the HTTP status from err, if any error in its chain has one.
func StatusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

// IsRetryableStatus reports whether a provider status indicates a transient fault.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// IsRetryable treats 429 and 5xx as transient and everything else as fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	status, ok := StatusOf(err)
	return ok && IsRetryableStatus(status)
}

// Backoff produces the sequence of waits for one Do call.
// Delays never decrease and never exceed the policy's MaxDelay.
type Backoff struct {
	policy  Policy
	current time.Duration
	rand    func() float64
}

// NewBackoff starts a backoff sequence at the policy's initial delay.
func NewBackoff(p Policy) *Backoff {
	return &Backoff{policy: p, current: p.InitialDelay, rand: rand.Float64}
}

// Next advances the sequence and returns the wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	next := float64(b.current) * b.policy.BackoffFactor
	if b.policy.Jitter {
		next += float64(b.current) * JitterFraction * b.rand()
	}
	d := time.Duration(next)
	if d > b.policy.MaxDelay {
		d = b.policy.MaxDelay
	}
	if d < b.current {
		d = b.current
	}
	b.current = d
	return d
}
