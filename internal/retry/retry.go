package retry

import (
	"context"
	"log/slog"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Timer abstracts waiting so tests can skip real sleeps.
type Timer interface {
	After(time.Duration) <-chan time.Time
}

type options struct {
	name     string
	logger   *slog.Logger
	timer    Timer
	rand     func() float64
	onRetry  func(attempt int, err error)
	attempts *int
}

// Option customizes a single Do call.
type Option func(*options)

// WithName labels log lines for the operation.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for retry log lines.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTimer replaces the real clock used between attempts.
func WithTimer(t Timer) Option {
	return func(o *options) { o.timer = t }
}

// WithRand replaces the jitter source. It must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(o *options) { o.rand = f }
}

// OnRetry is called before each wait with the failed attempt number (1-based).
func OnRetry(f func(attempt int, err error)) Option {
	return func(o *options) { o.onRetry = f }
}

// CountAttempts stores the number of attempts made into n.
func CountAttempts(n *int) Option {
	return func(o *options) { o.attempts = n }
}

// Do runs op until it succeeds, the policy gives up, or ctx is done.
//
// A non-retryable error, or a failure on the last permitted attempt, is
// returned unchanged. Cancellation during a wait returns the context error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	o := options{logger: slog.Default(), name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}

	backoff := NewBackoff(p)
	if o.rand != nil {
		backoff.rand = o.rand
	}

	attempts := 0
	var lastDelay time.Duration
	ropts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(uint(p.MaxAttempts)),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(p.retryable),
		retrygo.DelayType(func(uint, error, *retrygo.Config) time.Duration {
			lastDelay = backoff.Next()
			return lastDelay
		}),
		retrygo.OnRetry(func(n uint, err error) {
			if int(n)+1 >= p.MaxAttempts {
				return
			}
			o.logger.Debug("retrying after failure",
				"operation", o.name,
				"attempt", n+1,
				"max_attempts", p.MaxAttempts,
				"error", err)
			if o.onRetry != nil {
				o.onRetry(int(n)+1, err)
			}
		}),
	}
	if p.MaxDelay > 0 {
		ropts = append(ropts, retrygo.MaxDelay(p.MaxDelay))
	}
	if o.timer != nil {
		ropts = append(ropts, retrygo.WithTimer(o.timer))
	}

	result, err := retrygo.DoWithData(func() (T, error) {
		attempts++
		return op(ctx)
	}, ropts...)

	if o.attempts != nil {
		*o.attempts = attempts
	}
	if err != nil && attempts > 1 {
		o.logger.Warn("operation failed after retries",
			"operation", o.name,
			"attempts", attempts,
			"last_delay", lastDelay,
			"error", err)
	}
	return result, err
}
