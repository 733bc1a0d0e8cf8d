// Package retry bounds the retries placed around transaction and cache-write
// points. It wraps github.com/cenkalti/backoff/v4 with the policy used across
// the service: short exponential backoff, a fixed attempt budget, and
// immediate return for any error the caller does not mark as retryable.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultAttempts is the retry budget when none is configured.
	DefaultAttempts = 3

	initialInterval = 10 * time.Millisecond
	maxInterval     = 200 * time.Millisecond
)

// Policy decides how many times an operation is re-run.
type Policy struct {
	// Attempts is the number of retries after the first try. 0 disables retry.
	Attempts int

	// Retryable reports whether err should trigger another attempt.
	// A nil Retryable retries every error.
	Retryable func(err error) bool
}

// New returns a Policy with the given retry budget that retries only the
// errors accepted by retryable.
func New(attempts int, retryable func(error) bool) Policy {
	if attempts < 0 {
		attempts = 0
	}
	return Policy{Attempts: attempts, Retryable: retryable}
}

// Do runs op until it succeeds, returns a non-retryable error, the budget is
// spent, or ctx is cancelled. The last error from op is returned unchanged.
func (p Policy) Do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialInterval
	eb.MaxInterval = maxInterval
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
