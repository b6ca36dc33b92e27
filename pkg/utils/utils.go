// Package utils offers functions of general utility in other parts of the system
package utils

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRetryTimeout is returned by Retry when the timeout expires before the function succeeds
var ErrRetryTimeout = errors.New("timeout expired")

// Retry retries a function until it returns true, error, the timeout expires or
// the context is cancelled. Attempts are separated at least by the backoff period
func Retry(ctx context.Context, timeout time.Duration, backoff time.Duration, f func() (bool, error)) error {
	limiter := rate.NewLimiter(rate.Every(backoff), 1)

	expiring, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		// fails early if the next attempt would start after the timeout
		if err := limiter.Wait(expiring); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrRetryTimeout
		}

		done, err := f()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
