//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned when a polled condition does not hold before the deadline.
var ErrWaitTimeout = errors.New("timed out waiting for condition")

// backoffFactor doubles the delay between unsuccessful re-checks.
const backoffFactor = 2

// Poll re-checks the condition at a fixed interval until it holds, the
// timeout elapses, or the context is canceled. The condition is checked once
// immediately. A zero or negative timeout means wait indefinitely.
func Poll(ctx context.Context, interval, timeout time.Duration, condition func() (bool, error)) error {
	return poll(ctx, interval, interval, timeout, condition)
}

// PollWithBackoff behaves like Poll but doubles the delay after every
// unsuccessful check, capped at maxInterval. Used for long waits (a user
// keeping the target application open) where frequent re-checks are pointless.
func PollWithBackoff(
	ctx context.Context,
	initial, maxInterval, timeout time.Duration,
	condition func() (bool, error),
) error {
	return poll(ctx, initial, maxInterval, timeout, condition)
}

func poll(
	ctx context.Context,
	interval, maxInterval, timeout time.Duration,
	condition func() (bool, error),
) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		deadlineTimer := time.NewTimer(timeout)
		defer deadlineTimer.Stop()

		deadline = deadlineTimer.C
	}

	for {
		done, err := condition()
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		delayTimer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			delayTimer.Stop()
			return ctx.Err()
		case <-deadline:
			delayTimer.Stop()
			return ErrWaitTimeout
		case <-delayTimer.C:
		}

		if interval < maxInterval {
			interval *= backoffFactor
			if interval > maxInterval {
				interval = maxInterval
			}
		}
	}
}
