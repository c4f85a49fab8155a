package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/cenkalti/backoff/v4"
)

// Policy bounds retries of transient storage failures.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	// Timer paces the waits between attempts; nil uses a real timer.
	Timer backoff.Timer
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempts run out. The delay doubles after every failed attempt.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var last error
	tries := 0
	op := func() error {
		tries++
		last = fn(ctx)
		if last != nil && !Retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.schedule(), uint64(attempts-1)), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, nil, p.Timer)
	switch {
	case err == nil:
		return nil
	case !Retryable(last):
		return err
	case !errors.Is(err, last):
		return fmt.Errorf("%w (gave up waiting: %v)", last, err)
	default:
		return fmt.Errorf("after %d attempts: %w", tries, last)
	}
}

func (p Policy) schedule() backoff.BackOff {
	if p.Backoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.Backoff),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
}

func Retryable(err error) bool {
	return errors.Is(err, domain.ErrTransientStorage)
}
