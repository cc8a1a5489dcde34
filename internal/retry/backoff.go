// Package retry paces loops that hit transient failures, chiefly the
// listener's accept loop when the process runs out of descriptors or a
// handshake is reset before Accept returns.
//
// Sessions never retry: a failed read or write ends the session and the
// peer is expected to reconnect.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// stopError marks an error that retrying cannot fix.
type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so that [Backoff.Retry] returns it immediately.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// IsStop reports whether err was wrapped with [Stop].
func IsStop(err error) bool {
	var se *stopError
	return errors.As(err, &se)
}

// Backoff is an exponential delay policy.  The zero value waits 5ms,
// doubling up to one second.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	// OnRetry, if set, is called before each wait with the number of
	// consecutive failures so far, the last error and the delay.
	OnRetry func(failures int, err error, wait time.Duration)
}

// AcceptBackoff mirrors the accept-loop policy of net/http: start at
// 5ms, double on each consecutive failure, cap at one second.
func AcceptBackoff() *Backoff {
	return &Backoff{
		Initial: 5 * time.Millisecond,
		Max:     time.Second,
		Factor:  2,
	}
}

// Delay returns the wait after the given number of consecutive
// failures (1-based).
func (b *Backoff) Delay(failures int) time.Duration {
	d, limit, factor := b.Initial, b.Max, b.Factor
	if d <= 0 {
		d = 5 * time.Millisecond
	}
	if limit <= 0 {
		limit = time.Second
	}
	if factor < 1 {
		factor = 2
	}
	for i := 1; i < failures && d < limit; i++ {
		d = time.Duration(float64(d) * factor)
	}
	return min(d, limit)
}

// Retry calls fn until it returns nil, returns an error wrapped with
// [Stop], or ctx is done.  A stop error is returned unwrapped.
func (b *Backoff) Retry(ctx context.Context, fn func() error) error {
	for failures := 1; ; failures++ {
		err := fn()
		if err == nil {
			return nil
		}
		var se *stopError
		if errors.As(err, &se) {
			return se.err
		}

		wait := b.Delay(failures)
		if b.OnRetry != nil {
			b.OnRetry(failures, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d failure(s): %w", failures, ctx.Err())
		case <-timer.C:
		}
	}
}
