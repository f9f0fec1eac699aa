package probe

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// RetryPolicy is a bounded exponential backoff: attempt n (1-based) that
// fails with a retryable error waits Backoff * 2^(n-1) before attempt n+1.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Backoff: time.Second}

// Delay returns the wait after the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff * time.Duration(1<<uint(attempt-1))
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. Cancelling ctx stops further attempts but never
// interrupts one in flight. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		last = fn()
		if last == nil {
			return i, nil
		}
		if !retryable(last) || i == attempts {
			return i, last
		}
		t := time.NewTimer(p.Delay(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return i, last
		case <-t.C:
		}
	}
	return attempts, last
}

func retryable(err error) bool {
	var ne *domain.NetworkError
	return errors.As(err, &ne) && ne.Retryable()
}
