package repo

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/ledger-core/internal/model"
)

// RetryPolicy bounds how often a conflicting unit of work is restarted.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 4, BaseDelay: 10 * time.Millisecond}

// Do runs fn, restarting it with exponential backoff while it reports a conflict.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	for i := 1; ; i++ {
		err := fn()
		if err == nil || !errors.Is(err, model.ErrConflict) {
			return err
		}
		if i >= attempts {
			return model.Errorf(model.KindConflict, "wallet busy, gave up after %d attempts", attempts)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
