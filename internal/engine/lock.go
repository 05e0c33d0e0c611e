package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/metrics"
)

// propertyLock serializes every state change of one property. Unlike a
// sync.Mutex, acquisition honours a deadline.
type propertyLock struct {
	sem *semaphore.Weighted
}

func newPropertyLock() *propertyLock {
	return &propertyLock{sem: semaphore.NewWeighted(1)}
}

// acquire waits up to timeout for the lock. A timeout surfaces as
// domain.ErrConcurrencyConflict; cancellation of ctx itself is returned
// unchanged.
func (l *propertyLock) acquire(ctx context.Context, propertyID string, timeout time.Duration) error {
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.sem.Acquire(lctx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.LockConflicts.Inc()
		return fmt.Errorf("%w: property %s busy for %s", domain.ErrConcurrencyConflict, propertyID, timeout)
	}
	return nil
}

func (l *propertyLock) release() {
	l.sem.Release(1)
}
