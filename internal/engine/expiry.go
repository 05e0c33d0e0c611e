package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

// ExpiryNotifier receives orders cancelled because they expired. It is
// called outside every property lock.
type ExpiryNotifier interface {
	OrderExpired(order *domain.Order)
}

type expiryEntry struct {
	orderID   string
	expiresAt time.Time
}

// ExpiryManager tracks resting orders sorted by expires_at and
// periodically cancels orders whose expiration time has passed.
type ExpiryManager struct {
	interval time.Duration
	manager  *Manager
	notifier ExpiryNotifier
	logger   *slog.Logger

	mu      sync.Mutex
	pending []expiryEntry // sorted by expiresAt ASC
	tracked map[string]struct{}
}

// NewExpiryManager creates an ExpiryManager and registers it with m.
// notifier may be nil.
func NewExpiryManager(interval time.Duration, m *Manager, notifier ExpiryNotifier) *ExpiryManager {
	e := &ExpiryManager{
		interval: interval,
		manager:  m,
		notifier: notifier,
		logger:   m.logger,
		tracked:  make(map[string]struct{}),
	}
	m.SetTracker(e)
	return e
}

// Track inserts an order into the sorted pending slice. Orders without an
// expiry and orders already tracked are ignored.
func (e *ExpiryManager) Track(order *domain.Order) {
	if order.ExpiresAt == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tracked[order.OrderID]; ok {
		return
	}
	e.insert(expiryEntry{orderID: order.OrderID, expiresAt: *order.ExpiresAt})
}

func (e *ExpiryManager) insert(entry expiryEntry) {
	idx := sort.Search(len(e.pending), func(i int) bool {
		return e.pending[i].expiresAt.After(entry.expiresAt)
	})
	e.pending = append(e.pending, expiryEntry{})
	copy(e.pending[idx+1:], e.pending[idx:])
	e.pending[idx] = entry
	e.tracked[entry.orderID] = struct{}{}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires orders. It stops when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				e.Tick(ctx, t)
			}
		}
	}()
}

// Tick cancels every tracked order with expires_at <= now.
func (e *ExpiryManager) Tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	cutoff := 0
	for cutoff < len(e.pending) && !e.pending[cutoff].expiresAt.After(now) {
		cutoff++
	}
	due := append([]expiryEntry(nil), e.pending[:cutoff]...)
	e.pending = e.pending[cutoff:]
	for _, d := range due {
		delete(e.tracked, d.orderID)
	}
	e.mu.Unlock()

	for _, d := range due {
		e.expire(ctx, d)
	}
}

func (e *ExpiryManager) expire(ctx context.Context, d expiryEntry) {
	order, err := e.manager.Cancel(ctx, d.orderID, domain.CancelReasonExpired)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOrderAlreadyFilled),
		errors.Is(err, domain.ErrOrderNotCancellable),
		errors.Is(err, domain.ErrOrderNotFound):
		return
	case errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrPropertyHalted):
		// Retried on the next tick.
		e.mu.Lock()
		if _, ok := e.tracked[d.orderID]; !ok {
			e.insert(d)
		}
		e.mu.Unlock()
		return
	default:
		e.logger.Error("order expiry failed", "order_id", d.orderID, "error", err)
		return
	}

	e.logger.Info("order expired", "order_id", order.OrderID, "property_id", order.PropertyID)
	if e.notifier != nil {
		e.notifier.OrderExpired(order)
	}
}

// PendingCount returns the number of orders awaiting expiry.
func (e *ExpiryManager) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
