// Package store defines the persistence interfaces for listings, the share
// ledger, orders and the transaction log. Implementations include an
// in-memory store (tests and development), a GORM store backed by SQLite
// or PostgreSQL, and a Redis read-through cache.
package store

import (
	"context"

	"github.com/efreitasn/equityledger/internal/domain"
)

// PropertyStore reads listings.
type PropertyStore interface {
	GetProperty(ctx context.Context, id string) (*domain.Property, error)
	ListProperties(ctx context.Context) ([]*domain.Property, error)
}

// ShareLedgerStore reads persisted share positions.
type ShareLedgerStore interface {
	PositionsByProperty(ctx context.Context, propertyID string) ([]domain.Position, error)
	PositionsByOwner(ctx context.Context, ownerID string) ([]domain.Position, error)
}

// OrderStore reads orders.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// OpenOrders returns the active orders of a property ordered by Seq.
	OpenOrders(ctx context.Context, propertyID string) ([]*domain.Order, error)

	// ListOrdersByOwner returns an owner's orders newest first, optionally
	// filtered by status. Pagination is 1-based. The second result is the
	// total count before pagination.
	ListOrdersByOwner(ctx context.Context, ownerID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)
}

// TransactionStore reads the append-only transaction log. All results are
// ordered by Seq.
type TransactionStore interface {
	TransactionsByProperty(ctx context.Context, propertyID string) ([]*domain.Transaction, error)
	TransactionsByOwner(ctx context.Context, ownerID string) ([]*domain.Transaction, error)
	TransactionsByOrder(ctx context.Context, orderID string) ([]*domain.Transaction, error)
}

// IdempotencyStore resolves client idempotency keys to the order they
// created.
type IdempotencyStore interface {
	LookupIdempotencyKey(ctx context.Context, ownerID, key string) (orderID string, found bool, err error)
}

// IdempotencyKey binds a client-supplied key to the order it created.
type IdempotencyKey struct {
	OwnerID string
	Key     string
	OrderID string
}

// Batch is one all-or-nothing unit of writes.
//
// Orders with Seq == 0 are inserted and receive a Seq; others are updated.
// Transactions are appended and receive a Seq. Seq values are written back
// to the batch's objects only when Apply succeeds.
type Batch struct {
	Property        *domain.Property // inserted or replaced when non-nil
	Positions       []domain.Position
	Orders          []*domain.Order
	Transactions    []*domain.Transaction
	IdempotencyKeys []IdempotencyKey
}

// Empty reports whether the batch carries no writes.
func (b *Batch) Empty() bool {
	return b.Property == nil && len(b.Positions) == 0 && len(b.Orders) == 0 &&
		len(b.Transactions) == 0 && len(b.IdempotencyKeys) == 0
}

// Store is the full persistence interface used by the engine and services.
type Store interface {
	PropertyStore
	ShareLedgerStore
	OrderStore
	TransactionStore
	IdempotencyStore

	// Apply commits a batch atomically. A duplicate idempotency key fails
	// the whole batch with domain.ErrConcurrencyConflict.
	Apply(ctx context.Context, b *Batch) error
}
