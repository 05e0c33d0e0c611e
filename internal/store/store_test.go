package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/equityledger/internal/database"
	"github.com/efreitasn/equityledger/internal/domain"
)

func newGormTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return NewGormStore(db)
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, newGormTestStore(t)) })
}

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func listingBatch(id string, shares, price int64) (*Batch, *domain.Order) {
	p := &domain.Property{
		PropertyID:     id,
		Name:           "Tower " + id,
		TotalValuation: shares * price,
		MinimumTicket:  price,
		TotalShares:    shares,
		PricePerShare:  price,
		CreatedAt:      testNow,
	}
	issue := &domain.Order{
		OrderID:           "issue-" + id,
		PropertyID:        id,
		OwnerID:           domain.PlatformOwnerID,
		Side:              domain.OrderSideSell,
		Type:              domain.OrderTypeLimit,
		LimitPrice:        price,
		Quantity:          shares,
		RemainingQuantity: shares,
		Status:            domain.OrderStatusOpen,
		CreatedAt:         testNow,
	}
	return &Batch{
		Property:  p,
		Positions: []domain.Position{{PropertyID: id, OwnerID: domain.PlatformOwnerID, Shares: shares, Reserved: shares}},
		Orders:    []*domain.Order{issue},
	}, issue
}

func TestStore_ListingRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		b, issue := listingBatch("p1", 100, 50_000_00)
		require.NoError(t, s.Apply(ctx, b))
		assert.NotZero(t, issue.Seq, "insert assigns a sequence")

		p, err := s.GetProperty(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), p.TotalShares)
		assert.Equal(t, int64(50_000_00), p.PricePerShare)

		open, err := s.OpenOrders(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, issue.OrderID, open[0].OrderID)

		positions, err := s.PositionsByProperty(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assert.Equal(t, int64(100), positions[0].Reserved)

		list, err := s.ListProperties(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = s.GetProperty(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrPropertyNotFound)
		_, err = s.GetOrder(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestStore_TradeBatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		b, issue := listingBatch("p1", 100, 1_000)
		require.NoError(t, s.Apply(ctx, b))

		buy := &domain.Order{
			OrderID: "buy-1", PropertyID: "p1", OwnerID: "alice",
			Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, LimitPrice: 1_000,
			Quantity: 10, CreatedAt: testNow.Add(time.Minute), IdempotencyKey: "k1",
		}
		buy.RemainingQuantity = 10
		buy.Fill(10, 1_000)
		issue.Fill(10, 1_000)
		trade := &domain.Transaction{
			TransactionID: "t1", PropertyID: "p1", BuyerID: "alice", SellerID: domain.PlatformOwnerID,
			BuyOrderID: "buy-1", SellOrderID: issue.OrderID, Quantity: 10, PricePerShare: 1_000,
			ExecutedAt: testNow.Add(time.Minute),
		}

		err := s.Apply(ctx, &Batch{
			Positions: []domain.Position{
				{PropertyID: "p1", OwnerID: domain.PlatformOwnerID, Shares: 90, Reserved: 90},
				{PropertyID: "p1", OwnerID: "alice", Shares: 10},
			},
			Orders:          []*domain.Order{issue, buy},
			Transactions:    []*domain.Transaction{trade},
			IdempotencyKeys: []IdempotencyKey{{OwnerID: "alice", Key: "k1", OrderID: "buy-1"}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), trade.Seq)
		assert.Greater(t, buy.Seq, issue.Seq)

		got, err := s.GetOrder(ctx, "buy-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusFilled, got.Status)
		assert.Equal(t, int64(10_000), got.FilledValue)

		got, err = s.GetOrder(ctx, issue.OrderID)
		require.NoError(t, err)
		assert.Equal(t, int64(90), got.RemainingQuantity)

		held, err := s.PositionsByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, held, 1)
		assert.Equal(t, int64(10), held[0].Shares)

		orderID, found, err := s.LookupIdempotencyKey(ctx, "alice", "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "buy-1", orderID)
		_, found, err = s.LookupIdempotencyKey(ctx, "bob", "k1")
		require.NoError(t, err)
		assert.False(t, found, "keys are scoped per owner")

		for _, txs := range [][]*domain.Transaction{
			must(s.TransactionsByProperty(ctx, "p1")),
			must(s.TransactionsByOwner(ctx, "alice")),
			must(s.TransactionsByOwner(ctx, domain.PlatformOwnerID)),
			must(s.TransactionsByOrder(ctx, "buy-1")),
		} {
			require.Len(t, txs, 1)
			assert.Equal(t, "t1", txs[0].TransactionID)
		}
		assert.Empty(t, must(s.TransactionsByOwner(ctx, "bob")))
	})
}

func TestStore_DuplicateIdempotencyKeyRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		b, _ := listingBatch("p1", 100, 1_000)
		require.NoError(t, s.Apply(ctx, b))
		require.NoError(t, s.Apply(ctx, &Batch{
			IdempotencyKeys: []IdempotencyKey{{OwnerID: "alice", Key: "k1", OrderID: "o1"}},
		}))

		order := &domain.Order{
			OrderID: "o2", PropertyID: "p1", OwnerID: "alice", Side: domain.OrderSideBuy,
			Type: domain.OrderTypeLimit, LimitPrice: 1_000, Quantity: 1, RemainingQuantity: 1,
			Status: domain.OrderStatusOpen, CreatedAt: testNow,
		}
		err := s.Apply(ctx, &Batch{
			Positions:       []domain.Position{{PropertyID: "p1", OwnerID: "alice", Shares: 5}},
			Orders:          []*domain.Order{order},
			IdempotencyKeys: []IdempotencyKey{{OwnerID: "alice", Key: "k1", OrderID: "o2"}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict), "got %v", err)
		assert.Zero(t, order.Seq, "failed batch must not assign sequences")

		_, err = s.GetOrder(ctx, "o2")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		assert.Empty(t, must(s.PositionsByOwner(ctx, "alice")))
	})
}

func TestStore_ListOrdersByOwner(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			status := domain.OrderStatusOpen
			if i%2 == 0 {
				status = domain.OrderStatusCancelled
			}
			o := &domain.Order{
				OrderID: fmt.Sprintf("o%d", i), PropertyID: "p1", OwnerID: "alice",
				Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, LimitPrice: 100,
				Quantity: 1, RemainingQuantity: 1, Status: status, CreatedAt: testNow,
			}
			require.NoError(t, s.Apply(ctx, &Batch{Orders: []*domain.Order{o}}))
		}

		page, total, err := s.ListOrdersByOwner(ctx, "alice", nil, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "o5", page[0].OrderID, "newest first")
		assert.Equal(t, "o4", page[1].OrderID)

		open := domain.OrderStatusOpen
		page, total, err = s.ListOrdersByOwner(ctx, "alice", &open, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, page, 1)
		assert.Equal(t, "o1", page[0].OrderID)

		page, _, err = s.ListOrdersByOwner(ctx, "alice", nil, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestStore_PropertyUpdate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		b, _ := listingBatch("p1", 100, 1_000)
		require.NoError(t, s.Apply(ctx, b))

		p, err := s.GetProperty(ctx, "p1")
		require.NoError(t, err)
		p.Halted = true
		p.HaltReason = "sum mismatch"
		require.NoError(t, s.Apply(ctx, &Batch{Property: p}))

		got, err := s.GetProperty(ctx, "p1")
		require.NoError(t, err)
		assert.True(t, got.Halted)
		assert.Equal(t, "sum mismatch", got.HaltReason)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b, issue := listingBatch("p1", 100, 1_000)
	require.NoError(t, s.Apply(ctx, b))

	issue.RemainingQuantity = 0
	got, err := s.GetOrder(ctx, issue.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.RemainingQuantity)

	got.RemainingQuantity = 1
	again, _ := s.GetOrder(ctx, issue.OrderID)
	assert.Equal(t, int64(100), again.RemainingQuantity)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
