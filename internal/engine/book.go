package engine

import (
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/equityledger/internal/domain"
)

// OrderBookEntry represents a single order resting on the book.
type OrderBookEntry struct {
	Price     int64
	CreatedAt time.Time
	Seq       int64
	OrderID   string
	Order     *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// timeLess breaks price ties: created_at ascending, then arrival sequence,
// then order_id.
func timeLess(a, b OrderBookEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.OrderID < b.OrderID
}

// buyLess orders the buy side by price descending. Min() returns the best
// buy (highest price, earliest time).
func buyLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return timeLess(a, b)
}

// sellLess orders the sell side by price ascending. Min() returns the best
// sell (lowest price, earliest time).
func sellLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return timeLess(a, b)
}

// OrderBook holds the resting limit orders of one property in two B-trees
// with a secondary index for O(log n) removal by order ID.
//
// OrderBook is not safe for concurrent use; the owning property lock
// serializes access.
type OrderBook struct {
	propertyID string
	buys       *btree.BTreeG[OrderBookEntry]
	sells      *btree.BTreeG[OrderBookEntry]
	index      map[string]OrderBookEntry // order_id → entry
}

// NewOrderBook creates an empty book for a property.
func NewOrderBook(propertyID string) *OrderBook {
	const degree = 32
	return &OrderBook{
		propertyID: propertyID,
		buys:       btree.NewG[OrderBookEntry](degree, buyLess),
		sells:      btree.NewG[OrderBookEntry](degree, sellLess),
		index:      make(map[string]OrderBookEntry),
	}
}

func entryFor(o *domain.Order) OrderBookEntry {
	return OrderBookEntry{
		Price:     o.LimitPrice,
		CreatedAt: o.CreatedAt,
		Seq:       o.Seq,
		OrderID:   o.OrderID,
		Order:     o,
	}
}

func (ob *OrderBook) side(s domain.OrderSide) *btree.BTreeG[OrderBookEntry] {
	if s == domain.OrderSideBuy {
		return ob.buys
	}
	return ob.sells
}

// Insert adds o to its side of the book, or replaces the resting version of
// the same order. The book keeps the pointer; callers hand over ownership.
func (ob *OrderBook) Insert(o *domain.Order) {
	entry := entryFor(o)
	ob.side(o.Side).ReplaceOrInsert(entry)
	ob.index[o.OrderID] = entry
}

// Remove deletes an order from the book. It is a no-op for unknown IDs.
func (ob *OrderBook) Remove(orderID string) {
	entry, ok := ob.index[orderID]
	if !ok {
		return
	}
	delete(ob.index, orderID)
	ob.side(entry.Order.Side).Delete(entry)
}

// Get returns the resting order with the given ID.
func (ob *OrderBook) Get(orderID string) (*domain.Order, bool) {
	entry, ok := ob.index[orderID]
	if !ok {
		return nil, false
	}
	return entry.Order, true
}

// BestBuy returns the highest-priority buy (highest price, earliest time).
func (ob *OrderBook) BestBuy() (OrderBookEntry, bool) {
	return ob.buys.Min()
}

// BestSell returns the highest-priority sell (lowest price, earliest time).
func (ob *OrderBook) BestSell() (OrderBookEntry, bool) {
	return ob.sells.Min()
}

// Walk iterates one side in priority order until fn returns false.
func (ob *OrderBook) Walk(s domain.OrderSide, fn func(OrderBookEntry) bool) {
	ob.side(s).Ascend(fn)
}

// Top returns up to n aggregated price levels of one side in priority
// order.
func (ob *OrderBook) Top(s domain.OrderSide, n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	ob.side(s).Ascend(func(entry OrderBookEntry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price == entry.Price {
			levels[len(levels)-1].TotalQuantity += entry.Order.RemainingQuantity
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: entry.Order.RemainingQuantity,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// Len returns the number of resting orders on one side.
func (ob *OrderBook) Len(s domain.OrderSide) int {
	return ob.side(s).Len()
}

// Orders returns every resting order, buys first, each side in priority
// order.
func (ob *OrderBook) Orders() []*domain.Order {
	out := make([]*domain.Order, 0, len(ob.index))
	for _, s := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		ob.Walk(s, func(e OrderBookEntry) bool {
			out = append(out, e.Order)
			return true
		})
	}
	return out
}
