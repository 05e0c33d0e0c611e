package statement

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Shares held equal shares bought minus shares sold, and the cost basis
// stays within the range of purchase prices.
func TestProperty_HoldingsMatchFlows(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		var txs []*domain.Transaction
		var held, bought, sold int64
		minPrice, maxPrice := int64(1<<62), int64(0)

		for i := 0; i < n; i++ {
			price := rapid.Int64Range(1, 10_000).Draw(t, "price")
			buy := held == 0 || rapid.Bool().Draw(t, "buy")
			var qty int64
			tr := &domain.Transaction{
				Seq:           int64(i + 1),
				TransactionID: fmt.Sprintf("t%d", i),
				PropertyID:    "p1",
				PricePerShare: price,
				ExecutedAt:    t0.Add(time.Duration(i) * time.Minute),
			}
			if buy {
				qty = rapid.Int64Range(1, 100).Draw(t, "buyQty")
				tr.BuyerID, tr.SellerID = "alice", domain.PlatformOwnerID
				held += qty
				bought += qty
				minPrice = min(minPrice, price)
				maxPrice = max(maxPrice, price)
			} else {
				qty = rapid.Int64Range(1, held).Draw(t, "sellQty")
				tr.BuyerID, tr.SellerID = "bob", "alice"
				held -= qty
				sold += qty
			}
			tr.Quantity = qty
			txs = append(txs, tr)
		}

		h := ComputeHoldings("alice", txs)[0]
		if h.Shares != held || h.Bought != bought || h.Sold != sold {
			t.Fatalf("expected %d held (%d bought, %d sold), got %+v", held, bought, sold, h)
		}
		if held == 0 && h.CostBasis != 0 {
			t.Fatalf("closed position kept cost %d", h.CostBasis)
		}
		if held > 0 {
			// Rounding each sell by at most half a unit keeps the basis
			// within held shares of the price band.
			lo := held*minPrice - int64(n)
			hi := held*maxPrice + int64(n)
			if h.CostBasis < lo || h.CostBasis > hi {
				t.Fatalf("cost basis %d outside [%d, %d]", h.CostBasis, lo, hi)
			}
		}
	})
}
