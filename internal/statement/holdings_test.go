package statement

import (
	"testing"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

var t0 = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func trade(seq int64, property, buyer, seller string, qty, price int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		Seq:           seq,
		TransactionID: "t" + string(rune('0'+seq)),
		PropertyID:    property,
		BuyerID:       buyer,
		SellerID:      seller,
		Quantity:      qty,
		PricePerShare: price,
		ExecutedAt:    at,
	}
}

func TestComputeHoldings_WeightedAverageCost(t *testing.T) {
	txs := []*domain.Transaction{
		trade(1, "p1", "alice", domain.PlatformOwnerID, 10, 100, t0),
		trade(2, "p1", "alice", "bob", 10, 200, t0),
		trade(3, "p1", "carol", "alice", 5, 300, t0),
	}

	got := ComputeHoldings("alice", txs)
	if len(got) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(got))
	}
	h := got[0]
	// Bought 20 for 3000 (avg 150); sold 5 removes 750 of cost.
	if h.Shares != 15 || h.CostBasis != 2_250 {
		t.Fatalf("expected 15 shares at cost 2250, got %d at %d", h.Shares, h.CostBasis)
	}
	if h.RealizedGain != 5*300-750 {
		t.Fatalf("expected realized gain 750, got %d", h.RealizedGain)
	}
	if h.AverageCost().String() != "150" {
		t.Fatalf("expected average cost 150, got %s", h.AverageCost())
	}
	if h.Bought != 20 || h.Sold != 5 {
		t.Fatalf("unexpected volumes %+v", h)
	}
}

func TestComputeHoldings_ClosingPositionRemovesWholeBasis(t *testing.T) {
	txs := []*domain.Transaction{
		trade(1, "p1", "alice", domain.PlatformOwnerID, 3, 101, t0),
		trade(2, "p1", "alice", domain.PlatformOwnerID, 4, 103, t0),
		trade(3, "p1", "bob", "alice", 7, 90, t0),
	}

	h := ComputeHoldings("alice", txs)[0]
	if h.Shares != 0 || h.CostBasis != 0 {
		t.Fatalf("expected a flat position with no residual cost, got %+v", h)
	}
	if h.RealizedGain != 7*90-(3*101+4*103) {
		t.Fatalf("unexpected realized gain %d", h.RealizedGain)
	}
	if len(Open([]Holding{h})) != 0 {
		t.Fatal("expected Open to drop closed positions")
	}
}

func TestComputeHoldings_OrdersBySequenceAndFiltersOwner(t *testing.T) {
	txs := []*domain.Transaction{
		trade(2, "p1", "bob", "alice", 5, 300, t0),
		trade(1, "p1", "alice", domain.PlatformOwnerID, 5, 100, t0),
		trade(3, "p2", "carol", domain.PlatformOwnerID, 1, 100, t0),
	}

	got := ComputeHoldings("alice", txs)
	if len(got) != 1 || got[0].Shares != 0 || got[0].RealizedGain != 1_000 {
		t.Fatalf("expected the buy to be applied before the sell, got %+v", got)
	}
	if len(ComputeHoldings("nobody", txs)) != 0 {
		t.Fatal("expected no holdings for an owner without transactions")
	}
}

func TestComputeHoldings_SortedByProperty(t *testing.T) {
	txs := []*domain.Transaction{
		trade(1, "p2", "alice", domain.PlatformOwnerID, 1, 100, t0),
		trade(2, "p1", "alice", domain.PlatformOwnerID, 1, 100, t0),
	}
	got := ComputeHoldings("alice", txs)
	if got[0].PropertyID != "p1" || got[1].PropertyID != "p2" {
		t.Fatalf("expected holdings sorted by property, got %+v", got)
	}
}

func TestComputePortfolioValue(t *testing.T) {
	holdings := []Holding{
		{PropertyID: "p1", Shares: 10, CostBasis: 1_000},
		{PropertyID: "p2", Shares: 5, CostBasis: 500},
		{PropertyID: "p3", Shares: 0, CostBasis: 0, RealizedGain: 40},
	}

	p := ComputePortfolioValue(holdings, map[string]int64{"p1": 150})
	if len(p.Lines) != 2 {
		t.Fatalf("expected 2 open lines, got %d", len(p.Lines))
	}
	if p.Lines[0].MarketValue != 1_500 || !p.Lines[0].Priced {
		t.Fatalf("unexpected priced line %+v", p.Lines[0])
	}
	if p.Lines[1].MarketValue != 500 || p.Lines[1].Priced {
		t.Fatalf("expected unpriced line valued at cost, got %+v", p.Lines[1])
	}
	if p.TotalCost != 1_500 || p.TotalValue != 2_000 || p.UnrealizedGain != 500 || p.RealizedGain != 40 {
		t.Fatalf("unexpected totals %+v", p)
	}
	if p.ReturnPct().String() != "33.33" {
		t.Fatalf("expected 33.33%% return, got %s", p.ReturnPct())
	}
	if ComputePortfolioValue(nil, nil).ReturnPct().String() != "0" {
		t.Fatal("expected zero return for an empty portfolio")
	}
}
