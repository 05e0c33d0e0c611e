// Package statement derives owner holdings, portfolio values and periodic
// statements from the transaction log. Every function is a pure replay:
// the same transactions always produce the same result.
package statement

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Holding is an owner's position in one property with its cost basis
// under the weighted-average method.
type Holding struct {
	PropertyID   string
	Shares       int64
	CostBasis    int64 // minor units
	RealizedGain int64 // minor units, from sells
	Bought       int64 // shares
	Sold         int64 // shares
}

// AverageCost returns CostBasis / Shares in minor units.
func (h Holding) AverageCost() decimal.Decimal {
	return domain.Ratio(h.CostBasis, h.Shares, 4)
}

// ComputeHoldings replays the owner's side of txs in sequence order.
//
// A buy adds its amount to the cost basis. A sell removes the average cost
// of the shares sold (cost × sold / held, the whole basis when the
// position closes) and books the difference to the sale amount as
// realized gain. Transactions that do not involve ownerID are ignored.
// Holdings are returned sorted by property, including closed positions.
func ComputeHoldings(ownerID string, txs []*domain.Transaction) []Holding {
	sorted := make([]*domain.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.BuyerID == ownerID || t.SellerID == ownerID {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	byProperty := make(map[string]*Holding)
	for _, t := range sorted {
		h := byProperty[t.PropertyID]
		if h == nil {
			h = &Holding{PropertyID: t.PropertyID}
			byProperty[t.PropertyID] = h
		}
		if t.BuyerID == ownerID {
			h.Shares += t.Quantity
			h.CostBasis += t.Amount()
			h.Bought += t.Quantity
			continue
		}
		h.sell(t)
	}

	out := make([]Holding, 0, len(byProperty))
	for _, h := range byProperty {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out
}

func (h *Holding) sell(t *domain.Transaction) {
	var removed int64
	switch {
	case h.Shares <= 0:
		// Inventory that was never bought, e.g. the platform's.
	case t.Quantity >= h.Shares:
		removed = h.CostBasis
	default:
		removed = decimal.NewFromInt(h.CostBasis).
			Mul(decimal.NewFromInt(t.Quantity)).
			Div(decimal.NewFromInt(h.Shares)).
			Round(0).
			IntPart()
	}
	h.Shares -= t.Quantity
	h.CostBasis -= removed
	h.RealizedGain += t.Amount() - removed
	h.Sold += t.Quantity
}

// Open filters holdings down to positions with shares.
func Open(holdings []Holding) []Holding {
	out := make([]Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.Shares > 0 {
			out = append(out, h)
		}
	}
	return out
}
