package statement

import (
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

// PriceFunc returns the price of a property's shares as of a moment.
type PriceFunc func(propertyID string, at time.Time) (int64, bool)

// Entry is one transaction from the owner's point of view.
type Entry struct {
	*domain.Transaction
	Side domain.OrderSide
}

// Statement summarizes an owner's activity over a period.
type Statement struct {
	OwnerID      string
	Period       Period
	Opening      []Holding
	Entries      []Entry
	Closing      []Holding
	Bought       int64 // amount spent in the period, minor units
	Sold         int64 // amount received in the period, minor units
	RealizedGain int64 // realized in the period
	Valuation    Portfolio
}

// Build replays txs into a statement for ownerID over period. Closing
// holdings are valued with price at the end of the period.
func Build(ownerID string, period Period, txs []*domain.Transaction, price PriceFunc) *Statement {
	var before, through []*domain.Transaction
	s := &Statement{OwnerID: ownerID, Period: period}

	for _, t := range txs {
		if t.BuyerID != ownerID && t.SellerID != ownerID {
			continue
		}
		if !period.All && t.ExecutedAt.Before(period.Start) {
			before = append(before, t)
		}
		if period.after(t.ExecutedAt) {
			continue
		}
		through = append(through, t)
		if !period.Contains(t.ExecutedAt) {
			continue
		}

		side := domain.OrderSideBuy
		if t.SellerID == ownerID {
			side = domain.OrderSideSell
			s.Sold += t.Amount()
		} else {
			s.Bought += t.Amount()
		}
		s.Entries = append(s.Entries, Entry{Transaction: t, Side: side})
	}

	opening := ComputeHoldings(ownerID, before)
	closing := ComputeHoldings(ownerID, through)
	s.Opening = Open(opening)
	s.Closing = Open(closing)

	opened := make(map[string]int64, len(opening))
	for _, h := range opening {
		opened[h.PropertyID] = h.RealizedGain
	}
	for _, h := range closing {
		s.RealizedGain += h.RealizedGain - opened[h.PropertyID]
	}

	prices := make(map[string]int64, len(s.Closing))
	at := period.End
	if !period.All {
		at = at.Add(-time.Nanosecond)
	}
	for _, h := range s.Closing {
		if p, ok := price(h.PropertyID, at); ok {
			prices[h.PropertyID] = p
		}
	}
	s.Valuation = ComputePortfolioValue(s.Closing, prices)
	s.Valuation.RealizedGain = s.RealizedGain
	return s
}
