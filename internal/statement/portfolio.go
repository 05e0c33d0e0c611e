package statement

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Line values one holding at a current price.
type Line struct {
	Holding
	Price          int64 // minor units per share
	Priced         bool  // false when no price was supplied; valued at cost
	MarketValue    int64
	UnrealizedGain int64
}

// Portfolio is the valuation of a set of holdings.
type Portfolio struct {
	Lines          []Line
	TotalCost      int64
	TotalValue     int64
	UnrealizedGain int64
	RealizedGain   int64
}

// ReturnPct returns UnrealizedGain / TotalCost as a percentage.
func (p Portfolio) ReturnPct() decimal.Decimal {
	return domain.Ratio(p.UnrealizedGain*100, p.TotalCost, 2)
}

// ComputePortfolioValue values holdings at prices keyed by property ID.
// Closed positions contribute only realized gain.
func ComputePortfolioValue(holdings []Holding, prices map[string]int64) Portfolio {
	var p Portfolio
	for _, h := range holdings {
		p.RealizedGain += h.RealizedGain
		if h.Shares <= 0 {
			continue
		}
		line := Line{Holding: h}
		if price, ok := prices[h.PropertyID]; ok {
			line.Price = price
			line.Priced = true
			line.MarketValue = h.Shares * price
		} else {
			line.MarketValue = h.CostBasis
		}
		line.UnrealizedGain = line.MarketValue - h.CostBasis

		p.Lines = append(p.Lines, line)
		p.TotalCost += h.CostBasis
		p.TotalValue += line.MarketValue
		p.UnrealizedGain += line.UnrealizedGain
	}
	return p
}
