package domain

import "time"

// PlatformOwnerID is the ledger owner that holds unissued primary inventory
// and any valuation dust.
const PlatformOwnerID = "platform"

// Property is a listed property whose ownership is split into fungible
// shares. TotalValuation, MinimumTicket and the derived share economics are
// fixed once the listing is created.
type Property struct {
	PropertyID     string
	Name           string
	TotalValuation int64 // minor units
	MinimumTicket  int64 // minor units
	TotalShares    int64
	PricePerShare  int64 // minor units
	Dust           int64 // TotalValuation - TotalShares*PricePerShare, owned by the platform
	Halted         bool
	HaltReason     string
	CreatedAt      time.Time
}

// IssuedValue returns TotalShares × PricePerShare, i.e. the valuation minus dust.
func (p *Property) IssuedValue() int64 {
	return p.TotalShares * p.PricePerShare
}
