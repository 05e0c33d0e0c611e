// Package economics derives the share count and price per share of a
// listing from its valuation and minimum ticket size.
package economics

import (
	"fmt"
	"log/slog"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Policy bounds the number of shares a listing may be split into.
type Policy struct {
	MinShares int64
	MaxShares int64
}

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = Policy{MinShares: 100, MaxShares: 10_000}

// Validate checks that the bounds are usable.
func (p Policy) Validate() error {
	if p.MinShares < 1 {
		return fmt.Errorf("min shares must be >= 1, got %d", p.MinShares)
	}
	if p.MaxShares < p.MinShares {
		return fmt.Errorf("max shares (%d) must be >= min shares (%d)", p.MaxShares, p.MinShares)
	}
	return nil
}

// Economics is the outcome of splitting a valuation into shares.
type Economics struct {
	TotalShares   int64
	PricePerShare int64
	Dust          int64 // valuation - TotalShares*PricePerShare
	NaiveShares   int64 // round(valuation / ticket) before clamping
	Clamped       bool
}

// Compute splits valuation into shares. The naive share count is
// valuation/ticket rounded half-up, clamped into [MinShares, MaxShares].
// PricePerShare is always derived from the clamped count; the remainder of
// the integer division is returned as Dust.
func Compute(valuation, ticket int64, policy Policy) (Economics, error) {
	if valuation <= 0 {
		return Economics{}, fmt.Errorf("%w: total valuation must be positive, got %d", domain.ErrInvalidValuation, valuation)
	}
	if ticket <= 0 {
		return Economics{}, fmt.Errorf("%w: minimum ticket must be positive, got %d", domain.ErrInvalidTicket, ticket)
	}
	if err := policy.Validate(); err != nil {
		return Economics{}, err
	}

	naive := valuation / ticket
	if rem := valuation % ticket; rem >= ticket-rem {
		naive++
	}

	shares := naive
	if shares < policy.MinShares {
		shares = policy.MinShares
	}
	if shares > policy.MaxShares {
		shares = policy.MaxShares
	}

	price := valuation / shares
	if price == 0 {
		return Economics{}, fmt.Errorf("%w: valuation %d cannot be split into %d shares of at least one minor unit",
			domain.ErrInvalidValuation, valuation, shares)
	}

	return Economics{
		TotalShares:   shares,
		PricePerShare: price,
		Dust:          valuation - shares*price,
		NaiveShares:   naive,
		Clamped:       shares != naive,
	}, nil
}

// Converter applies a fixed policy and logs whenever clamping makes the
// economics diverge from the naive valuation/ticket ratio.
type Converter struct {
	policy Policy
	logger *slog.Logger
}

// NewConverter creates a Converter. A nil logger uses slog.Default().
func NewConverter(policy Policy, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{policy: policy, logger: logger}
}

// Policy returns the converter's share bounds.
func (c *Converter) Policy() Policy {
	return c.policy
}

// Compute runs Compute with the converter's policy.
func (c *Converter) Compute(valuation, ticket int64) (Economics, error) {
	econ, err := Compute(valuation, ticket, c.policy)
	if err != nil {
		return Economics{}, err
	}
	if econ.Clamped {
		c.logger.Warn("share count clamped by policy",
			slog.Int64("total_valuation", valuation),
			slog.Int64("minimum_ticket", ticket),
			slog.Int64("naive_shares", econ.NaiveShares),
			slog.Int64("total_shares", econ.TotalShares),
			slog.Int64("price_per_share", econ.PricePerShare),
			slog.Int64("min_shares", c.policy.MinShares),
			slog.Int64("max_shares", c.policy.MaxShares),
		)
	}
	if econ.Dust > 0 {
		c.logger.Debug("valuation dust assigned to platform",
			slog.Int64("dust", econ.Dust),
			slog.Int64("total_shares", econ.TotalShares),
		)
	}
	return econ, nil
}
