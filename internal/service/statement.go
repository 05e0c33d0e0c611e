package service

import (
	"context"
	"sort"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/statement"
	"github.com/efreitasn/equityledger/internal/store"
)

// HoldingView is an open holding with the ledger's reservation state.
type HoldingView struct {
	statement.Holding
	Reserved  int64
	Available int64
}

// StatementService derives holdings, portfolio values and statements from
// the transaction log.
type StatementService struct {
	store      store.Store
	properties *PropertyService
	now        func() time.Time
}

// NewStatementService creates a new StatementService.
func NewStatementService(st store.Store, properties *PropertyService) *StatementService {
	return &StatementService{
		store:      st,
		properties: properties,
		now:        time.Now,
	}
}

// Holdings returns the owner's open holdings. Share counts and cost basis
// come from replaying the owner's transactions; reservations come from the
// stored ledger.
func (s *StatementService) Holdings(ctx context.Context, ownerID string) ([]HoldingView, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return nil, err
	}
	txs, err := s.store.TransactionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.PositionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	reserved := make(map[string]int64, len(positions))
	for _, p := range positions {
		reserved[p.PropertyID] = p.Reserved
	}

	open := statement.Open(statement.ComputeHoldings(ownerID, txs))
	out := make([]HoldingView, 0, len(open))
	for _, h := range open {
		out = append(out, HoldingView{
			Holding:   h,
			Reserved:  reserved[h.PropertyID],
			Available: h.Shares - reserved[h.PropertyID],
		})
	}
	return out, nil
}

// Portfolio values the owner's holdings at each property's current
// reference price.
func (s *StatementService) Portfolio(ctx context.Context, ownerID string) (statement.Portfolio, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return statement.Portfolio{}, err
	}
	txs, err := s.store.TransactionsByOwner(ctx, ownerID)
	if err != nil {
		return statement.Portfolio{}, err
	}

	holdings := statement.ComputeHoldings(ownerID, txs)
	prices := make(map[string]int64, len(holdings))
	for _, h := range holdings {
		if h.Shares <= 0 {
			continue
		}
		price, err := s.properties.GetPrice(ctx, h.PropertyID)
		if err != nil {
			return statement.Portfolio{}, err
		}
		prices[h.PropertyID] = price.CurrentPrice
	}
	return statement.ComputePortfolioValue(holdings, prices), nil
}

// Statement builds the owner's statement for a period such as "2025",
// "2025-03", "2025-Q1" or "all".
func (s *StatementService) Statement(ctx context.Context, ownerID, period string) (*statement.Statement, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return nil, err
	}
	p, err := statement.ParsePeriod(period, s.now())
	if err != nil {
		return nil, err
	}
	txs, err := s.store.TransactionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	price, err := s.historicalPrices(ctx, txs)
	if err != nil {
		return nil, err
	}
	return statement.Build(ownerID, p, txs, price), nil
}

// historicalPrices loads the trade history of every property in txs and
// prices a share at a moment as the last trade at or before it, falling
// back to the issue price.
func (s *StatementService) historicalPrices(ctx context.Context, txs []*domain.Transaction) (statement.PriceFunc, error) {
	type history struct {
		issue  int64
		trades []*domain.Transaction // sorted by Seq, which follows ExecutedAt
	}
	byProperty := make(map[string]*history)
	for _, t := range txs {
		if _, ok := byProperty[t.PropertyID]; ok {
			continue
		}
		p, err := s.store.GetProperty(ctx, t.PropertyID)
		if err != nil {
			return nil, err
		}
		trades, err := s.store.TransactionsByProperty(ctx, t.PropertyID)
		if err != nil {
			return nil, err
		}
		byProperty[t.PropertyID] = &history{issue: p.PricePerShare, trades: trades}
	}

	return func(propertyID string, at time.Time) (int64, bool) {
		h, ok := byProperty[propertyID]
		if !ok {
			return 0, false
		}
		i := sort.Search(len(h.trades), func(i int) bool {
			return h.trades[i].ExecutedAt.After(at)
		})
		if i == 0 {
			return h.issue, true
		}
		return h.trades[i-1].PricePerShare, true
	}, nil
}
