package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/economics"
	"github.com/efreitasn/equityledger/internal/engine"
	"github.com/efreitasn/equityledger/internal/ledger"
	"github.com/efreitasn/equityledger/internal/store"
)

const maxPropertyNameLength = 200

// Price sources reported by GetPrice.
const (
	PriceSourceVWAP      = "vwap"
	PriceSourceLastTrade = "last_trade"
	PriceSourceIssue     = "issue"
)

// CreatePropertyRequest represents the input for listing a property.
type CreatePropertyRequest struct {
	Name           string
	TotalValuation int64
	MinimumTicket  int64
}

// ListingResult is a listed property together with its primary issuance
// order.
type ListingResult struct {
	Property      *domain.Property
	IssuanceOrder *domain.Order
	Clamped       bool
	NaiveShares   int64
}

// PriceResponse represents the response for GET /properties/{id}/price.
type PriceResponse struct {
	PropertyID     string
	CurrentPrice   int64
	Source         string
	Window         string
	TradesInWindow int
	LastTradeAt    *time.Time // nil when no trades ever
}

// BookPriceLevel represents an aggregated price level in the book response.
type BookPriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// BookResponse represents the response for GET /properties/{id}/book.
type BookResponse struct {
	PropertyID string
	Bids       []BookPriceLevel
	Asks       []BookPriceLevel
	Spread     *int64 // nil if either side empty
	SnapshotAt time.Time
}

// QuotePriceLevel represents a single price level in the quote response.
type QuotePriceLevel struct {
	Price    int64
	Quantity int64
}

// QuoteResponse represents the response for GET /properties/{id}/quote.
type QuoteResponse struct {
	PropertyID        string
	Side              domain.OrderSide
	QuantityRequested int64
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
	QuotedAt          time.Time
}

// ReconcileReport compares one property's stored ledger with a replay of
// its transaction log.
type ReconcileReport struct {
	PropertyID    string
	Halted        bool
	HaltReason    string
	Transactions  int
	Conservation  string // empty when shares are conserved
	Discrepancies []ledger.Discrepancy
}

// OK reports whether the stored ledger is consistent.
func (r ReconcileReport) OK() bool {
	return r.Conservation == "" && len(r.Discrepancies) == 0
}

// PropertyService handles listings and their market data.
type PropertyService struct {
	store       store.Store
	manager     *engine.Manager
	converter   *economics.Converter
	priceWindow time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewPropertyService creates a new PropertyService with the given dependencies.
func NewPropertyService(
	st store.Store,
	manager *engine.Manager,
	converter *economics.Converter,
	priceWindow time.Duration,
	logger *slog.Logger,
) *PropertyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PropertyService{
		store:       st,
		manager:     manager,
		converter:   converter,
		priceWindow: priceWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// Create validates the request, computes the share economics, and lists
// the property with the platform holding every share.
func (s *PropertyService) Create(ctx context.Context, req CreatePropertyRequest) (*ListingResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ValidationError{Message: "name is required"}
	}
	if len(name) > maxPropertyNameLength {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("name must be at most %d characters", maxPropertyNameLength),
		}
	}

	econ, err := s.converter.Compute(req.TotalValuation, req.MinimumTicket)
	if err != nil {
		return nil, err
	}

	p := &domain.Property{
		PropertyID:     uuid.New().String(),
		Name:           name,
		TotalValuation: req.TotalValuation,
		MinimumTicket:  req.MinimumTicket,
		TotalShares:    econ.TotalShares,
		PricePerShare:  econ.PricePerShare,
		Dust:           econ.Dust,
		CreatedAt:      s.now().UTC().Truncate(time.Second),
	}
	issue, err := s.manager.List(ctx, p)
	if err != nil {
		return nil, err
	}

	return &ListingResult{
		Property:      p,
		IssuanceOrder: issue,
		Clamped:       econ.Clamped,
		NaiveShares:   econ.NaiveShares,
	}, nil
}

// Preview computes share economics without listing anything.
func (s *PropertyService) Preview(valuation, ticket int64) (economics.Economics, error) {
	return s.converter.Compute(valuation, ticket)
}

// Policy returns the share bounds applied to new listings.
func (s *PropertyService) Policy() economics.Policy {
	return s.converter.Policy()
}

// Get returns the live view of a listing.
func (s *PropertyService) Get(ctx context.Context, propertyID string) (*domain.Property, error) {
	return s.manager.Property(ctx, propertyID)
}

// List returns every listing as stored.
func (s *PropertyService) List(ctx context.Context) ([]*domain.Property, error) {
	return s.store.ListProperties(ctx)
}

// ListTransactions returns the transaction log of a property in sequence
// order.
func (s *PropertyService) ListTransactions(ctx context.Context, propertyID string) ([]*domain.Transaction, error) {
	if _, err := s.store.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.store.TransactionsByProperty(ctx, propertyID)
}

// GetPrice returns the current reference price for a property, computed as
// VWAP over the configured time window. Falls back to the last trade's
// price if no trades exist in the window, and to the issue price if the
// property never traded.
func (s *PropertyService) GetPrice(ctx context.Context, propertyID string) (*PriceResponse, error) {
	p, err := s.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	trades, err := s.store.TransactionsByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	resp := &PriceResponse{
		PropertyID:   propertyID,
		CurrentPrice: p.PricePerShare,
		Source:       PriceSourceIssue,
		Window:       formatDuration(s.priceWindow),
	}
	if len(trades) == 0 {
		return resp, nil
	}

	lastTrade := trades[len(trades)-1]
	resp.LastTradeAt = &lastTrade.ExecutedAt

	// Iterate backwards from the tail until executed_at falls outside the window.
	windowStart := s.now().Add(-s.priceWindow)
	sumValue := decimal.Zero
	var sumQty int64
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.ExecutedAt.Before(windowStart) {
			break
		}
		sumValue = sumValue.Add(decimal.NewFromInt(t.PricePerShare).Mul(decimal.NewFromInt(t.Quantity)))
		sumQty += t.Quantity
		resp.TradesInWindow++
	}

	if sumQty > 0 {
		vwap, _ := sumValue.QuoRem(decimal.NewFromInt(sumQty), 0)
		resp.CurrentPrice = vwap.IntPart()
		resp.Source = PriceSourceVWAP
	} else {
		resp.CurrentPrice = lastTrade.PricePerShare
		resp.Source = PriceSourceLastTrade
	}
	return resp, nil
}

// GetBook returns the top N price levels of a property's order book.
func (s *PropertyService) GetBook(ctx context.Context, propertyID string, depth int) (*BookResponse, error) {
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}

	snap, err := s.manager.Snapshot(ctx, propertyID, depth)
	if err != nil {
		return nil, err
	}

	resp := &BookResponse{
		PropertyID: propertyID,
		Bids:       bookLevels(snap.Buys),
		Asks:       bookLevels(snap.Sells),
		SnapshotAt: s.now(),
	}

	// Compute spread = best_ask - best_bid (null if either side empty).
	if len(snap.Buys) > 0 && len(snap.Sells) > 0 {
		spread := snap.Sells[0].Price - snap.Buys[0].Price
		resp.Spread = &spread
	}
	return resp, nil
}

func bookLevels(levels []engine.PriceLevel) []BookPriceLevel {
	out := make([]BookPriceLevel, len(levels))
	for i, pl := range levels {
		out[i] = BookPriceLevel{
			Price:         pl.Price,
			TotalQuantity: pl.TotalQuantity,
			OrderCount:    pl.OrderCount,
		}
	}
	return out
}

// GetQuote simulates a market order against the current book and returns
// the estimated result without placing an order.
func (s *PropertyService) GetQuote(ctx context.Context, propertyID string, side domain.OrderSide, quantity int64) (*QuoteResponse, error) {
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if quantity <= 0 {
		return nil, &domain.ValidationError{
			Message: "quantity must be a positive integer",
		}
	}

	result, err := s.manager.Quote(ctx, propertyID, side, quantity)
	if err != nil {
		return nil, err
	}

	priceLevels := make([]QuotePriceLevel, len(result.PriceLevels))
	for i, pl := range result.PriceLevels {
		priceLevels[i] = QuotePriceLevel{
			Price:    pl.Price,
			Quantity: pl.Quantity,
		}
	}

	return &QuoteResponse{
		PropertyID:        propertyID,
		Side:              side,
		QuantityRequested: quantity,
		QuantityAvailable: result.QuantityAvailable,
		FullyFillable:     result.FullyFillable,
		EstimatedAvgPrice: result.EstimatedAvgPrice,
		EstimatedTotal:    result.EstimatedTotal,
		PriceLevels:       priceLevels,
		QuotedAt:          s.now(),
	}, nil
}

// Reconcile replays the transaction log of one property, or of every
// property when propertyID is empty, and compares it with the stored
// share positions. It never modifies state.
func (s *PropertyService) Reconcile(ctx context.Context, propertyID string) ([]ReconcileReport, error) {
	var props []*domain.Property
	if propertyID != "" {
		p, err := s.store.GetProperty(ctx, propertyID)
		if err != nil {
			return nil, err
		}
		props = []*domain.Property{p}
	} else {
		all, err := s.store.ListProperties(ctx)
		if err != nil {
			return nil, err
		}
		props = all
	}

	reports := make([]ReconcileReport, 0, len(props))
	for _, p := range props {
		positions, err := s.store.PositionsByProperty(ctx, p.PropertyID)
		if err != nil {
			return nil, err
		}
		txs, err := s.store.TransactionsByProperty(ctx, p.PropertyID)
		if err != nil {
			return nil, err
		}

		r := ReconcileReport{
			PropertyID:    p.PropertyID,
			Halted:        p.Halted,
			HaltReason:    p.HaltReason,
			Transactions:  len(txs),
			Discrepancies: ledger.Diff(positions, ledger.Replay(p, txs)),
		}
		if err := ledger.New(p, positions).CheckConservation(); err != nil {
			r.Conservation = err.Error()
		}
		if !r.OK() {
			s.logger.Error("ledger reconciliation failed",
				"property_id", p.PropertyID,
				"conservation", r.Conservation,
				"discrepancies", len(r.Discrepancies),
			)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Resume lifts a trading halt after the stored ledger has been verified
// against the transaction log.
func (s *PropertyService) Resume(ctx context.Context, propertyID string) (*domain.Property, error) {
	return s.manager.Resume(ctx, propertyID)
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
