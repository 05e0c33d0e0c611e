package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/engine"
	"github.com/efreitasn/equityledger/internal/store"
)

var ownerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const maxIdempotencyKeyLength = 128

// ValidOrderStatuses contains the accepted status filters for order lists.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
}

// TradePublisher receives executed trades after they are committed.
type TradePublisher interface {
	PublishTrades(propertyID string, trades []*domain.Transaction)
}

// SubmitOrderRequest represents the input for order submission. A request
// without Type is a market order when LimitPrice is nil and a limit order
// otherwise.
type SubmitOrderRequest struct {
	PropertyID     string
	OwnerID        string
	Side           domain.OrderSide
	Type           domain.OrderType
	LimitPrice     *int64
	Quantity       int64
	IdempotencyKey string
	ExpiresAt      *time.Time
}

// OrderDetail is an order with the trades it took part in.
type OrderDetail struct {
	Order *domain.Order
	Fills []*domain.Transaction
}

// OrderService handles order submission, cancellation and queries.
type OrderService struct {
	manager    *engine.Manager
	store      store.Store
	webhooks   *WebhookService
	publisher  TradePublisher
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrderService creates a new OrderService. webhooks may be nil.
func NewOrderService(
	manager *engine.Manager,
	st store.Store,
	webhooks *WebhookService,
	maxRetries int,
	logger *slog.Logger,
) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &OrderService{
		manager:    manager,
		store:      st,
		webhooks:   webhooks,
		maxRetries: maxRetries,
		backoff:    10 * time.Millisecond,
		logger:     logger,
		now:        time.Now,
	}
}

// SetPublisher registers the live trade feed. Call before serving requests.
func (s *OrderService) SetPublisher(p TradePublisher) {
	s.publisher = p
}

// Submit validates the request and runs it through the matcher. Lock
// conflicts are retried up to the configured bound. Notifications are sent
// after the property lock is released.
func (s *OrderService) Submit(ctx context.Context, req SubmitOrderRequest) (*engine.SubmitResult, error) {
	order, err := s.validateSubmit(req)
	if err != nil {
		return nil, err
	}

	var res *engine.SubmitResult
	err = s.retry(ctx, func() error {
		var err error
		res, err = s.manager.Submit(ctx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !res.Replayed {
		s.notifySubmit(res)
	}
	return res, nil
}

func (s *OrderService) validateSubmit(req SubmitOrderRequest) (*domain.Order, error) {
	if req.PropertyID == "" {
		return nil, &domain.ValidationError{Message: "property_id is required"}
	}
	if err := validateOwnerID(req.OwnerID); err != nil {
		return nil, err
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("idempotency_key must be at most %d characters", maxIdempotencyKeyLength),
		}
	}

	typ := req.Type
	if typ == "" {
		typ = domain.OrderTypeLimit
		if req.LimitPrice == nil {
			typ = domain.OrderTypeMarket
		}
	}

	order := &domain.Order{
		PropertyID:     req.PropertyID,
		OwnerID:        req.OwnerID,
		Side:           req.Side,
		Type:           typ,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
	}

	switch typ {
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil {
			return nil, &domain.ValidationError{Message: "limit orders require limit_price"}
		}
		if *req.LimitPrice <= 0 {
			return nil, &domain.ValidationError{Message: "limit_price must be a positive integer"}
		}
		if _, err := domain.MulAmount(req.Quantity, *req.LimitPrice); err != nil {
			return nil, &domain.ValidationError{Message: "limit_price × quantity exceeds the largest representable amount"}
		}
		if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
			return nil, &domain.ValidationError{Message: "expires_at must be in the future"}
		}
		order.LimitPrice = *req.LimitPrice
		order.ExpiresAt = req.ExpiresAt
	case domain.OrderTypeMarket:
		// Market orders must NOT include price or expires_at.
		if req.LimitPrice != nil {
			return nil, &domain.ValidationError{Message: "market orders must not include limit_price"}
		}
		if req.ExpiresAt != nil {
			return nil, &domain.ValidationError{Message: "market orders must not include expires_at"}
		}
	default:
		return nil, &domain.ValidationError{Message: "type must be 'limit' or 'market'"}
	}
	return order, nil
}

func validateOwnerID(ownerID string) error {
	if !ownerIDRegex.MatchString(ownerID) {
		return &domain.ValidationError{
			Message: "owner_id must be 1-64 characters of letters, digits, '_' or '-'",
		}
	}
	if ownerID == domain.PlatformOwnerID {
		return &domain.ValidationError{Message: "owner_id '" + domain.PlatformOwnerID + "' is reserved"}
	}
	return nil
}

// retry runs fn until it succeeds, fails with anything other than a lock
// conflict, or exhausts the retry bound.
func (s *OrderService) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
		err = fn()
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		s.logger.Debug("retrying after lock conflict", "attempt", attempt+1, "error", err)
	}
	return err
}

// notifySubmit dispatches trade.executed to both sides of every trade and
// publishes the trades to the live feed.
func (s *OrderService) notifySubmit(res *engine.SubmitResult) {
	if len(res.Transactions) > 0 && s.publisher != nil {
		s.publisher.PublishTrades(res.Order.PropertyID, res.Transactions)
	}
	if s.webhooks == nil {
		return
	}

	counterparts := make(map[string]*domain.Order, len(res.Counterparties))
	for _, o := range res.Counterparties {
		counterparts[o.OrderID] = o
	}
	for _, t := range res.Transactions {
		s.webhooks.DispatchTradeExecuted(t, res.Order)

		restingID := t.SellOrderID
		if res.Order.Side == domain.OrderSideSell {
			restingID = t.BuyOrderID
		}
		if resting, ok := counterparts[restingID]; ok {
			s.webhooks.DispatchTradeExecuted(t, resting)
		}
	}
	if res.Order.Status == domain.OrderStatusCancelled {
		s.webhooks.DispatchOrderCancelled(res.Order)
	}
}

// Get retrieves an order by ID with all its trades.
func (s *OrderService) Get(ctx context.Context, orderID string) (*OrderDetail, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	fills, err := s.store.TransactionsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: o, Fills: fills}, nil
}

// Cancel cancels an open or partially filled order and releases its
// reservation. When ownerID is set it must own the order. The platform's
// issuance orders cannot be cancelled.
func (s *OrderService) Cancel(ctx context.Context, orderID, ownerID string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && o.OwnerID != ownerID {
		return nil, domain.ErrOrderNotFound
	}
	if o.OwnerID == domain.PlatformOwnerID {
		return nil, fmt.Errorf("%w: issuance orders cannot be cancelled", domain.ErrOrderNotCancellable)
	}

	var cancelled *domain.Order
	err = s.retry(ctx, func() error {
		var err error
		cancelled, err = s.manager.Cancel(ctx, orderID, domain.CancelReasonRequested)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.webhooks != nil {
		s.webhooks.DispatchOrderCancelled(cancelled)
	}
	return cancelled, nil
}

// ListByOwner returns a paginated list of orders for an owner with optional
// status filtering.
func (s *OrderService) ListByOwner(ctx context.Context, ownerID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if !ownerIDRegex.MatchString(ownerID) {
		return nil, 0, &domain.ValidationError{Message: "invalid owner_id"}
	}

	// Validate status if provided.
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: open, partially_filled, filled, cancelled", *status),
		}
	}

	// Validate pagination.
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}

	return s.store.ListOrdersByOwner(ctx, ownerID, status, page, limit)
}
