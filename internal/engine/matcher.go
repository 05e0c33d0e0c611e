package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/ledger"
	"github.com/efreitasn/equityledger/internal/metrics"
	"github.com/efreitasn/equityledger/internal/store"
)

// DefaultLockTimeout bounds how long an operation waits for a busy
// property before failing with domain.ErrConcurrencyConflict.
const DefaultLockTimeout = 2 * time.Second

// Tracker is notified of resting orders that carry an expiry.
type Tracker interface {
	Track(order *domain.Order)
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	LockTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// SubmitResult is the outcome of one order submission.
type SubmitResult struct {
	Order        *domain.Order
	Transactions []*domain.Transaction

	// Counterparties are the resting orders the submission traded with,
	// after their fills.
	Counterparties []*domain.Order

	// Replayed is set when an idempotency key matched an earlier
	// submission and nothing new was executed.
	Replayed bool
}

// QuotePriceLevel represents a single price level in a quote simulation.
type QuotePriceLevel struct {
	Price    int64
	Quantity int64
}

// QuoteResult holds the result of a market order simulation.
type QuoteResult struct {
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
}

// BookSnapshot is an aggregated view of a property's order book.
type BookSnapshot struct {
	PropertyID string
	Buys       []PriceLevel
	Sells      []PriceLevel
}

// Manager owns the live trading state of every property: its order book,
// share ledger and halt flag. All state changes of one property are
// serialized by a per-property lock, planned against copies, committed to
// the store as a single batch, and only then applied in memory.
type Manager struct {
	store       store.Store
	logger      *slog.Logger
	lockTimeout time.Duration
	now         func() time.Time
	tracker     Tracker

	mu     sync.Mutex
	states map[string]*propertyState
}

type propertyState struct {
	lock     *propertyLock
	loaded   bool
	property *domain.Property
	book     *OrderBook
	ledger   *ledger.Ledger

	haltCounted bool // property is counted in metrics.HaltedProperties
}

// NewManager creates a Manager backed by st.
func NewManager(st store.Store, opts Options) *Manager {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:       st,
		logger:      opts.Logger,
		lockTimeout: opts.LockTimeout,
		now:         opts.Now,
		states:      make(map[string]*propertyState),
	}
}

// SetTracker registers the expiry tracker. Call before serving requests.
func (m *Manager) SetTracker(t Tracker) {
	m.tracker = t
}

func (m *Manager) state(propertyID string) *propertyState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[propertyID]
	if !ok {
		st = &propertyState{lock: newPropertyLock()}
		m.states[propertyID] = st
	}
	return st
}

func (m *Manager) forget(propertyID string, st *propertyState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.states[propertyID] == st {
		delete(m.states, propertyID)
	}
}

// lock acquires the property's lock and loads its state on first use.
// The caller must release st.lock.
func (m *Manager) lock(ctx context.Context, propertyID string) (*propertyState, error) {
	st := m.state(propertyID)
	if err := st.lock.acquire(ctx, propertyID, m.lockTimeout); err != nil {
		return nil, err
	}
	if st.loaded {
		return st, nil
	}
	if err := m.load(ctx, st, propertyID); err != nil {
		st.lock.release()
		if errors.Is(err, domain.ErrPropertyNotFound) {
			m.forget(propertyID, st)
		}
		return nil, err
	}
	return st, nil
}

// load rebuilds a property's book and ledger from the store.
func (m *Manager) load(ctx context.Context, st *propertyState, propertyID string) error {
	p, err := m.store.GetProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	positions, err := m.store.PositionsByProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	open, err := m.store.OpenOrders(ctx, propertyID)
	if err != nil {
		return err
	}

	book := NewOrderBook(propertyID)
	for _, o := range open {
		book.Insert(o)
		if o.ExpiresAt != nil && m.tracker != nil {
			m.tracker.Track(o.Clone())
		}
	}

	st.property = p
	st.book = book
	st.ledger = ledger.New(p, positions)
	st.loaded = true

	if p.Halted {
		m.countHalt(st)
		return nil
	}
	return m.verify(ctx, st)
}

// List registers a new listing. The platform's whole inventory is
// reserved and rests on the book as a sell order at the issue price, which
// is how primary issuance reaches buyers. It returns the issuance order.
func (m *Manager) List(ctx context.Context, p *domain.Property) (*domain.Order, error) {
	st := m.state(p.PropertyID)
	if err := st.lock.acquire(ctx, p.PropertyID, m.lockTimeout); err != nil {
		return nil, err
	}
	defer st.lock.release()

	if st.loaded {
		return nil, fmt.Errorf("property %s is already listed", p.PropertyID)
	}

	l := ledger.New(p, []domain.Position{ledger.Issue(p)})
	tx := l.Begin()
	if err := tx.Reserve(domain.PlatformOwnerID, p.TotalShares); err != nil {
		m.forget(p.PropertyID, st)
		return nil, err
	}

	issue := &domain.Order{
		OrderID:           uuid.New().String(),
		PropertyID:        p.PropertyID,
		OwnerID:           domain.PlatformOwnerID,
		Side:              domain.OrderSideSell,
		Type:              domain.OrderTypeLimit,
		LimitPrice:        p.PricePerShare,
		Quantity:          p.TotalShares,
		RemainingQuantity: p.TotalShares,
		Status:            domain.OrderStatusOpen,
		CreatedAt:         p.CreatedAt,
	}
	prop := *p
	batch := &store.Batch{
		Property:  &prop,
		Positions: tx.Changes(),
		Orders:    []*domain.Order{issue},
	}
	if err := m.store.Apply(ctx, batch); err != nil {
		m.forget(p.PropertyID, st)
		return nil, fmt.Errorf("committing listing: %w", err)
	}

	tx.Commit()
	st.property = &prop
	st.ledger = l
	st.book = NewOrderBook(p.PropertyID)
	st.book.Insert(issue.Clone())
	st.loaded = true

	m.logger.Info("property listed",
		"property_id", p.PropertyID,
		"total_shares", p.TotalShares,
		"price_per_share", p.PricePerShare,
	)
	return issue.Clone(), nil
}

// Property returns the live view of a listing, including its halt flag.
func (m *Manager) Property(ctx context.Context, propertyID string) (*domain.Property, error) {
	st, err := m.lock(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer st.lock.release()

	p := *st.property
	return &p, nil
}

// Submit matches an incoming order against the opposite side of the book.
//
// The caller sets PropertyID, OwnerID, Side, Type, LimitPrice (limit
// orders), Quantity, and optionally IdempotencyKey and ExpiresAt. Submit
// assigns OrderID and CreatedAt and manages all status transitions.
//
// Sells reserve their quantity before matching. Each fill executes at the
// resting order's price and is settled from the seller's reservation.
// Resting orders of the submitting owner are skipped. Limit remainders rest
// on the book; market remainders are cancelled.
//
// The per-property lock is held for the entire pass. The store commit is
// all-or-nothing and in-memory state changes only after it succeeds.
func (m *Manager) Submit(ctx context.Context, order *domain.Order) (*SubmitResult, error) {
	start := time.Now()
	st, err := m.lock(ctx, order.PropertyID)
	if err != nil {
		return nil, err
	}
	defer st.lock.release()
	defer func() { metrics.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if order.IdempotencyKey != "" {
		res, found, err := m.replay(ctx, order)
		if err != nil {
			return nil, err
		}
		if found {
			return res, nil
		}
	}

	if st.property.Halted {
		return nil, fmt.Errorf("%w: %s", domain.ErrPropertyHalted, st.property.HaltReason)
	}
	if order.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be greater than zero"}
	}
	if order.Type == domain.OrderTypeLimit && order.LimitPrice <= 0 {
		return nil, &domain.ValidationError{Message: "limit price must be greater than zero"}
	}
	if maxPrice := domain.MaxPricePerShare(st.property.TotalShares); order.Type == domain.OrderTypeLimit && order.LimitPrice > maxPrice {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("limit price must not exceed %d for a property of %d shares", maxPrice, st.property.TotalShares)}
	}

	now := m.now()
	o := &domain.Order{
		OrderID:           uuid.New().String(),
		PropertyID:        order.PropertyID,
		OwnerID:           order.OwnerID,
		Side:              order.Side,
		Type:              order.Type,
		LimitPrice:        order.LimitPrice,
		Quantity:          order.Quantity,
		RemainingQuantity: order.Quantity,
		Status:            domain.OrderStatusOpen,
		IdempotencyKey:    order.IdempotencyKey,
		ExpiresAt:         order.ExpiresAt,
		CreatedAt:         now,
	}
	if o.Type == domain.OrderTypeMarket {
		o.LimitPrice = 0
		o.ExpiresAt = nil
	}

	pl, err := m.plan(st, o, now)
	if err != nil {
		if errors.Is(err, domain.ErrLedgerInvariantViolation) {
			m.halt(ctx, st, err)
		}
		return nil, err
	}

	batch := &store.Batch{
		Positions:    pl.tx.Changes(),
		Orders:       append([]*domain.Order{o}, pl.resting...),
		Transactions: pl.trades,
	}
	if o.IdempotencyKey != "" {
		batch.IdempotencyKeys = []store.IdempotencyKey{{OwnerID: o.OwnerID, Key: o.IdempotencyKey, OrderID: o.OrderID}}
	}
	if err := m.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("committing order: %w", err)
	}

	pl.tx.Commit()
	counterparties := make([]*domain.Order, 0, len(pl.resting))
	for _, r := range pl.resting {
		if r.Active() {
			st.book.Insert(r)
		} else {
			st.book.Remove(r.OrderID)
		}
		counterparties = append(counterparties, r.Clone())
	}
	if o.Active() {
		st.book.Insert(o.Clone())
		if o.ExpiresAt != nil && m.tracker != nil {
			m.tracker.Track(o.Clone())
		}
	}

	if err := m.verify(ctx, st); err != nil {
		return nil, err
	}

	recordTrades(o, pl.trades)
	return &SubmitResult{
		Order:          o.Clone(),
		Transactions:   pl.trades,
		Counterparties: counterparties,
	}, nil
}

// replay resolves an idempotency key to the order it created. A key reused
// with a different payload fails with domain.ErrIdempotencyMismatch.
func (m *Manager) replay(ctx context.Context, order *domain.Order) (*SubmitResult, bool, error) {
	orderID, found, err := m.store.LookupIdempotencyKey(ctx, order.OwnerID, order.IdempotencyKey)
	if err != nil || !found {
		return nil, false, err
	}
	prev, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("loading order for idempotency key: %w", err)
	}
	if !samePayload(prev, order) {
		return nil, false, fmt.Errorf("%w: key %q was used for order %s", domain.ErrIdempotencyMismatch, order.IdempotencyKey, prev.OrderID)
	}
	txs, err := m.store.TransactionsByOrder(ctx, prev.OrderID)
	if err != nil {
		return nil, false, err
	}
	return &SubmitResult{Order: prev, Transactions: txs, Replayed: true}, true, nil
}

func samePayload(prev, next *domain.Order) bool {
	limit := next.LimitPrice
	if next.Type == domain.OrderTypeMarket {
		limit = 0
	}
	return prev.PropertyID == next.PropertyID &&
		prev.Side == next.Side &&
		prev.Type == next.Type &&
		prev.LimitPrice == limit &&
		prev.Quantity == next.Quantity
}

type plan struct {
	tx      *ledger.Tx
	resting []*domain.Order
	trades  []*domain.Transaction
}

// plan computes the fills of o without touching the book or the ledger.
// o is updated in place; resting orders are cloned.
func (m *Manager) plan(st *propertyState, o *domain.Order, now time.Time) (*plan, error) {
	opposite := domain.OrderSideSell
	if o.Side == domain.OrderSideSell {
		opposite = domain.OrderSideBuy
	}

	if o.Type == domain.OrderTypeMarket && !hasLiquidity(st.book, opposite, o.OwnerID) {
		return nil, domain.ErrNoLiquidity
	}

	tx := st.ledger.Begin()
	if o.Side == domain.OrderSideSell {
		if err := tx.Reserve(o.OwnerID, o.Quantity); err != nil {
			return nil, err
		}
	}

	pl := &plan{tx: tx}
	var walkErr error
	st.book.Walk(opposite, func(e OrderBookEntry) bool {
		if o.RemainingQuantity == 0 || !crosses(o, e.Price) {
			return false
		}
		if e.Order.OwnerID == o.OwnerID {
			return true
		}

		r := e.Order.Clone()
		qty := min(o.RemainingQuantity, r.RemainingQuantity)
		buy, sell := o, r
		if o.Side == domain.OrderSideSell {
			buy, sell = r, o
		}
		if err := checkFill(o, r, qty, e.Price); err != nil {
			walkErr = err
			return false
		}
		if err := tx.TransferReserved(sell.OwnerID, buy.OwnerID, qty); err != nil {
			walkErr = err
			return false
		}
		o.Fill(qty, e.Price)
		r.Fill(qty, e.Price)

		pl.resting = append(pl.resting, r)
		pl.trades = append(pl.trades, &domain.Transaction{
			TransactionID: uuid.New().String(),
			PropertyID:    o.PropertyID,
			BuyerID:       buy.OwnerID,
			SellerID:      sell.OwnerID,
			BuyOrderID:    buy.OrderID,
			SellOrderID:   sell.OrderID,
			Quantity:      qty,
			PricePerShare: e.Price,
			ExecutedAt:    now,
		})
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if o.Type == domain.OrderTypeMarket && o.RemainingQuantity > 0 {
		unfilled := o.RemainingQuantity
		o.Cancel(domain.CancelReasonUnfilled, now)
		if o.Side == domain.OrderSideSell {
			if err := tx.Release(o.OwnerID, unfilled); err != nil {
				return nil, err
			}
		}
	}
	return pl, nil
}

// checkFill rejects a fill whose amount, or either order's running filled
// value, would not fit in int64.
func checkFill(o, r *domain.Order, qty, price int64) error {
	amount, err := domain.MulAmount(qty, price)
	if err != nil {
		return fmt.Errorf("%w: %d shares at %d", err, qty, price)
	}
	for _, ord := range []*domain.Order{o, r} {
		if _, err := domain.AddAmount(ord.FilledValue, amount); err != nil {
			return fmt.Errorf("%w: filled value of order %s", err, ord.OrderID)
		}
	}
	return nil
}

// crosses reports whether o can trade against a resting price.
func crosses(o *domain.Order, restingPrice int64) bool {
	if o.Type == domain.OrderTypeMarket {
		return true
	}
	if o.Side == domain.OrderSideBuy {
		return restingPrice <= o.LimitPrice
	}
	return restingPrice >= o.LimitPrice
}

func hasLiquidity(book *OrderBook, side domain.OrderSide, ownerID string) bool {
	found := false
	book.Walk(side, func(e OrderBookEntry) bool {
		if e.Order.OwnerID != ownerID {
			found = true
			return false
		}
		return true
	})
	return found
}

// Cancel cancels an open or partially filled order and releases the
// reservation of its unfilled remainder. A fill that committed first wins:
// Cancel then reports domain.ErrOrderAlreadyFilled or
// domain.ErrOrderNotCancellable.
func (m *Manager) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	stored, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	st, err := m.lock(ctx, stored.PropertyID)
	if err != nil {
		return nil, err
	}
	defer st.lock.release()

	resting, ok := st.book.Get(orderID)
	if !ok {
		current, err := m.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.OrderStatusFilled {
			return nil, domain.ErrOrderAlreadyFilled
		}
		return nil, domain.ErrOrderNotCancellable
	}
	if st.property.Halted {
		return nil, fmt.Errorf("%w: %s", domain.ErrPropertyHalted, st.property.HaltReason)
	}

	o := resting.Clone()
	unfilled := o.RemainingQuantity
	o.Cancel(reason, m.now())

	tx := st.ledger.Begin()
	if o.Side == domain.OrderSideSell && unfilled > 0 {
		if err := tx.Release(o.OwnerID, unfilled); err != nil {
			if errors.Is(err, domain.ErrLedgerInvariantViolation) {
				m.halt(ctx, st, err)
			}
			return nil, err
		}
	}

	batch := &store.Batch{Positions: tx.Changes(), Orders: []*domain.Order{o}}
	if err := m.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("committing cancel: %w", err)
	}
	tx.Commit()
	st.book.Remove(orderID)

	if err := m.verify(ctx, st); err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

// verify checks share conservation and halts the property on violation.
func (m *Manager) verify(ctx context.Context, st *propertyState) error {
	if err := st.ledger.CheckConservation(); err != nil {
		m.halt(ctx, st, err)
		return err
	}
	return nil
}

// halt stops trading on a property and persists the flag. It never
// retries the failed operation.
func (m *Manager) halt(ctx context.Context, st *propertyState, cause error) {
	if st.property.Halted {
		return
	}
	st.property.Halted = true
	st.property.HaltReason = cause.Error()
	m.countHalt(st)

	m.logger.Error("ledger invariant violated, trading halted",
		"severity", "critical",
		"property_id", st.property.PropertyID,
		"error", cause,
	)

	p := *st.property
	if err := m.store.Apply(context.WithoutCancel(ctx), &store.Batch{Property: &p}); err != nil {
		m.logger.Error("failed to persist trading halt",
			"severity", "critical",
			"property_id", p.PropertyID,
			"error", err,
		)
	}
}

func (m *Manager) countHalt(st *propertyState) {
	if !st.haltCounted {
		st.haltCounted = true
		metrics.HaltedProperties.Inc()
	}
}

// Resume reloads a halted property from the store and lifts the halt when
// the stored ledger conserves shares and agrees with the transaction log.
func (m *Manager) Resume(ctx context.Context, propertyID string) (*domain.Property, error) {
	st, err := m.lock(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer st.lock.release()

	if !st.property.Halted {
		p := *st.property
		return &p, nil
	}

	st.loaded = false
	if err := m.load(ctx, st, propertyID); err != nil {
		return nil, err
	}
	if err := st.ledger.CheckConservation(); err != nil {
		return nil, err
	}
	txs, err := m.store.TransactionsByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if diffs := ledger.Diff(st.ledger.Positions(), ledger.Replay(st.property, txs)); len(diffs) > 0 {
		parts := make([]string, 0, len(diffs))
		for _, d := range diffs {
			parts = append(parts, d.String())
		}
		return nil, &domain.InvariantError{PropertyID: propertyID, Detail: "ledger disagrees with transaction log: " + strings.Join(parts, "; ")}
	}

	p := *st.property
	p.Halted = false
	p.HaltReason = ""
	if err := m.store.Apply(ctx, &store.Batch{Property: &p}); err != nil {
		return nil, fmt.Errorf("persisting resume: %w", err)
	}
	st.property = &p
	if st.haltCounted {
		st.haltCounted = false
		metrics.HaltedProperties.Dec()
	}

	m.logger.Warn("trading resumed", "property_id", propertyID)
	out := p
	return &out, nil
}

// Snapshot returns up to depth aggregated price levels per side.
func (m *Manager) Snapshot(ctx context.Context, propertyID string, depth int) (*BookSnapshot, error) {
	st, err := m.lock(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer st.lock.release()

	return &BookSnapshot{
		PropertyID: propertyID,
		Buys:       st.book.Top(domain.OrderSideBuy, depth),
		Sells:      st.book.Top(domain.OrderSideSell, depth),
	}, nil
}

// Quote performs a read-only walk of the opposite side of the book to
// estimate the result of a market order without placing it.
func (m *Manager) Quote(ctx context.Context, propertyID string, side domain.OrderSide, quantity int64) (*QuoteResult, error) {
	st, err := m.lock(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer st.lock.release()

	result := &QuoteResult{
		PriceLevels: make([]QuotePriceLevel, 0),
	}

	remaining := quantity
	var totalCost int64
	var costErr error

	opposite := domain.OrderSideSell
	if side == domain.OrderSideSell {
		opposite = domain.OrderSideBuy
	}
	st.book.Walk(opposite, func(entry OrderBookEntry) bool {
		if remaining <= 0 {
			return false
		}
		fillQty := min(entry.Order.RemainingQuantity, remaining)
		cost, err := domain.MulAmount(fillQty, entry.Price)
		if err == nil {
			totalCost, err = domain.AddAmount(totalCost, cost)
		}
		if err != nil {
			costErr = err
			return false
		}
		result.QuantityAvailable += fillQty
		remaining -= fillQty

		if n := len(result.PriceLevels); n > 0 && result.PriceLevels[n-1].Price == entry.Price {
			result.PriceLevels[n-1].Quantity += fillQty
		} else {
			result.PriceLevels = append(result.PriceLevels, QuotePriceLevel{
				Price:    entry.Price,
				Quantity: fillQty,
			})
		}
		return true
	})
	if costErr != nil {
		return nil, costErr
	}

	if result.QuantityAvailable > 0 {
		avgPrice := totalCost / result.QuantityAvailable
		result.EstimatedAvgPrice = &avgPrice
		result.EstimatedTotal = &totalCost
	}
	result.FullyFillable = result.QuantityAvailable >= quantity
	return result, nil
}

func recordTrades(o *domain.Order, trades []*domain.Transaction) {
	outcome := string(o.Status)
	if o.Status == domain.OrderStatusCancelled {
		outcome = o.CancelReason
	}
	metrics.OrdersTotal.WithLabelValues(string(o.Side), outcome).Inc()
	for _, t := range trades {
		market := metrics.MarketSecondary
		if t.Primary() {
			market = metrics.MarketPrimary
		}
		metrics.TradesTotal.WithLabelValues(market).Inc()
		metrics.SharesTraded.WithLabelValues(market).Add(float64(t.Quantity))
	}
}
