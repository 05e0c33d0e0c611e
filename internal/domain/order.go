package domain

import "time"

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderSide indicates whether an order buys or sells shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Reasons recorded on cancelled orders.
const (
	CancelReasonRequested = "requested"
	CancelReasonExpired   = "expired"
	CancelReasonUnfilled  = "unfilled" // market order remainder
)

// Order represents a buy or sell instruction for shares of one property.
type Order struct {
	OrderID           string
	PropertyID        string
	OwnerID           string
	Side              OrderSide
	Type              OrderType
	LimitPrice        int64 // minor units, 0 for market orders
	Quantity          int64
	FilledQuantity    int64
	RemainingQuantity int64
	CancelledQuantity int64
	FilledValue       int64 // sum(price × quantity) over fills
	Status            OrderStatus
	CancelReason      string
	IdempotencyKey    string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	CancelledAt       *time.Time
	Seq               int64 // arrival order within the process, FIFO tie-break
}

// Active reports whether the order can still trade.
func (o *Order) Active() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// AveragePrice computes the volume-weighted average execution price as
// FilledValue / FilledQuantity using integer arithmetic. Returns
// (price, true) when fills exist, or (0, false) otherwise.
func (o *Order) AveragePrice() (int64, bool) {
	if o.FilledQuantity == 0 {
		return 0, false
	}
	return o.FilledValue / o.FilledQuantity, true
}

// Fill applies an execution of qty shares at price and updates status.
// The caller ensures qty × price fits the filled value (see MulAmount).
func (o *Order) Fill(qty, price int64) {
	o.RemainingQuantity -= qty
	o.FilledQuantity += qty
	o.FilledValue += qty * price
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

// Cancel moves the remaining quantity to CancelledQuantity. An order
// that filled completely stays filled.
func (o *Order) Cancel(reason string, at time.Time) {
	o.CancelledQuantity += o.RemainingQuantity
	o.RemainingQuantity = 0
	if o.FilledQuantity == o.Quantity {
		o.Status = OrderStatusFilled
		return
	}
	o.Status = OrderStatusCancelled
	o.CancelReason = reason
	o.CancelledAt = &at
}

// Clone returns a copy that can be mutated without affecting o.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
