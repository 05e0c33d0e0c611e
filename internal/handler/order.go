package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
	logger   *slog.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, logger: logger}
}

// submitOrderRequest is the JSON request body for
// POST /properties/{property_id}/orders. A buy or sell without limit_price
// is a market order.
type submitOrderRequest struct {
	OwnerID        string  `json:"owner_id"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	LimitPrice     *int64  `json:"limit_price"`
	Quantity       int64   `json:"quantity"`
	IdempotencyKey string  `json:"idempotency_key"`
	ExpiresAt      *string `json:"expires_at"`
}

// orderResponse is the JSON response for an order. Nullable fields use
// pointers.
type orderResponse struct {
	OrderID           string          `json:"order_id"`
	PropertyID        string          `json:"property_id"`
	OwnerID           string          `json:"owner_id"`
	Side              string          `json:"side"`
	Type              string          `json:"type"`
	LimitPrice        *int64          `json:"limit_price"`
	Quantity          int64           `json:"quantity"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
	CancelReason      *string         `json:"cancel_reason"`
	IdempotencyKey    *string         `json:"idempotency_key"`
	AveragePrice      *int64          `json:"average_price"`
	ExpiresAt         *string         `json:"expires_at"`
	CreatedAt         string          `json:"created_at"`
	CancelledAt       *string         `json:"cancelled_at"`
	Trades            []tradeResponse `json:"trades"`
}

// tradeResponse is a single transaction in responses.
type tradeResponse struct {
	TransactionID string `json:"transaction_id"`
	Seq           int64  `json:"seq"`
	PropertyID    string `json:"property_id"`
	BuyerID       string `json:"buyer_id"`
	SellerID      string `json:"seller_id"`
	BuyOrderID    string `json:"buy_order_id"`
	SellOrderID   string `json:"sell_order_id"`
	Quantity      int64  `json:"quantity"`
	PricePerShare int64  `json:"price_per_share"`
	Amount        int64  `json:"amount"`
	Primary       bool   `json:"primary"`
	ExecutedAt    string `json:"executed_at"`
}

// Submit handles POST /properties/{property_id}/orders. A replayed
// idempotency key answers 200 with the original order instead of 201.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "expires_at must be a valid RFC 3339 timestamp")
			return
		}
		expiresAt = &t
	}

	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	res, err := h.orderSvc.Submit(r.Context(), service.SubmitOrderRequest{
		PropertyID:     chi.URLParam(r, "property_id"),
		OwnerID:        req.OwnerID,
		Side:           domain.OrderSide(req.Side),
		Type:           domain.OrderType(req.Type),
		LimitPrice:     req.LimitPrice,
		Quantity:       req.Quantity,
		IdempotencyKey: key,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	WriteJSON(w, status, buildOrderResponse(res.Order, res.Transactions))
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.orderSvc.Get(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(detail.Order, detail.Fills))
}

// Cancel handles DELETE /orders/{order_id}. The optional owner_id query
// parameter restricts the cancellation to that owner's orders.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.Cancel(r.Context(), chi.URLParam(r, "order_id"), r.URL.Query().Get("owner_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order, nil))
}

func buildOrderResponse(o *domain.Order, trades []*domain.Transaction) orderResponse {
	resp := orderResponse{
		OrderID:           o.OrderID,
		PropertyID:        o.PropertyID,
		OwnerID:           o.OwnerID,
		Side:              string(o.Side),
		Type:              string(o.Type),
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		Status:            string(o.Status),
		CancelReason:      stringPtr(o.CancelReason),
		IdempotencyKey:    stringPtr(o.IdempotencyKey),
		ExpiresAt:         formatTimePtr(o.ExpiresAt),
		CreatedAt:         formatTime(o.CreatedAt),
		CancelledAt:       formatTimePtr(o.CancelledAt),
		Trades:            buildTradeResponses(trades),
	}
	if o.Type == domain.OrderTypeLimit {
		price := o.LimitPrice
		resp.LimitPrice = &price
	}
	if avg, ok := o.AveragePrice(); ok {
		resp.AveragePrice = &avg
	}
	return resp
}

// buildTradeResponses converts domain transactions to response trades.
func buildTradeResponses(trades []*domain.Transaction) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = tradeResponse{
			TransactionID: t.TransactionID,
			Seq:           t.Seq,
			PropertyID:    t.PropertyID,
			BuyerID:       t.BuyerID,
			SellerID:      t.SellerID,
			BuyOrderID:    t.BuyOrderID,
			SellOrderID:   t.SellOrderID,
			Quantity:      t.Quantity,
			PricePerShare: t.PricePerShare,
			Amount:        t.Amount(),
			Primary:       t.Primary(),
			ExecutedAt:    formatTime(t.ExecutedAt),
		}
	}
	return result
}
