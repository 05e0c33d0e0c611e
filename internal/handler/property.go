package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/service"
)

// PropertyHandler handles HTTP requests for property endpoints.
type PropertyHandler struct {
	propertySvc *service.PropertyService
	logger      *slog.Logger
}

// NewPropertyHandler creates a new PropertyHandler.
func NewPropertyHandler(propertySvc *service.PropertyService, logger *slog.Logger) *PropertyHandler {
	return &PropertyHandler{propertySvc: propertySvc, logger: logger}
}

// createPropertyRequest is the JSON request body for POST /properties.
type createPropertyRequest struct {
	Name           string `json:"name"`
	TotalValuation int64  `json:"total_valuation"`
	MinimumTicket  int64  `json:"minimum_ticket"`
}

// previewRequest is the JSON request body for POST /properties/preview.
type previewRequest struct {
	TotalValuation int64 `json:"total_valuation"`
	MinimumTicket  int64 `json:"minimum_ticket"`
}

// propertyResponse is a property in responses. Money fields are integers
// in minor units.
type propertyResponse struct {
	PropertyID           string  `json:"property_id"`
	Name                 string  `json:"name"`
	TotalValuation       int64   `json:"total_valuation"`
	MinimumTicket        int64   `json:"minimum_ticket"`
	TotalShares          int64   `json:"total_shares"`
	PricePerShare        int64   `json:"price_per_share"`
	PricePerShareDisplay string  `json:"price_per_share_display"`
	Dust                 int64   `json:"dust"`
	Halted               bool    `json:"halted"`
	HaltReason           *string `json:"halt_reason"`
	CreatedAt            string  `json:"created_at"`
}

// createPropertyResponse is the JSON response for POST /properties.
type createPropertyResponse struct {
	propertyResponse
	IssuanceOrderID string `json:"issuance_order_id"`
	NaiveShares     int64  `json:"naive_shares"`
	Clamped         bool   `json:"clamped"`
}

// previewResponse is the JSON response for POST /properties/preview.
type previewResponse struct {
	TotalShares   int64 `json:"total_shares"`
	PricePerShare int64 `json:"price_per_share"`
	Dust          int64 `json:"dust"`
	NaiveShares   int64 `json:"naive_shares"`
	Clamped       bool  `json:"clamped"`
	MinShares     int64 `json:"min_shares"`
	MaxShares     int64 `json:"max_shares"`
}

// priceResponse is the JSON response for GET /properties/{property_id}/price.
type priceResponse struct {
	PropertyID   string  `json:"property_id"`
	CurrentPrice int64   `json:"current_price"`
	Source       string  `json:"source"`
	Window       string  `json:"window"`
	TradesInWin  int     `json:"trades_in_window"`
	LastTradeAt  *string `json:"last_trade_at"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         int64 `json:"price"`
	TotalQuantity int64 `json:"total_quantity"`
	OrderCount    int   `json:"order_count"`
}

// bookResponse is the JSON response for GET /properties/{property_id}/book.
type bookResponse struct {
	PropertyID string              `json:"property_id"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *int64              `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

// quoteLevelResponse is a single price level in the quote response.
type quoteLevelResponse struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// quoteResponse is the JSON response for GET /properties/{property_id}/quote.
type quoteResponse struct {
	PropertyID        string               `json:"property_id"`
	Side              string               `json:"side"`
	QuantityRequested int64                `json:"quantity_requested"`
	QuantityAvailable int64                `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *int64               `json:"estimated_average_price"`
	EstimatedTotal    *int64               `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// transactionListResponse is the JSON response for
// GET /properties/{property_id}/transactions.
type transactionListResponse struct {
	PropertyID   string          `json:"property_id"`
	Transactions []tradeResponse `json:"transactions"`
}

func buildPropertyResponse(p *domain.Property) propertyResponse {
	return propertyResponse{
		PropertyID:           p.PropertyID,
		Name:                 p.Name,
		TotalValuation:       p.TotalValuation,
		MinimumTicket:        p.MinimumTicket,
		TotalShares:          p.TotalShares,
		PricePerShare:        p.PricePerShare,
		PricePerShareDisplay: domain.FormatMinor(p.PricePerShare),
		Dust:                 p.Dust,
		Halted:               p.Halted,
		HaltReason:           stringPtr(p.HaltReason),
		CreatedAt:            formatTime(p.CreatedAt),
	}
}

// Create handles POST /properties.
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPropertyRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.propertySvc.Create(r.Context(), service.CreatePropertyRequest{
		Name:           req.Name,
		TotalValuation: req.TotalValuation,
		MinimumTicket:  req.MinimumTicket,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, createPropertyResponse{
		propertyResponse: buildPropertyResponse(res.Property),
		IssuanceOrderID:  res.IssuanceOrder.OrderID,
		NaiveShares:      res.NaiveShares,
		Clamped:          res.Clamped,
	})
}

// Preview handles POST /properties/preview.
func (h *PropertyHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	econ, err := h.propertySvc.Preview(req.TotalValuation, req.MinimumTicket)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	policy := h.propertySvc.Policy()
	WriteJSON(w, http.StatusOK, previewResponse{
		TotalShares:   econ.TotalShares,
		PricePerShare: econ.PricePerShare,
		Dust:          econ.Dust,
		NaiveShares:   econ.NaiveShares,
		Clamped:       econ.Clamped,
		MinShares:     policy.MinShares,
		MaxShares:     policy.MaxShares,
	})
}

// List handles GET /properties.
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	props, err := h.propertySvc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]propertyResponse, len(props))
	for i, p := range props {
		out[i] = buildPropertyResponse(p)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"properties": out})
}

// Get handles GET /properties/{property_id}.
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.propertySvc.Get(r.Context(), chi.URLParam(r, "property_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildPropertyResponse(p))
}

// exists reports domain.ErrPropertyNotFound for unknown properties.
func (h *PropertyHandler) exists(r *http.Request, propertyID string) error {
	_, err := h.propertySvc.Get(r.Context(), propertyID)
	return err
}

// Resume handles POST /properties/{property_id}/resume.
func (h *PropertyHandler) Resume(w http.ResponseWriter, r *http.Request) {
	p, err := h.propertySvc.Resume(r.Context(), chi.URLParam(r, "property_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildPropertyResponse(p))
}

// GetPrice handles GET /properties/{property_id}/price.
func (h *PropertyHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.propertySvc.GetPrice(r.Context(), chi.URLParam(r, "property_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, priceResponse{
		PropertyID:   price.PropertyID,
		CurrentPrice: price.CurrentPrice,
		Source:       price.Source,
		Window:       price.Window,
		TradesInWin:  price.TradesInWindow,
		LastTradeAt:  formatTimePtr(price.LastTradeAt),
	})
}

// GetBook handles GET /properties/{property_id}/book.
func (h *PropertyHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", 10)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	book, err := h.propertySvc.GetBook(r.Context(), chi.URLParam(r, "property_id"), depth)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		PropertyID: book.PropertyID,
		Bids:       buildBookLevels(book.Bids),
		Asks:       buildBookLevels(book.Asks),
		Spread:     book.Spread,
		SnapshotAt: formatTime(book.SnapshotAt),
	})
}

func buildBookLevels(levels []service.BookPriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, pl := range levels {
		out[i] = bookLevelResponse{
			Price:         pl.Price,
			TotalQuantity: pl.TotalQuantity,
			OrderCount:    pl.OrderCount,
		}
	}
	return out
}

// GetQuote handles GET /properties/{property_id}/quote.
func (h *PropertyHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	side := r.URL.Query().Get("side")
	if side == "" {
		side = string(domain.OrderSideBuy)
	}
	qtyStr := r.URL.Query().Get("quantity")
	if qtyStr == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity query parameter is required")
		return
	}
	quantity, err := strconv.ParseInt(qtyStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be a positive integer")
		return
	}

	quote, err := h.propertySvc.GetQuote(r.Context(), chi.URLParam(r, "property_id"), domain.OrderSide(side), quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	levels := make([]quoteLevelResponse, len(quote.PriceLevels))
	for i, pl := range quote.PriceLevels {
		levels[i] = quoteLevelResponse{Price: pl.Price, Quantity: pl.Quantity}
	}
	WriteJSON(w, http.StatusOK, quoteResponse{
		PropertyID:        quote.PropertyID,
		Side:              string(quote.Side),
		QuantityRequested: quote.QuantityRequested,
		QuantityAvailable: quote.QuantityAvailable,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: quote.EstimatedAvgPrice,
		EstimatedTotal:    quote.EstimatedTotal,
		PriceLevels:       levels,
		QuotedAt:          formatTime(quote.QuotedAt),
	})
}

// ListTransactions handles GET /properties/{property_id}/transactions.
func (h *PropertyHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "property_id")
	txs, err := h.propertySvc.ListTransactions(r.Context(), propertyID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, transactionListResponse{
		PropertyID:   propertyID,
		Transactions: buildTradeResponses(txs),
	})
}
