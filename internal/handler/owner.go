package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/service"
	"github.com/efreitasn/equityledger/internal/statement"
)

// OwnerHandler handles HTTP requests for an owner's holdings, portfolio,
// statement and orders.
type OwnerHandler struct {
	statementSvc *service.StatementService
	orderSvc     *service.OrderService
	logger       *slog.Logger
}

// NewOwnerHandler creates a new OwnerHandler.
func NewOwnerHandler(statementSvc *service.StatementService, orderSvc *service.OrderService, logger *slog.Logger) *OwnerHandler {
	return &OwnerHandler{statementSvc: statementSvc, orderSvc: orderSvc, logger: logger}
}

type holdingResponse struct {
	PropertyID   string `json:"property_id"`
	Shares       int64  `json:"shares"`
	Reserved     int64  `json:"reserved"`
	Available    int64  `json:"available"`
	CostBasis    int64  `json:"cost_basis"`
	AverageCost  string `json:"average_cost"`
	RealizedGain int64  `json:"realized_gain"`
}

type holdingsResponse struct {
	OwnerID  string            `json:"owner_id"`
	Holdings []holdingResponse `json:"holdings"`
}

type portfolioLineResponse struct {
	PropertyID     string `json:"property_id"`
	Shares         int64  `json:"shares"`
	CostBasis      int64  `json:"cost_basis"`
	AverageCost    string `json:"average_cost"`
	CurrentPrice   *int64 `json:"current_price"`
	MarketValue    int64  `json:"market_value"`
	UnrealizedGain int64  `json:"unrealized_gain"`
}

type portfolioResponse struct {
	OwnerID           string                  `json:"owner_id"`
	Holdings          []portfolioLineResponse `json:"holdings"`
	TotalCost         int64                   `json:"total_cost"`
	TotalCurrentValue int64                   `json:"total_current_value"`
	UnrealizedGain    int64                   `json:"unrealized_gain"`
	RealizedGain      int64                   `json:"realized_gain"`
	ReturnPct         string                  `json:"return_pct"`
}

type statementHoldingResponse struct {
	PropertyID  string `json:"property_id"`
	Shares      int64  `json:"shares"`
	CostBasis   int64  `json:"cost_basis"`
	AverageCost string `json:"average_cost"`
}

type statementEntryResponse struct {
	tradeResponse
	Side string `json:"side"`
}

type statementResponse struct {
	OwnerID      string                     `json:"owner_id"`
	Period       string                     `json:"period"`
	PeriodStart  *string                    `json:"period_start"`
	PeriodEnd    *string                    `json:"period_end"`
	Opening      []statementHoldingResponse `json:"opening_holdings"`
	Transactions []statementEntryResponse   `json:"transactions"`
	Closing      []statementHoldingResponse `json:"closing_holdings"`
	Bought       int64                      `json:"total_bought"`
	Sold         int64                      `json:"total_sold"`
	RealizedGain int64                      `json:"realized_gain"`
	Valuation    portfolioResponse          `json:"closing_valuation"`
}

type ownerOrdersResponse struct {
	OwnerID string          `json:"owner_id"`
	Orders  []orderResponse `json:"orders"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
}

// Holdings handles GET /owners/{owner_id}/holdings.
func (h *OwnerHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	views, err := h.statementSvc.Holdings(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]holdingResponse, len(views))
	for i, v := range views {
		out[i] = holdingResponse{
			PropertyID:   v.PropertyID,
			Shares:       v.Shares,
			Reserved:     v.Reserved,
			Available:    v.Available,
			CostBasis:    v.CostBasis,
			AverageCost:  v.AverageCost().String(),
			RealizedGain: v.RealizedGain,
		}
	}
	WriteJSON(w, http.StatusOK, holdingsResponse{OwnerID: ownerID, Holdings: out})
}

// Portfolio handles GET /owners/{owner_id}/portfolio.
func (h *OwnerHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	p, err := h.statementSvc.Portfolio(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildPortfolioResponse(ownerID, p))
}

func buildPortfolioResponse(ownerID string, p statement.Portfolio) portfolioResponse {
	lines := make([]portfolioLineResponse, len(p.Lines))
	for i, l := range p.Lines {
		line := portfolioLineResponse{
			PropertyID:     l.PropertyID,
			Shares:         l.Shares,
			CostBasis:      l.CostBasis,
			AverageCost:    l.AverageCost().String(),
			MarketValue:    l.MarketValue,
			UnrealizedGain: l.UnrealizedGain,
		}
		if l.Priced {
			price := l.Price
			line.CurrentPrice = &price
		}
		lines[i] = line
	}
	return portfolioResponse{
		OwnerID:           ownerID,
		Holdings:          lines,
		TotalCost:         p.TotalCost,
		TotalCurrentValue: p.TotalValue,
		UnrealizedGain:    p.UnrealizedGain,
		RealizedGain:      p.RealizedGain,
		ReturnPct:         p.ReturnPct().StringFixed(2),
	}
}

func buildStatementHoldings(holdings []statement.Holding) []statementHoldingResponse {
	out := make([]statementHoldingResponse, len(holdings))
	for i, hl := range holdings {
		out[i] = statementHoldingResponse{
			PropertyID:  hl.PropertyID,
			Shares:      hl.Shares,
			CostBasis:   hl.CostBasis,
			AverageCost: hl.AverageCost().String(),
		}
	}
	return out
}

// Statement handles GET /owners/{owner_id}/statement?period=.
func (h *OwnerHandler) Statement(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	st, err := h.statementSvc.Statement(r.Context(), ownerID, r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entries := make([]statementEntryResponse, len(st.Entries))
	for i, e := range st.Entries {
		entries[i] = statementEntryResponse{
			tradeResponse: buildTradeResponses([]*domain.Transaction{e.Transaction})[0],
			Side:          string(e.Side),
		}
	}

	resp := statementResponse{
		OwnerID:      ownerID,
		Period:       st.Period.Label,
		Opening:      buildStatementHoldings(st.Opening),
		Transactions: entries,
		Closing:      buildStatementHoldings(st.Closing),
		Bought:       st.Bought,
		Sold:         st.Sold,
		RealizedGain: st.RealizedGain,
		Valuation:    buildPortfolioResponse(ownerID, st.Valuation),
	}
	if !st.Period.All {
		resp.PeriodStart = stringPtr(formatTime(st.Period.Start))
		resp.PeriodEnd = stringPtr(formatTime(st.Period.End))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListOrders handles GET /owners/{owner_id}/orders?status=&page=&limit=.
func (h *OwnerHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.OrderStatus(s)
		status = &st
	}

	orders, total, err := h.orderSvc.ListByOwner(r.Context(), ownerID, status, page, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = buildOrderResponse(o, nil)
	}
	WriteJSON(w, http.StatusOK, ownerOrdersResponse{
		OwnerID: ownerID,
		Orders:  out,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}
