package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/metrics"
	"github.com/efreitasn/equityledger/internal/store"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	OwnerID string
	URL     string
	Events  []string
}

// WebhookService handles webhook CRUD and event dispatch. Deliveries run
// in their own goroutines and never hold a property lock.
type WebhookService struct {
	store       *store.WebhookStore
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger

	wg sync.WaitGroup
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	webhookTimeout time.Duration,
	maxAttempts int,
	logger *slog.Logger,
) *WebhookService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		store: webhookStore,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		maxAttempts: maxAttempts,
		backoff:     500 * time.Millisecond,
		logger:      logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]domain.Webhook, bool, error) {
	if err := validateOwnerID(req.OwnerID); err != nil {
		return nil, false, err
	}

	// Validate URL.
	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[string]bool, len(req.Events))
	events := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !domain.IsWebhookEvent(event) {
			return nil, false, domain.UnknownEventError(event)
		}
		if !seen[event] {
			seen[event] = true
			events = append(events, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]domain.Webhook, 0, len(events))
	for _, event := range events {
		stored, created := s.store.Upsert(domain.Webhook{
			WebhookID: uuid.New().String(),
			OwnerID:   req.OwnerID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, stored)
	}
	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of an owner.
func (s *WebhookService) List(ownerID string) ([]domain.Webhook, error) {
	if err := validateOwnerID(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListByOwner(ownerID), nil
}

// Delete removes a webhook subscription by ID. Subscriptions of other
// owners are reported as not found.
func (s *WebhookService) Delete(ownerID, webhookID string) error {
	w, err := s.store.Get(webhookID)
	if err != nil {
		return err
	}
	if ownerID != "" && w.OwnerID != ownerID {
		return domain.ErrWebhookNotFound
	}
	return s.store.Delete(webhookID)
}

// Wait blocks until every in-flight delivery has finished.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type tradeExecutedData struct {
	TransactionID          string `json:"transaction_id"`
	Seq                    int64  `json:"seq"`
	PropertyID             string `json:"property_id"`
	OwnerID                string `json:"owner_id"`
	OrderID                string `json:"order_id"`
	Side                   string `json:"side"`
	PricePerShare          int64  `json:"price_per_share"`
	Quantity               int64  `json:"quantity"`
	Amount                 int64  `json:"amount"`
	Primary                bool   `json:"primary"`
	OrderStatus            string `json:"order_status"`
	OrderFilledQuantity    int64  `json:"order_filled_quantity"`
	OrderRemainingQuantity int64  `json:"order_remaining_quantity"`
}

type orderEventData struct {
	OwnerID           string `json:"owner_id"`
	OrderID           string `json:"order_id"`
	PropertyID        string `json:"property_id"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	LimitPrice        *int64 `json:"limit_price"`
	Quantity          int64  `json:"quantity"`
	FilledQuantity    int64  `json:"filled_quantity"`
	CancelledQuantity int64  `json:"cancelled_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Status            string `json:"status"`
	CancelReason      string `json:"cancel_reason"`
}

// DispatchTradeExecuted notifies the owner of order about its side of
// trade t. The transaction id doubles as the delivery idempotency key, so
// both sides of a trade and every retry share it.
func (s *WebhookService) DispatchTradeExecuted(t *domain.Transaction, order *domain.Order) {
	wh, ok := s.store.Lookup(order.OwnerID, domain.EventTradeExecuted)
	if !ok {
		return
	}

	payload := webhookPayload{
		Event:     domain.EventTradeExecuted,
		Timestamp: t.ExecutedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: tradeExecutedData{
			TransactionID:          t.TransactionID,
			Seq:                    t.Seq,
			PropertyID:             t.PropertyID,
			OwnerID:                order.OwnerID,
			OrderID:                order.OrderID,
			Side:                   string(order.Side),
			PricePerShare:          t.PricePerShare,
			Quantity:               t.Quantity,
			Amount:                 t.Amount(),
			Primary:                t.Primary(),
			OrderStatus:            string(order.Status),
			OrderFilledQuantity:    order.FilledQuantity,
			OrderRemainingQuantity: order.RemainingQuantity,
		},
	}
	s.dispatch(wh, t.TransactionID, payload)
}

// DispatchOrderCancelled notifies the order's owner of a cancellation.
func (s *WebhookService) DispatchOrderCancelled(order *domain.Order) {
	s.dispatchOrderEvent(domain.EventOrderCancelled, order)
}

// OrderExpired notifies the order's owner that the order expired.
func (s *WebhookService) OrderExpired(order *domain.Order) {
	s.dispatchOrderEvent(domain.EventOrderExpired, order)
}

func (s *WebhookService) dispatchOrderEvent(event string, order *domain.Order) {
	wh, ok := s.store.Lookup(order.OwnerID, event)
	if !ok {
		return
	}

	data := orderEventData{
		OwnerID:           order.OwnerID,
		OrderID:           order.OrderID,
		PropertyID:        order.PropertyID,
		Side:              string(order.Side),
		Type:              string(order.Type),
		Quantity:          order.Quantity,
		FilledQuantity:    order.FilledQuantity,
		CancelledQuantity: order.CancelledQuantity,
		RemainingQuantity: order.RemainingQuantity,
		Status:            string(order.Status),
		CancelReason:      order.CancelReason,
	}
	if order.Type == domain.OrderTypeLimit {
		price := order.LimitPrice
		data.LimitPrice = &price
	}

	at := time.Now()
	if order.CancelledAt != nil {
		at = *order.CancelledAt
	}
	payload := webhookPayload{
		Event:     event,
		Timestamp: at.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      data,
	}
	s.dispatch(wh, order.OrderID+":"+event, payload)
}

func (s *WebhookService) dispatch(wh domain.Webhook, idempotencyKey string, payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encoding webhook payload", "event", payload.Event, "error", err)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(wh, payload.Event, idempotencyKey, body)
	}()
}

// deliver POSTs body to the subscription URL. Network errors, 5xx and 429
// responses are retried with exponential backoff up to maxAttempts; other
// responses end the delivery.
func (s *WebhookService) deliver(wh domain.Webhook, event, idempotencyKey string, body []byte) {
	deliveryID := uuid.New().String()
	wait := s.backoff

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		retry, err := s.post(wh, event, deliveryID, idempotencyKey, body)
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues(event, "delivered").Inc()
			return
		}
		if !retry {
			metrics.WebhookDeliveries.WithLabelValues(event, "rejected").Inc()
			s.logger.Warn("webhook rejected",
				"webhook_id", wh.WebhookID, "event", event, "delivery_id", deliveryID, "error", err)
			return
		}
		metrics.WebhookDeliveries.WithLabelValues(event, "retry").Inc()
		if attempt < s.maxAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}

	metrics.WebhookDeliveries.WithLabelValues(event, "failed").Inc()
	s.logger.Warn("webhook delivery failed",
		"webhook_id", wh.WebhookID, "event", event, "delivery_id", deliveryID, "attempts", s.maxAttempts)
}

type statusError int

func (e statusError) Error() string {
	return "unexpected status " + http.StatusText(int(e))
}

func (s *WebhookService) post(wh domain.Webhook, event, deliveryID, idempotencyKey string, body []byte) (bool, error) {
	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", event)
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, statusError(resp.StatusCode)
	default:
		return false, statusError(resp.StatusCode)
	}
}
