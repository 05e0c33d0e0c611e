package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/service"
)

// WebhookHandler serves owner notification subscriptions.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
	logger     *slog.Logger
}

func NewWebhookHandler(webhookSvc *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, logger: logger}
}

type upsertWebhookRequest struct {
	OwnerID string   `json:"owner_id"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
}

type webhookResponse struct {
	WebhookID string `json:"webhook_id"`
	OwnerID   string `json:"owner_id"`
	Event     string `json:"event"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type webhookListResponse struct {
	OwnerID  string            `json:"owner_id"`
	Webhooks []webhookResponse `json:"webhooks"`
}

// Upsert handles POST /webhooks. Answers 201 when at least one subscription
// is new, 200 when every event only had its URL replaced.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertWebhookRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	webhooks, anyCreated, err := h.webhookSvc.Upsert(service.UpsertWebhookRequest{
		OwnerID: req.OwnerID,
		URL:     req.URL,
		Events:  req.Events,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if anyCreated {
		status = http.StatusCreated
	}
	WriteJSON(w, status, webhookListResponse{
		OwnerID:  req.OwnerID,
		Webhooks: buildWebhookResponses(webhooks, ""),
	})
}

// List handles GET /webhooks?owner_id=&event=.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := q.Get("owner_id")
	if ownerID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "owner_id query parameter is required")
		return
	}
	event := q.Get("event")
	if event != "" && !domain.IsWebhookEvent(event) {
		writeServiceError(w, r, h.logger, domain.UnknownEventError(event))
		return
	}

	webhooks, err := h.webhookSvc.List(ownerID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, webhookListResponse{
		OwnerID:  ownerID,
		Webhooks: buildWebhookResponses(webhooks, event),
	})
}

// Delete handles DELETE /webhooks/{webhook_id}?owner_id=. A subscription
// belonging to another owner reads as not found.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if err := h.webhookSvc.Delete(ownerID, chi.URLParam(r, "webhook_id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// buildWebhookResponses keeps only subscriptions to event, or all of them
// when event is empty.
func buildWebhookResponses(webhooks []domain.Webhook, event string) []webhookResponse {
	out := make([]webhookResponse, 0, len(webhooks))
	for _, wh := range webhooks {
		if event != "" && wh.Event != event {
			continue
		}
		out = append(out, webhookResponse{
			WebhookID: wh.WebhookID,
			OwnerID:   wh.OwnerID,
			Event:     wh.Event,
			URL:       wh.URL,
			CreatedAt: formatTime(wh.CreatedAt),
			UpdatedAt: formatTime(wh.UpdatedAt),
		})
	}
	return out
}
