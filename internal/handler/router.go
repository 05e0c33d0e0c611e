package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/efreitasn/equityledger/internal/metrics"
	"github.com/efreitasn/equityledger/internal/service"
)

// Services groups the services the HTTP API exposes.
type Services struct {
	Properties *service.PropertyService
	Orders     *service.OrderService
	Statements *service.StatementService
	Webhooks   *service.WebhookService
}

// NewRouter creates a chi router with all routes registered, request IDs,
// panic recovery, request logging, metrics, bearer authentication on
// mutating requests, and Content-Type validation middleware.
func NewRouter(svc Services, hub *Hub, authToken string, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(logger))
	r.Use(metrics.Middleware)
	r.Use(requireBearer(authToken))
	r.Use(contentTypeJSON)

	propertyH := NewPropertyHandler(svc.Properties, logger)
	orderH := NewOrderHandler(svc.Orders, logger)
	ownerH := NewOwnerHandler(svc.Statements, svc.Orders, logger)
	webhookH := NewWebhookHandler(svc.Webhooks, logger)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Property routes.
	r.Post("/properties", propertyH.Create)
	r.Post("/properties/preview", propertyH.Preview)
	r.Get("/properties", propertyH.List)
	r.Get("/properties/{property_id}", propertyH.Get)
	r.Get("/properties/{property_id}/price", propertyH.GetPrice)
	r.Get("/properties/{property_id}/book", propertyH.GetBook)
	r.Get("/properties/{property_id}/quote", propertyH.GetQuote)
	r.Get("/properties/{property_id}/transactions", propertyH.ListTransactions)
	r.Post("/properties/{property_id}/resume", propertyH.Resume)
	if hub != nil {
		r.Get("/properties/{property_id}/stream", hub.ServeWS(propertyH.exists, logger))
	}

	// Order routes.
	r.Post("/properties/{property_id}/orders", orderH.Submit)
	r.Get("/orders/{order_id}", orderH.Get)
	r.Delete("/orders/{order_id}", orderH.Cancel)

	// Owner routes.
	r.Get("/owners/{owner_id}/holdings", ownerH.Holdings)
	r.Get("/owners/{owner_id}/portfolio", ownerH.Portfolio)
	r.Get("/owners/{owner_id}/statement", ownerH.Statement)
	r.Get("/owners/{owner_id}/orders", ownerH.ListOrders)

	// Webhook routes.
	r.Post("/webhooks", webhookH.Upsert)
	r.Get("/webhooks", webhookH.List)
	r.Delete("/webhooks/{webhook_id}", webhookH.Delete)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, duration and request ID using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func mutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// requireBearer rejects mutating requests without an Authorization bearer
// token. When token is set the bearer must match it.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r) {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			got = strings.TrimSpace(got)
			if !ok || got == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "A bearer token is required")
				return
			}
			if token != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
