package domain

import (
	"strings"
	"time"
)

// Owner notification events.
const (
	EventTradeExecuted  = "trade.executed"
	EventOrderCancelled = "order.cancelled"
	EventOrderExpired   = "order.expired"
)

// WebhookEvents lists every event an owner can subscribe to.
var WebhookEvents = []string{EventTradeExecuted, EventOrderCancelled, EventOrderExpired}

// IsWebhookEvent reports whether event is a known notification event.
func IsWebhookEvent(event string) bool {
	for _, e := range WebhookEvents {
		if e == event {
			return true
		}
	}
	return false
}

// UnknownEventError builds the validation error for an unsupported event.
func UnknownEventError(event string) *ValidationError {
	return &ValidationError{
		Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(WebhookEvents, ", "),
	}
}

// Webhook is one owner's subscription to one event. An owner has at most one
// URL per event; registering again replaces it.
type Webhook struct {
	WebhookID string
	OwnerID   string
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
