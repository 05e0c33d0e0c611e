package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/equityledger/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for owner notification
// subscriptions.
// Primary index: webhook_id → webhook.
// Secondary index: owner_id → event → webhook.
type WebhookStore struct {
	mu       sync.RWMutex
	webhooks map[string]*domain.Webhook
	byOwner  map[string]map[string]*domain.Webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks: make(map[string]*domain.Webhook),
		byOwner:  make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert inserts or updates the subscription keyed by (owner_id, event).
// An existing subscription keeps its webhook_id and only its URL and
// UpdatedAt change. It returns the stored subscription and whether it was
// newly created.
func (s *WebhookStore) Upsert(w domain.Webhook) (domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byOwner[w.OwnerID][w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		return *existing, false
	}

	stored := w
	s.webhooks[w.WebhookID] = &stored
	if s.byOwner[w.OwnerID] == nil {
		s.byOwner[w.OwnerID] = make(map[string]*domain.Webhook)
	}
	s.byOwner[w.OwnerID][w.Event] = &stored
	return stored, true
}

// Get returns domain.ErrWebhookNotFound for unknown ids.
func (s *WebhookStore) Get(id string) (domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.Webhook{}, domain.ErrWebhookNotFound
	}
	return *w, nil
}

// ListByOwner returns an owner's subscriptions sorted by event.
func (s *WebhookStore) ListByOwner(ownerID string) []domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Webhook, 0, len(s.byOwner[ownerID]))
	for _, w := range s.byOwner[ownerID] {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out
}

// Delete removes a subscription from both indexes.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, id)
	if events, ok := s.byOwner[w.OwnerID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byOwner, w.OwnerID)
		}
	}
	return nil
}

// Lookup returns the subscription for an owner+event pair.
func (s *WebhookStore) Lookup(ownerID, event string) (domain.Webhook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byOwner[ownerID][event]
	if !ok {
		return domain.Webhook{}, false
	}
	return *w, true
}
