package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

func newTestWebhook(id, ownerID, event, url string) domain.Webhook {
	now := time.Now()
	return domain.Webhook{
		WebhookID: id,
		OwnerID:   ownerID,
		Event:     event,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWebhookStore_Upsert_NewSubscription(t *testing.T) {
	s := NewWebhookStore()

	got, created := s.Upsert(newTestWebhook("wh-1", "owner-1", "trade.executed", "https://example.com/hook"))
	if !created {
		t.Fatal("expected Upsert to report a new subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected webhook ID wh-1, got %s", got.WebhookID)
	}
}

func TestWebhookStore_Upsert_UpdateURLKeepsID(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "owner-1", "trade.executed", "https://example.com/old"))

	got, created := s.Upsert(newTestWebhook("wh-2", "owner-1", "trade.executed", "https://example.com/new"))
	if created {
		t.Fatal("expected Upsert to update the existing subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected stable webhook ID wh-1, got %s", got.WebhookID)
	}
	if got.URL != "https://example.com/new" {
		t.Fatalf("expected updated URL, got %s", got.URL)
	}
	if _, err := s.Get("wh-2"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected wh-2 to not exist, got %v", err)
	}
}

func TestWebhookStore_ListByOwner(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "owner-1", "trade.executed", "https://a"))
	s.Upsert(newTestWebhook("wh-2", "owner-1", "order.cancelled", "https://b"))
	s.Upsert(newTestWebhook("wh-3", "owner-2", "trade.executed", "https://c"))

	got := s.ListByOwner("owner-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(got))
	}
	if got[0].Event != "order.cancelled" || got[1].Event != "trade.executed" {
		t.Fatalf("expected sorted events, got %s, %s", got[0].Event, got[1].Event)
	}
	if len(s.ListByOwner("nobody")) != 0 {
		t.Fatal("expected empty list for unknown owner")
	}
}

func TestWebhookStore_Delete(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "owner-1", "trade.executed", "https://a"))

	if err := s.Delete("wh-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Lookup("owner-1", "trade.executed"); ok {
		t.Fatal("expected secondary index to be cleaned up")
	}
	if err := s.Delete("wh-1"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

func TestWebhookStore_ReturnsCopies(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(newTestWebhook("wh-1", "owner-1", "trade.executed", "https://a"))

	got, _ := s.Get("wh-1")
	got.URL = "https://mutated"

	again, _ := s.Get("wh-1")
	if again.URL != "https://a" {
		t.Fatalf("store state mutated through returned value: %s", again.URL)
	}
}

func TestWebhookStore_ConcurrentUpsert(t *testing.T) {
	s := NewWebhookStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(newTestWebhook(fmt.Sprintf("wh-%d", i), "owner-1", "trade.executed", fmt.Sprintf("https://%d", i)))
		}(i)
	}
	wg.Wait()

	if got := s.ListByOwner("owner-1"); len(got) != 1 {
		t.Fatalf("expected a single subscription per owner+event, got %d", len(got))
	}
}
