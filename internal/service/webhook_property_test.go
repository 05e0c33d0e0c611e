package service

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/efreitasn/equityledger/internal/domain"
)

// TestProperty_WebhookUpsertIdempotency verifies that re-registering the
// same (owner_id, event) pair keeps the webhook_id stable, and changing the
// URL updates the subscription without changing the webhook_id.
func TestProperty_WebhookUpsertIdempotency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		svc := newTestWebhookService()

		ownerID := fmt.Sprintf("owner-%d", rapid.IntRange(1, 9999).Draw(t, "ownerSuffix"))
		event := rapid.SampledFrom(domain.WebhookEvents).Draw(t, "event")
		url1 := fmt.Sprintf("https://example.com/hook/%d", rapid.IntRange(1, 99999).Draw(t, "urlSuffix1"))
		url2 := fmt.Sprintf("https://other.example.com/hook/%d", rapid.IntRange(1, 99999).Draw(t, "urlSuffix2"))

		first, created, err := svc.Upsert(UpsertWebhookRequest{OwnerID: ownerID, URL: url1, Events: []string{event}})
		if err != nil || !created {
			t.Fatalf("first upsert: created=%v err=%v", created, err)
		}
		again, created, err := svc.Upsert(UpsertWebhookRequest{OwnerID: ownerID, URL: url1, Events: []string{event}})
		if err != nil || created {
			t.Fatalf("repeat upsert: created=%v err=%v", created, err)
		}
		if again[0] != first[0] {
			t.Fatalf("repeat upsert changed subscription: %+v -> %+v", first[0], again[0])
		}

		moved, created, err := svc.Upsert(UpsertWebhookRequest{OwnerID: ownerID, URL: url2, Events: []string{event}})
		if err != nil || created {
			t.Fatalf("url update: created=%v err=%v", created, err)
		}
		if moved[0].WebhookID != first[0].WebhookID || moved[0].URL != url2 {
			t.Fatalf("url update: got %+v", moved[0])
		}

		list, err := svc.List(ownerID)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("got %d subscriptions, want 1", len(list))
		}
	})
}
