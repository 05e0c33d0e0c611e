package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/equityledger/internal/domain"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// listings and idempotency keys. Writes go to the primary store first and
// then refresh or invalidate the cache; reads check Redis first then fall
// back to the primary. Cache failures never fail a request.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: primary, rdb: rdb, ttl: ttl}
}

// --- Write-through ---

func (s *CachedStore) Apply(ctx context.Context, b *Batch) error {
	if err := s.Store.Apply(ctx, b); err != nil {
		return err
	}
	if b.Property != nil {
		s.rdb.Del(ctx, propertyKey(b.Property.PropertyID))
	}
	for _, k := range b.IdempotencyKeys {
		s.rdb.Set(ctx, idempotencyKey(k.OwnerID, k.Key), k.OrderID, s.ttl)
	}
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetProperty(ctx context.Context, id string) (*domain.Property, error) {
	data, err := s.rdb.Get(ctx, propertyKey(id)).Bytes()
	if err == nil {
		var p domain.Property
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.Store.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, propertyKey(id), data, s.ttl)
	}
	return p, nil
}

// LookupIdempotencyKey caches positive hits only; a miss must always reach
// the primary store.
func (s *CachedStore) LookupIdempotencyKey(ctx context.Context, ownerID, key string) (string, bool, error) {
	orderID, err := s.rdb.Get(ctx, idempotencyKey(ownerID, key)).Result()
	if err == nil {
		return orderID, true, nil
	}

	orderID, found, err := s.Store.LookupIdempotencyKey(ctx, ownerID, key)
	if err != nil || !found {
		return orderID, found, err
	}
	s.rdb.Set(ctx, idempotencyKey(ownerID, key), orderID, s.ttl)
	return orderID, true, nil
}

func propertyKey(id string) string { return fmt.Sprintf("property:%s", id) }
func idempotencyKey(ownerID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", ownerID, key)
}
