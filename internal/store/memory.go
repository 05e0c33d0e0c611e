package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/efreitasn/equityledger/internal/domain"
)

// MemoryStore implements Store with in-memory maps guarded by one lock.
// Stored objects are copies; callers never share pointers with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	properties   map[string]*domain.Property
	positions    map[string]map[string]domain.Position // property_id → owner_id → position
	orders       map[string]*domain.Order
	ownerOrders  map[string][]string // owner_id → order ids (insertion order)
	transactions []*domain.Transaction
	idempotency  map[string]string // owner_id + "\x00" + key → order_id
	orderSeq     int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		properties:  make(map[string]*domain.Property),
		positions:   make(map[string]map[string]domain.Position),
		orders:      make(map[string]*domain.Order),
		ownerOrders: make(map[string][]string),
		idempotency: make(map[string]string),
	}
}

func idempotencyMapKey(ownerID, key string) string {
	return ownerID + "\x00" + key
}

// Apply validates the whole batch before writing any of it.
func (s *MemoryStore) Apply(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(b.IdempotencyKeys))
	for _, k := range b.IdempotencyKeys {
		mk := idempotencyMapKey(k.OwnerID, k.Key)
		if _, exists := s.idempotency[mk]; exists || seen[mk] {
			return fmt.Errorf("%w: idempotency key %q already used by %s", domain.ErrConcurrencyConflict, k.Key, k.OwnerID)
		}
		seen[mk] = true
	}
	for _, o := range b.Orders {
		if o.Seq != 0 {
			if _, ok := s.orders[o.OrderID]; !ok {
				return fmt.Errorf("update of unknown order %s: %w", o.OrderID, domain.ErrOrderNotFound)
			}
		} else if _, ok := s.orders[o.OrderID]; ok {
			return fmt.Errorf("%w: order %s already exists", domain.ErrConcurrencyConflict, o.OrderID)
		}
	}

	if b.Property != nil {
		p := *b.Property
		s.properties[p.PropertyID] = &p
	}
	for _, pos := range b.Positions {
		byOwner := s.positions[pos.PropertyID]
		if byOwner == nil {
			byOwner = make(map[string]domain.Position)
			s.positions[pos.PropertyID] = byOwner
		}
		byOwner[pos.OwnerID] = pos
	}
	for _, o := range b.Orders {
		if o.Seq == 0 {
			s.orderSeq++
			o.Seq = s.orderSeq
			s.ownerOrders[o.OwnerID] = append(s.ownerOrders[o.OwnerID], o.OrderID)
		}
		s.orders[o.OrderID] = o.Clone()
	}
	for _, t := range b.Transactions {
		t.Seq = int64(len(s.transactions)) + 1
		c := *t
		s.transactions = append(s.transactions, &c)
	}
	for _, k := range b.IdempotencyKeys {
		s.idempotency[idempotencyMapKey(k.OwnerID, k.Key)] = k.OrderID
	}
	return nil
}

func (s *MemoryStore) GetProperty(_ context.Context, id string) (*domain.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.properties[id]
	if !ok {
		return nil, domain.ErrPropertyNotFound
	}
	c := *p
	return &c, nil
}

// ListProperties returns listings oldest first.
func (s *MemoryStore) ListProperties(_ context.Context) ([]*domain.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Property, 0, len(s.properties))
	for _, p := range s.properties {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PropertyID < out[j].PropertyID
	})
	return out, nil
}

func (s *MemoryStore) PositionsByProperty(_ context.Context, propertyID string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.positions[propertyID]))
	for _, p := range s.positions[propertyID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (s *MemoryStore) PositionsByOwner(_ context.Context, ownerID string) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0)
	for _, byOwner := range s.positions {
		if p, ok := byOwner[ownerID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) OpenOrders(_ context.Context, propertyID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range s.orders {
		if o.PropertyID == propertyID && o.Active() {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) ListOrdersByOwner(_ context.Context, ownerID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ownerOrders[ownerID]

	// Filter by status if provided, collecting in reverse order.
	filtered := make([]*domain.Order, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if status != nil && o.Status != *status {
			continue
		}
		filtered = append(filtered, o)
	}

	total := len(filtered)
	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		out = append(out, o.Clone())
	}
	return out, total, nil
}

func (s *MemoryStore) filterTransactions(keep func(*domain.Transaction) bool) []*domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range s.transactions {
		if keep(t) {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

func (s *MemoryStore) TransactionsByProperty(_ context.Context, propertyID string) ([]*domain.Transaction, error) {
	return s.filterTransactions(func(t *domain.Transaction) bool {
		return t.PropertyID == propertyID
	}), nil
}

func (s *MemoryStore) TransactionsByOwner(_ context.Context, ownerID string) ([]*domain.Transaction, error) {
	return s.filterTransactions(func(t *domain.Transaction) bool {
		return t.BuyerID == ownerID || t.SellerID == ownerID
	}), nil
}

func (s *MemoryStore) TransactionsByOrder(_ context.Context, orderID string) ([]*domain.Transaction, error) {
	return s.filterTransactions(func(t *domain.Transaction) bool {
		return t.BuyOrderID == orderID || t.SellOrderID == orderID
	}), nil
}

func (s *MemoryStore) LookupIdempotencyKey(_ context.Context, ownerID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idempotency[idempotencyMapKey(ownerID, key)]
	return id, ok, nil
}
