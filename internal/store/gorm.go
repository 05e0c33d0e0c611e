package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/efreitasn/equityledger/internal/domain"
)

// GormStore implements Store on a relational database through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&propertyRecord{},
		&positionRecord{},
		&orderRecord{},
		&transactionRecord{},
		&idempotencyRecord{},
	)
}

// Apply writes the batch inside one database transaction.
func (s *GormStore) Apply(ctx context.Context, b *Batch) error {
	orderSeqs := make([]int64, len(b.Orders))
	txSeqs := make([]int64, len(b.Transactions))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range b.IdempotencyKeys {
			var n int64
			if err := tx.Model(&idempotencyRecord{}).
				Where("owner_id = ? AND idempotency_key = ?", k.OwnerID, k.Key).
				Count(&n).Error; err != nil {
				return fmt.Errorf("checking idempotency key: %w", err)
			}
			if n > 0 {
				return fmt.Errorf("%w: idempotency key %q already used by %s", domain.ErrConcurrencyConflict, k.Key, k.OwnerID)
			}
			rec := idempotencyRecord{OwnerID: k.OwnerID, IdempotencyKey: k.Key, OrderID: k.OrderID}
			if err := tx.Create(&rec).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: idempotency key %q already used by %s", domain.ErrConcurrencyConflict, k.Key, k.OwnerID)
				}
				return fmt.Errorf("inserting idempotency key: %w", err)
			}
		}

		if b.Property != nil {
			rec := toPropertyRecord(b.Property)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "property_id"}},
				UpdateAll: true,
			}).Create(&rec).Error; err != nil {
				return fmt.Errorf("saving property: %w", err)
			}
		}

		for _, p := range b.Positions {
			rec := positionRecord{PropertyID: p.PropertyID, OwnerID: p.OwnerID, Shares: p.Shares, Reserved: p.Reserved}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "property_id"}, {Name: "owner_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"shares", "reserved"}),
			}).Create(&rec).Error; err != nil {
				return fmt.Errorf("saving position: %w", err)
			}
		}

		for i, o := range b.Orders {
			rec := toOrderRecord(o)
			if o.Seq == 0 {
				if err := tx.Create(&rec).Error; err != nil {
					if errors.Is(err, gorm.ErrDuplicatedKey) {
						return fmt.Errorf("%w: order %s already exists", domain.ErrConcurrencyConflict, o.OrderID)
					}
					return fmt.Errorf("inserting order: %w", err)
				}
				orderSeqs[i] = rec.Seq
				continue
			}
			res := tx.Model(&orderRecord{}).Where("seq = ?", o.Seq).Select("*").Updates(&rec)
			if res.Error != nil {
				return fmt.Errorf("updating order: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("update of unknown order %s: %w", o.OrderID, domain.ErrOrderNotFound)
			}
			orderSeqs[i] = o.Seq
		}

		for i, t := range b.Transactions {
			rec := toTransactionRecord(t)
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("appending transaction: %w", err)
			}
			txSeqs[i] = rec.Seq
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, o := range b.Orders {
		o.Seq = orderSeqs[i]
	}
	for i, t := range b.Transactions {
		t.Seq = txSeqs[i]
	}
	return nil
}

func (s *GormStore) GetProperty(ctx context.Context, id string) (*domain.Property, error) {
	var rec propertyRecord
	err := s.db.WithContext(ctx).Where("property_id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading property: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) ListProperties(ctx context.Context) ([]*domain.Property, error) {
	var recs []propertyRecord
	if err := s.db.WithContext(ctx).Order("created_at, property_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	out := make([]*domain.Property, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *GormStore) positions(ctx context.Context, query string, arg string, order string) ([]domain.Position, error) {
	var recs []positionRecord
	if err := s.db.WithContext(ctx).Where(query, arg).Order(order).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	out := make([]domain.Position, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.Position{PropertyID: r.PropertyID, OwnerID: r.OwnerID, Shares: r.Shares, Reserved: r.Reserved})
	}
	return out, nil
}

func (s *GormStore) PositionsByProperty(ctx context.Context, propertyID string) ([]domain.Position, error) {
	return s.positions(ctx, "property_id = ?", propertyID, "owner_id")
}

func (s *GormStore) PositionsByOwner(ctx context.Context, ownerID string) ([]domain.Position, error) {
	return s.positions(ctx, "owner_id = ?", ownerID, "property_id")
}

func (s *GormStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var rec orderRecord
	err := s.db.WithContext(ctx).Where("order_id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading order: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *GormStore) OpenOrders(ctx context.Context, propertyID string) ([]*domain.Order, error) {
	var recs []orderRecord
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND status IN ?", propertyID,
			[]string{string(domain.OrderStatusOpen), string(domain.OrderStatusPartiallyFilled)}).
		Order("seq").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("loading open orders: %w", err)
	}
	out := make([]*domain.Order, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *GormStore) ListOrdersByOwner(ctx context.Context, ownerID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&orderRecord{}).Where("owner_id = ?", ownerID)
		if status != nil {
			q = q.Where("status = ?", string(*status))
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	var recs []orderRecord
	if err := query().Order("seq DESC").Offset((page - 1) * limit).Limit(limit).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	out := make([]*domain.Order, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, int(total), nil
}

func (s *GormStore) transactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	var recs []transactionRecord
	if err := s.db.WithContext(ctx).Where(query, args...).Order("seq").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}
	out := make([]*domain.Transaction, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *GormStore) TransactionsByProperty(ctx context.Context, propertyID string) ([]*domain.Transaction, error) {
	return s.transactions(ctx, "property_id = ?", propertyID)
}

func (s *GormStore) TransactionsByOwner(ctx context.Context, ownerID string) ([]*domain.Transaction, error) {
	return s.transactions(ctx, "buyer_id = ? OR seller_id = ?", ownerID, ownerID)
}

func (s *GormStore) TransactionsByOrder(ctx context.Context, orderID string) ([]*domain.Transaction, error) {
	return s.transactions(ctx, "buy_order_id = ? OR sell_order_id = ?", orderID, orderID)
}

func (s *GormStore) LookupIdempotencyKey(ctx context.Context, ownerID, key string) (string, bool, error) {
	var rec idempotencyRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND idempotency_key = ?", ownerID, key).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up idempotency key: %w", err)
	}
	return rec.OrderID, true, nil
}
