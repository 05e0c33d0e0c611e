package store

import (
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

type propertyRecord struct {
	PropertyID     string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"size:255;not null"`
	TotalValuation int64  `gorm:"not null"`
	MinimumTicket  int64  `gorm:"not null"`
	TotalShares    int64  `gorm:"not null"`
	PricePerShare  int64  `gorm:"not null"`
	Dust           int64  `gorm:"not null"`
	Halted         bool   `gorm:"not null;default:false"`
	HaltReason     string `gorm:"size:1024"`
	CreatedAt      time.Time
}

func (propertyRecord) TableName() string { return "properties" }

type positionRecord struct {
	PropertyID string `gorm:"primaryKey;size:36"`
	OwnerID    string `gorm:"primaryKey;size:64;index"`
	Shares     int64  `gorm:"not null"`
	Reserved   int64  `gorm:"not null"`
}

func (positionRecord) TableName() string { return "share_positions" }

type orderRecord struct {
	Seq               int64  `gorm:"primaryKey;autoIncrement"`
	OrderID           string `gorm:"uniqueIndex;size:36;not null"`
	PropertyID        string `gorm:"index;size:36;not null"`
	OwnerID           string `gorm:"index;size:64;not null"`
	Side              string `gorm:"size:8;not null"`
	Type              string `gorm:"size:8;not null"`
	LimitPrice        int64
	Quantity          int64 `gorm:"not null"`
	FilledQuantity    int64
	RemainingQuantity int64
	CancelledQuantity int64
	FilledValue       int64
	Status            string `gorm:"index;size:20;not null"`
	CancelReason      string `gorm:"size:20"`
	IdempotencyKey    string `gorm:"size:255"`
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	CancelledAt       *time.Time
}

func (orderRecord) TableName() string { return "orders" }

type transactionRecord struct {
	Seq           int64  `gorm:"primaryKey;autoIncrement"`
	TransactionID string `gorm:"uniqueIndex;size:36;not null"`
	PropertyID    string `gorm:"index;size:36;not null"`
	BuyerID       string `gorm:"index;size:64;not null"`
	SellerID      string `gorm:"index;size:64;not null"`
	BuyOrderID    string `gorm:"index;size:36"`
	SellOrderID   string `gorm:"index;size:36"`
	Quantity      int64  `gorm:"not null"`
	PricePerShare int64  `gorm:"not null"`
	ExecutedAt    time.Time
}

func (transactionRecord) TableName() string { return "transactions" }

type idempotencyRecord struct {
	OwnerID        string `gorm:"primaryKey;size:64"`
	IdempotencyKey string `gorm:"primaryKey;size:255"`
	OrderID        string `gorm:"size:36;not null"`
	CreatedAt      time.Time
}

func (idempotencyRecord) TableName() string { return "idempotency_keys" }

func toPropertyRecord(p *domain.Property) propertyRecord {
	return propertyRecord{
		PropertyID:     p.PropertyID,
		Name:           p.Name,
		TotalValuation: p.TotalValuation,
		MinimumTicket:  p.MinimumTicket,
		TotalShares:    p.TotalShares,
		PricePerShare:  p.PricePerShare,
		Dust:           p.Dust,
		Halted:         p.Halted,
		HaltReason:     p.HaltReason,
		CreatedAt:      p.CreatedAt,
	}
}

func (r propertyRecord) toDomain() *domain.Property {
	return &domain.Property{
		PropertyID:     r.PropertyID,
		Name:           r.Name,
		TotalValuation: r.TotalValuation,
		MinimumTicket:  r.MinimumTicket,
		TotalShares:    r.TotalShares,
		PricePerShare:  r.PricePerShare,
		Dust:           r.Dust,
		Halted:         r.Halted,
		HaltReason:     r.HaltReason,
		CreatedAt:      r.CreatedAt,
	}
}

func toOrderRecord(o *domain.Order) orderRecord {
	return orderRecord{
		Seq:               o.Seq,
		OrderID:           o.OrderID,
		PropertyID:        o.PropertyID,
		OwnerID:           o.OwnerID,
		Side:              string(o.Side),
		Type:              string(o.Type),
		LimitPrice:        o.LimitPrice,
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity,
		FilledValue:       o.FilledValue,
		Status:            string(o.Status),
		CancelReason:      o.CancelReason,
		IdempotencyKey:    o.IdempotencyKey,
		ExpiresAt:         o.ExpiresAt,
		CreatedAt:         o.CreatedAt,
		CancelledAt:       o.CancelledAt,
	}
}

func (r orderRecord) toDomain() *domain.Order {
	return &domain.Order{
		Seq:               r.Seq,
		OrderID:           r.OrderID,
		PropertyID:        r.PropertyID,
		OwnerID:           r.OwnerID,
		Side:              domain.OrderSide(r.Side),
		Type:              domain.OrderType(r.Type),
		LimitPrice:        r.LimitPrice,
		Quantity:          r.Quantity,
		FilledQuantity:    r.FilledQuantity,
		RemainingQuantity: r.RemainingQuantity,
		CancelledQuantity: r.CancelledQuantity,
		FilledValue:       r.FilledValue,
		Status:            domain.OrderStatus(r.Status),
		CancelReason:      r.CancelReason,
		IdempotencyKey:    r.IdempotencyKey,
		ExpiresAt:         r.ExpiresAt,
		CreatedAt:         r.CreatedAt,
		CancelledAt:       r.CancelledAt,
	}
}

func toTransactionRecord(t *domain.Transaction) transactionRecord {
	return transactionRecord{
		TransactionID: t.TransactionID,
		PropertyID:    t.PropertyID,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		BuyOrderID:    t.BuyOrderID,
		SellOrderID:   t.SellOrderID,
		Quantity:      t.Quantity,
		PricePerShare: t.PricePerShare,
		ExecutedAt:    t.ExecutedAt,
	}
}

func (r transactionRecord) toDomain() *domain.Transaction {
	return &domain.Transaction{
		Seq:           r.Seq,
		TransactionID: r.TransactionID,
		PropertyID:    r.PropertyID,
		BuyerID:       r.BuyerID,
		SellerID:      r.SellerID,
		BuyOrderID:    r.BuyOrderID,
		SellOrderID:   r.SellOrderID,
		Quantity:      r.Quantity,
		PricePerShare: r.PricePerShare,
		ExecutedAt:    r.ExecutedAt,
	}
}
