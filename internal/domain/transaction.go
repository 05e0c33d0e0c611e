package domain

import "time"

// Transaction is an immutable record of a settled trade. Seq is assigned
// by the store when the record is appended and is strictly increasing.
type Transaction struct {
	Seq           int64
	TransactionID string
	PropertyID    string
	BuyerID       string
	SellerID      string // PlatformOwnerID for primary issuance
	BuyOrderID    string
	SellOrderID   string
	Quantity      int64
	PricePerShare int64 // minor units
	ExecutedAt    time.Time
}

// Primary reports whether the shares came from the platform's unissued
// inventory.
func (t *Transaction) Primary() bool {
	return t.SellerID == PlatformOwnerID
}

// Amount returns Quantity × PricePerShare.
func (t *Transaction) Amount() int64 {
	return t.Quantity * t.PricePerShare
}
