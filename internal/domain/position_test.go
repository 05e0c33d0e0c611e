package domain

import "testing"

func TestPosition_Available(t *testing.T) {
	p := Position{Shares: 40, Reserved: 20}
	if got := p.Available(); got != 20 {
		t.Errorf("Available() = %d, want 20", got)
	}
}

func TestTransaction_PrimaryAndAmount(t *testing.T) {
	tx := &Transaction{SellerID: PlatformOwnerID, Quantity: 10, PricePerShare: 5000000}
	if !tx.Primary() {
		t.Error("Primary() = false for platform seller")
	}
	if got := tx.Amount(); got != 50000000 {
		t.Errorf("Amount() = %d, want 50000000", got)
	}
}
