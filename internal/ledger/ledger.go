// Package ledger keeps the authoritative share balances of one property.
//
// Mutations go through a Tx overlay: nothing is visible on the Ledger
// until Commit, and a failed operation leaves both the Tx and the Ledger
// unchanged.
package ledger

import (
	"fmt"
	"sort"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Ledger holds every owner's position in a single property.
type Ledger struct {
	propertyID  string
	totalShares int64
	positions   map[string]domain.Position
}

// New builds a ledger from stored positions.
func New(property *domain.Property, positions []domain.Position) *Ledger {
	l := &Ledger{
		propertyID:  property.PropertyID,
		totalShares: property.TotalShares,
		positions:   make(map[string]domain.Position, len(positions)),
	}
	for _, p := range positions {
		l.positions[p.OwnerID] = p
	}
	return l
}

// Issue returns the opening position of a new listing: the platform owns
// every share.
func Issue(property *domain.Property) domain.Position {
	return domain.Position{
		PropertyID: property.PropertyID,
		OwnerID:    domain.PlatformOwnerID,
		Shares:     property.TotalShares,
	}
}

// Position returns the owner's position, zero-valued when the owner holds
// nothing.
func (l *Ledger) Position(ownerID string) domain.Position {
	if p, ok := l.positions[ownerID]; ok {
		return p
	}
	return domain.Position{PropertyID: l.propertyID, OwnerID: ownerID}
}

// Positions returns all positions sorted by owner ID.
func (l *Ledger) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}

// CheckConservation verifies sum(shares) == totalShares and that no
// balance is negative or over-reserved.
func (l *Ledger) CheckConservation() error {
	var sum int64
	for _, p := range l.Positions() {
		if p.Shares < 0 || p.Reserved < 0 {
			return &domain.InvariantError{
				PropertyID: l.propertyID,
				Detail:     fmt.Sprintf("owner %s has negative balance (shares=%d reserved=%d)", p.OwnerID, p.Shares, p.Reserved),
			}
		}
		if p.Reserved > p.Shares {
			return &domain.InvariantError{
				PropertyID: l.propertyID,
				Detail:     fmt.Sprintf("owner %s reserved %d of %d shares", p.OwnerID, p.Reserved, p.Shares),
			}
		}
		sum += p.Shares
	}
	if sum != l.totalShares {
		return &domain.InvariantError{
			PropertyID: l.propertyID,
			Detail:     fmt.Sprintf("sum of shares %d != total shares %d", sum, l.totalShares),
		}
	}
	return nil
}

// Begin starts a transaction against the ledger.
func (l *Ledger) Begin() *Tx {
	return &Tx{ledger: l, dirty: make(map[string]domain.Position)}
}

// Tx is an uncommitted set of position changes.
type Tx struct {
	ledger  *Ledger
	dirty   map[string]domain.Position
	touched []string
}

// Position returns the owner's position as seen inside the transaction.
func (tx *Tx) Position(ownerID string) domain.Position {
	if p, ok := tx.dirty[ownerID]; ok {
		return p
	}
	return tx.ledger.Position(ownerID)
}

func (tx *Tx) put(p domain.Position) {
	if _, ok := tx.dirty[p.OwnerID]; !ok {
		tx.touched = append(tx.touched, p.OwnerID)
	}
	tx.dirty[p.OwnerID] = p
}

// Reserve locks n of the owner's unencumbered shares.
func (tx *Tx) Reserve(ownerID string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("reserve: count must be positive, got %d", n)
	}
	p := tx.Position(ownerID)
	if p.Available() < n {
		return fmt.Errorf("%w: owner %s has %d unencumbered shares, needs %d",
			domain.ErrInsufficientShares, ownerID, p.Available(), n)
	}
	p.Reserved += n
	tx.put(p)
	return nil
}

// Release returns n reserved shares to the owner's unencumbered balance.
func (tx *Tx) Release(ownerID string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("release: count must be positive, got %d", n)
	}
	p := tx.Position(ownerID)
	if p.Reserved < n {
		return &domain.InvariantError{
			PropertyID: tx.ledger.propertyID,
			Detail:     fmt.Sprintf("release of %d exceeds %d reserved by %s", n, p.Reserved, ownerID),
		}
	}
	p.Reserved -= n
	tx.put(p)
	return nil
}

// Transfer moves n unencumbered shares between owners.
func (tx *Tx) Transfer(fromOwnerID, toOwnerID string, n int64) error {
	if err := checkTransfer(fromOwnerID, toOwnerID, n); err != nil {
		return err
	}
	from := tx.Position(fromOwnerID)
	if from.Available() < n {
		return fmt.Errorf("%w: owner %s has %d unencumbered shares, needs %d",
			domain.ErrInsufficientShares, fromOwnerID, from.Available(), n)
	}
	to := tx.Position(toOwnerID)
	from.Shares -= n
	to.Shares += n
	tx.put(from)
	tx.put(to)
	return nil
}

// TransferReserved moves n shares that fromOwnerID previously reserved,
// consuming the reservation.
func (tx *Tx) TransferReserved(fromOwnerID, toOwnerID string, n int64) error {
	if err := checkTransfer(fromOwnerID, toOwnerID, n); err != nil {
		return err
	}
	from := tx.Position(fromOwnerID)
	if from.Reserved < n {
		return &domain.InvariantError{
			PropertyID: tx.ledger.propertyID,
			Detail:     fmt.Sprintf("settlement of %d exceeds %d reserved by %s", n, from.Reserved, fromOwnerID),
		}
	}
	to := tx.Position(toOwnerID)
	from.Shares -= n
	from.Reserved -= n
	to.Shares += n
	tx.put(from)
	tx.put(to)
	return nil
}

func checkTransfer(from, to string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("transfer: count must be positive, got %d", n)
	}
	if from == to {
		return fmt.Errorf("transfer: source and destination are both %s", from)
	}
	return nil
}

// Changes returns the modified positions in the order they were first
// touched.
func (tx *Tx) Changes() []domain.Position {
	out := make([]domain.Position, 0, len(tx.touched))
	for _, owner := range tx.touched {
		out = append(out, tx.dirty[owner])
	}
	return out
}

// Commit publishes the transaction's positions to the ledger.
func (tx *Tx) Commit() {
	for owner, p := range tx.dirty {
		tx.ledger.positions[owner] = p
	}
	tx.dirty = make(map[string]domain.Position)
	tx.touched = nil
}
