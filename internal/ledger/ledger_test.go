package ledger

import (
	"errors"
	"testing"

	"github.com/efreitasn/equityledger/internal/domain"
)

func newTestLedger(total int64) (*Ledger, *domain.Property) {
	p := &domain.Property{PropertyID: "prop1", TotalShares: total}
	return New(p, []domain.Position{Issue(p)}), p
}

func TestIssue_PlatformOwnsAllShares(t *testing.T) {
	l, _ := newTestLedger(10_000)
	if got := l.Position(domain.PlatformOwnerID).Shares; got != 10_000 {
		t.Errorf("platform shares = %d, want 10000", got)
	}
	if err := l.CheckConservation(); err != nil {
		t.Errorf("unexpected invariant error: %v", err)
	}
}

func TestTransfer_PrimaryIssuance(t *testing.T) {
	l, _ := newTestLedger(10_000)
	tx := l.Begin()
	if err := tx.Transfer(domain.PlatformOwnerID, "alice", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nothing visible before commit.
	if got := l.Position("alice").Shares; got != 0 {
		t.Errorf("alice shares before commit = %d, want 0", got)
	}

	tx.Commit()
	if got := l.Position(domain.PlatformOwnerID).Shares; got != 9_990 {
		t.Errorf("platform shares = %d, want 9990", got)
	}
	if got := l.Position("alice").Shares; got != 10 {
		t.Errorf("alice shares = %d, want 10", got)
	}
	if err := l.CheckConservation(); err != nil {
		t.Errorf("unexpected invariant error: %v", err)
	}
}

func TestTransfer_InsufficientUnencumbered(t *testing.T) {
	l, _ := newTestLedger(100)
	tx := l.Begin()
	if err := tx.Transfer(domain.PlatformOwnerID, "alice", 40); err != nil {
		t.Fatal(err)
	}
	tx.Commit()

	tx = l.Begin()
	if err := tx.Reserve("alice", 30); err != nil {
		t.Fatal(err)
	}
	err := tx.Transfer("alice", "bob", 20)
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
	// The failed transfer must not have touched bob.
	if got := tx.Position("bob").Shares; got != 0 {
		t.Errorf("bob shares = %d, want 0", got)
	}
}

func TestReserve_SecondSellExceedsBalance(t *testing.T) {
	l, _ := newTestLedger(100)
	tx := l.Begin()
	_ = tx.Transfer(domain.PlatformOwnerID, "alice", 40)
	tx.Commit()

	tx = l.Begin()
	if err := tx.Reserve("alice", 20); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := tx.Reserve("alice", 30); !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("second reserve err = %v, want ErrInsufficientShares", err)
	}
	if got := tx.Position("alice").Reserved; got != 20 {
		t.Errorf("reserved = %d, want 20", got)
	}
}

func TestRelease(t *testing.T) {
	l, _ := newTestLedger(100)
	tx := l.Begin()
	_ = tx.Reserve(domain.PlatformOwnerID, 60)
	if err := tx.Release(domain.PlatformOwnerID, 25); err != nil {
		t.Fatal(err)
	}
	tx.Commit()
	if got := l.Position(domain.PlatformOwnerID).Reserved; got != 35 {
		t.Errorf("reserved = %d, want 35", got)
	}

	tx = l.Begin()
	err := tx.Release(domain.PlatformOwnerID, 36)
	if !errors.Is(err, domain.ErrLedgerInvariantViolation) {
		t.Errorf("over-release err = %v, want ErrLedgerInvariantViolation", err)
	}
}

func TestTransferReserved(t *testing.T) {
	l, _ := newTestLedger(100)
	tx := l.Begin()
	_ = tx.Reserve(domain.PlatformOwnerID, 100)
	if err := tx.TransferReserved(domain.PlatformOwnerID, "alice", 10); err != nil {
		t.Fatal(err)
	}
	tx.Commit()

	p := l.Position(domain.PlatformOwnerID)
	if p.Shares != 90 || p.Reserved != 90 {
		t.Errorf("platform = %+v, want shares=90 reserved=90", p)
	}
	if err := l.CheckConservation(); err != nil {
		t.Error(err)
	}
}

func TestTransfer_RejectsSelfAndNonPositive(t *testing.T) {
	l, _ := newTestLedger(100)
	tx := l.Begin()
	if err := tx.Transfer(domain.PlatformOwnerID, domain.PlatformOwnerID, 1); err == nil {
		t.Error("expected error for self transfer")
	}
	if err := tx.Transfer(domain.PlatformOwnerID, "alice", 0); err == nil {
		t.Error("expected error for zero transfer")
	}
	if len(tx.Changes()) != 0 {
		t.Errorf("failed operations produced changes: %+v", tx.Changes())
	}
}

func TestCheckConservation_DetectsMismatch(t *testing.T) {
	p := &domain.Property{PropertyID: "prop1", TotalShares: 100}
	l := New(p, []domain.Position{
		{PropertyID: "prop1", OwnerID: domain.PlatformOwnerID, Shares: 90},
		{PropertyID: "prop1", OwnerID: "alice", Shares: 9},
	})
	err := l.CheckConservation()
	var inv *domain.InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want *InvariantError", err)
	}
	if inv.PropertyID != "prop1" {
		t.Errorf("PropertyID = %q, want prop1", inv.PropertyID)
	}
}

func TestChanges_TouchOrder(t *testing.T) {
	l, _ := newTestLedger(100)
	tx := l.Begin()
	_ = tx.Transfer(domain.PlatformOwnerID, "bob", 5)
	_ = tx.Transfer(domain.PlatformOwnerID, "alice", 5)

	changes := tx.Changes()
	if len(changes) != 3 {
		t.Fatalf("len(changes) = %d, want 3", len(changes))
	}
	want := []string{domain.PlatformOwnerID, "bob", "alice"}
	for i, c := range changes {
		if c.OwnerID != want[i] {
			t.Errorf("changes[%d].OwnerID = %s, want %s", i, c.OwnerID, want[i])
		}
	}
	if changes[0].Shares != 90 {
		t.Errorf("platform shares in changes = %d, want 90", changes[0].Shares)
	}
}
