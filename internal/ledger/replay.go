package ledger

import (
	"fmt"
	"sort"

	"github.com/efreitasn/equityledger/internal/domain"
)

// Replay rebuilds share balances of one property from its transaction
// log. The platform starts with every share; reservations are not part of
// the log and come back as zero.
func Replay(property *domain.Property, txs []*domain.Transaction) []domain.Position {
	shares := map[string]int64{domain.PlatformOwnerID: property.TotalShares}
	for _, t := range txs {
		if t.PropertyID != property.PropertyID {
			continue
		}
		shares[t.SellerID] -= t.Quantity
		shares[t.BuyerID] += t.Quantity
	}

	out := make([]domain.Position, 0, len(shares))
	for owner, n := range shares {
		if n == 0 && owner != domain.PlatformOwnerID {
			continue
		}
		out = append(out, domain.Position{PropertyID: property.PropertyID, OwnerID: owner, Shares: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}

// Discrepancy is a difference between the stored ledger and the replayed
// transaction log.
type Discrepancy struct {
	OwnerID  string
	Stored   int64
	Replayed int64
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("owner %s: stored %d, replayed %d", d.OwnerID, d.Stored, d.Replayed)
}

// Diff compares stored positions with replayed ones on share counts.
func Diff(stored, replayed []domain.Position) []Discrepancy {
	a := make(map[string]int64, len(stored))
	for _, p := range stored {
		a[p.OwnerID] = p.Shares
	}
	b := make(map[string]int64, len(replayed))
	for _, p := range replayed {
		b[p.OwnerID] = p.Shares
	}

	owners := make(map[string]struct{}, len(a)+len(b))
	for o := range a {
		owners[o] = struct{}{}
	}
	for o := range b {
		owners[o] = struct{}{}
	}
	keys := make([]string, 0, len(owners))
	for o := range owners {
		keys = append(keys, o)
	}
	sort.Strings(keys)

	var out []Discrepancy
	for _, o := range keys {
		if a[o] != b[o] {
			out = append(out, Discrepancy{OwnerID: o, Stored: a[o], Replayed: b[o]})
		}
	}
	return out
}
