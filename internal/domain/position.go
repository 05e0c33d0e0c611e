package domain

// Position is one owner's share balance in one property. Reserved counts
// shares locked by open sell orders.
type Position struct {
	PropertyID string
	OwnerID    string
	Shares     int64
	Reserved   int64
}

// Available returns the owner's unencumbered share count.
func (p Position) Available() int64 {
	return p.Shares - p.Reserved
}
