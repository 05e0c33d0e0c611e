package domain

import (
	"testing"
	"time"
)

func newOpenOrder(qty int64) *Order {
	return &Order{
		Quantity:          qty,
		RemainingQuantity: qty,
		Status:            OrderStatusOpen,
	}
}

func TestOrder_AveragePrice_MultipleFills(t *testing.T) {
	// 7 @ 48000 + 3 @ 49000 = 336000 + 147000 = 483000 / 10 = 48300
	o := newOpenOrder(10)
	o.Fill(7, 48000)
	o.Fill(3, 49000)
	avg, ok := o.AveragePrice()
	if !ok {
		t.Fatal("AveragePrice() returned false, want true")
	}
	if avg != 48300 {
		t.Errorf("AveragePrice() = %d, want 48300", avg)
	}
	if o.Status != OrderStatusFilled {
		t.Errorf("Status = %s, want filled", o.Status)
	}
}

func TestOrder_AveragePrice_NoFills(t *testing.T) {
	o := newOpenOrder(5)
	if _, ok := o.AveragePrice(); ok {
		t.Error("AveragePrice() returned true, want false for no fills")
	}
}

func TestOrder_Fill_Partial(t *testing.T) {
	o := newOpenOrder(10)
	o.Fill(4, 100)
	if o.Status != OrderStatusPartiallyFilled {
		t.Errorf("Status = %s, want partially_filled", o.Status)
	}
	if o.RemainingQuantity != 6 || o.FilledQuantity != 4 {
		t.Errorf("remaining=%d filled=%d, want 6/4", o.RemainingQuantity, o.FilledQuantity)
	}
	if !o.Active() {
		t.Error("partially filled order should be active")
	}
}

func TestOrder_Cancel_AfterPartialFill(t *testing.T) {
	o := newOpenOrder(10)
	o.Fill(4, 100)
	now := time.Now()
	o.Cancel(CancelReasonRequested, now)

	if o.Status != OrderStatusCancelled {
		t.Errorf("Status = %s, want cancelled", o.Status)
	}
	if o.CancelledQuantity != 6 || o.RemainingQuantity != 0 {
		t.Errorf("cancelled=%d remaining=%d, want 6/0", o.CancelledQuantity, o.RemainingQuantity)
	}
	if o.CancelledAt == nil || !o.CancelledAt.Equal(now) {
		t.Error("CancelledAt not set")
	}
	if o.Active() {
		t.Error("cancelled order should not be active")
	}
}

func TestOrder_Clone_IsIndependent(t *testing.T) {
	o := newOpenOrder(10)
	c := o.Clone()
	c.Fill(10, 1)
	if o.RemainingQuantity != 10 {
		t.Errorf("original mutated through clone: remaining=%d", o.RemainingQuantity)
	}
}
