package domain

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "share_count must be a positive integer"}
	if err.Error() != "share_count must be a positive integer" {
		t.Errorf("Error() = %q, want %q", err.Error(), "share_count must be a positive integer")
	}
}

func TestInvariantError_UnwrapsToSentinel(t *testing.T) {
	var err error = &InvariantError{PropertyID: "p1", Detail: "sum 99 != total 100"}
	if !errors.Is(err, ErrLedgerInvariantViolation) {
		t.Error("InvariantError should unwrap to ErrLedgerInvariantViolation")
	}
	var inv *InvariantError
	if !errors.As(err, &inv) || inv.PropertyID != "p1" {
		t.Errorf("errors.As failed or wrong property: %+v", inv)
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidValuation,
		ErrInvalidTicket,
		ErrPropertyNotFound,
		ErrPropertyHalted,
		ErrOrderNotFound,
		ErrOrderNotCancellable,
		ErrOrderAlreadyFilled,
		ErrInsufficientShares,
		ErrNoLiquidity,
		ErrConcurrencyConflict,
		ErrIdempotencyMismatch,
		ErrLedgerInvariantViolation,
		ErrWebhookNotFound,
		ErrAmountOverflow,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
