package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidValuation         = errors.New("invalid_valuation")
	ErrInvalidTicket            = errors.New("invalid_ticket")
	ErrPropertyNotFound         = errors.New("property_not_found")
	ErrPropertyHalted           = errors.New("property_halted")
	ErrOrderNotFound            = errors.New("order_not_found")
	ErrOrderNotCancellable      = errors.New("order_not_cancellable")
	ErrOrderAlreadyFilled       = errors.New("order_already_filled")
	ErrInsufficientShares       = errors.New("insufficient_shares")
	ErrNoLiquidity              = errors.New("no_liquidity")
	ErrConcurrencyConflict      = errors.New("concurrency_conflict")
	ErrIdempotencyMismatch      = errors.New("idempotency_key_reused")
	ErrLedgerInvariantViolation = errors.New("ledger_invariant_violation")
	ErrWebhookNotFound          = errors.New("webhook_not_found")
	ErrAmountOverflow           = errors.New("amount_overflow")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvariantError describes a failed ledger consistency check for one
// property. It unwraps to ErrLedgerInvariantViolation.
type InvariantError struct {
	PropertyID string
	Detail     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for property %s: %s", e.PropertyID, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrLedgerInvariantViolation
}
