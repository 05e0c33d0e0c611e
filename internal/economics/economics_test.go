package economics

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/efreitasn/equityledger/internal/domain"
)

func TestCompute(t *testing.T) {
	policy := Policy{MinShares: 100, MaxShares: 10_000}
	tests := []struct {
		name      string
		valuation int64
		ticket    int64
		wantShare int64
		wantPrice int64
		wantDust  int64
		clamped   bool
	}{
		// ₹50 Cr valuation, ₹50,000 ticket, in paise.
		{"fifty crore example", 50_00_00_000_00, 50_000_00, 10_000, 50_000_00, 0, false},
		{"rounds half up", 10_450, 100, 105, 99, 55, false},
		{"rounds down below half", 1_044, 10, 104, 10, 4, false},
		{"clamped to min", 10_000, 1_000, 100, 100, 0, true},
		{"clamped to max", 1_000_000_000, 10, 10_000, 100_000, 0, true},
		{"ticket larger than valuation", 1_000, 5_000, 100, 10, 0, true},
		{"dust from clamped count", 1_000_003, 10_000, 100, 10_000, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.valuation, tt.ticket, policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.TotalShares != tt.wantShare {
				t.Errorf("TotalShares = %d, want %d", got.TotalShares, tt.wantShare)
			}
			if got.PricePerShare != tt.wantPrice {
				t.Errorf("PricePerShare = %d, want %d", got.PricePerShare, tt.wantPrice)
			}
			if got.Dust != tt.wantDust {
				t.Errorf("Dust = %d, want %d", got.Dust, tt.wantDust)
			}
			if got.Clamped != tt.clamped {
				t.Errorf("Clamped = %v, want %v", got.Clamped, tt.clamped)
			}
		})
	}
}

func TestCompute_RoundingNearInt64Max(t *testing.T) {
	policy := Policy{MinShares: 1, MaxShares: 10}
	tests := []struct {
		name      string
		valuation int64
		wantNaive int64
	}{
		{"remainder above half", math.MaxInt64/2 + 10, 1},
		{"remainder below half", math.MaxInt64/2 - 10, 0},
		{"remainder just under ticket", math.MaxInt64 - 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.valuation, math.MaxInt64, policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.NaiveShares != tt.wantNaive {
				t.Errorf("NaiveShares = %d, want %d", got.NaiveShares, tt.wantNaive)
			}
			if got.TotalShares != 1 || got.PricePerShare != tt.valuation || got.Dust != 0 {
				t.Errorf("got %+v, want one share at the full valuation", got)
			}
			if got.Clamped != (tt.wantNaive == 0) {
				t.Errorf("Clamped = %v with naive %d", got.Clamped, got.NaiveShares)
			}
		})
	}
}

func TestCompute_InvalidInput(t *testing.T) {
	policy := DefaultPolicy
	tests := []struct {
		name      string
		valuation int64
		ticket    int64
		want      error
	}{
		{"zero valuation", 0, 100, domain.ErrInvalidValuation},
		{"negative valuation", -1, 100, domain.ErrInvalidValuation},
		{"zero ticket", 100_000, 0, domain.ErrInvalidTicket},
		{"negative ticket", 100_000, -5, domain.ErrInvalidTicket},
		{"valuation below min shares", 99, 1, domain.ErrInvalidValuation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.valuation, tt.ticket, policy)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := (Policy{MinShares: 0, MaxShares: 10}).Validate(); err == nil {
		t.Error("expected error for min shares 0")
	}
	if err := (Policy{MinShares: 10, MaxShares: 5}).Validate(); err == nil {
		t.Error("expected error for max < min")
	}
	if err := DefaultPolicy.Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}

func TestConverter_LogsClamping(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := NewConverter(DefaultPolicy, logger)

	econ, err := c.Compute(10_000, 1_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !econ.Clamped {
		t.Fatal("expected clamped economics")
	}
	if !strings.Contains(buf.String(), "share count clamped by policy") {
		t.Errorf("expected clamp log line, got %q", buf.String())
	}
}

func TestConverter_NoLogWhenWithinBounds(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := NewConverter(DefaultPolicy, logger)

	if _, err := c.Compute(50_00_00_000_00, 50_000_00); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %q", buf.String())
	}
}
