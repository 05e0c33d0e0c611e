package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/equityledger/internal/domain"
)

func TestWriteJSON(t *testing.T) {
	type listing struct {
		PropertyID    string `json:"property_id"`
		PricePerShare int64  `json:"price_per_share"`
		LastPrice     *int64 `json:"last_price"`
	}

	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, listing{PropertyID: "p1", PricePerShare: 500_000})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["property_id"] != "p1" || raw["price_per_share"] != float64(500_000) {
		t.Errorf("unexpected body %v", raw)
	}
	if v, ok := raw["last_price"]; !ok || v != nil {
		t.Errorf("last_price should be present and null, got %v (present=%v)", v, ok)
	}
}

func TestWriteError(t *testing.T) {
	for _, tc := range []struct {
		status  int
		code    string
		message string
	}{
		{http.StatusBadRequest, "invalid_request", "missing required field"},
		{http.StatusNotFound, "property_not_found", "property_not_found"},
		{http.StatusLocked, "property_halted", "property_halted"},
	} {
		w := httptest.NewRecorder()
		WriteError(w, tc.status, tc.code, tc.message)

		if w.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.code, w.Code, tc.status)
		}
		var resp errorResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("%s: decode: %v", tc.code, err)
		}
		if resp.Error != tc.code || resp.Message != tc.message {
			t.Errorf("body = %+v, want {%s %s}", resp, tc.code, tc.message)
		}
	}
}

func TestParseJSON(t *testing.T) {
	type body struct {
		Name     string `json:"name"`
		Quantity int64  `json:"quantity"`
	}
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     bool
	}{
		{"valid", "application/json", `{"name":"harbour","quantity":42}`, false},
		{"charset suffix", "application/json; charset=utf-8", `{"name":"harbour"}`, false},
		{"missing content type", "", `{"name":"harbour"}`, true},
		{"wrong content type", "text/plain", `{"name":"harbour"}`, true},
		{"malformed", "application/json", `{invalid json}`, true},
		{"unknown field", "application/json", `{"name":"harbour","price":1}`, true},
		{"empty body", "application/json", ``, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			if tc.contentType != "" {
				r.Header.Set("Content-Type", tc.contentType)
			}
			var got body
			err := ParseJSON(r, &got)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, decoded %+v", got)
				}
				if !strings.Contains(err.Error(), "Content-Type: application/json") {
					t.Errorf("error %q should name the expected content type", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != "harbour" {
				t.Errorf("name = %q, want harbour", got.Name)
			}
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &domain.ValidationError{Message: "quantity must be positive"}, http.StatusBadRequest, "validation_error"},
		{"invalid valuation", domain.ErrInvalidValuation, http.StatusBadRequest, "invalid_valuation"},
		{"property not found", domain.ErrPropertyNotFound, http.StatusNotFound, "property_not_found"},
		{"wrapped order not found", fmt.Errorf("cancel: %w", domain.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
		{"webhook not found", domain.ErrWebhookNotFound, http.StatusNotFound, "webhook_not_found"},
		{"insufficient shares", domain.ErrInsufficientShares, http.StatusConflict, "insufficient_shares"},
		{"already filled", domain.ErrOrderAlreadyFilled, http.StatusConflict, "order_already_filled"},
		{"no liquidity", domain.ErrNoLiquidity, http.StatusConflict, "no_liquidity"},
		{"conflict", domain.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
		{"idempotency mismatch", domain.ErrIdempotencyMismatch, http.StatusUnprocessableEntity, "idempotency_key_reused"},
		{"amount overflow", fmt.Errorf("%w: 95 shares at 4611686018427387903", domain.ErrAmountOverflow), http.StatusUnprocessableEntity, "amount_overflow"},
		{"halted", domain.ErrPropertyHalted, http.StatusLocked, "property_halted"},
		{"invariant", domain.ErrLedgerInvariantViolation, http.StatusInternalServerError, "ledger_invariant_violation"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "request_cancelled"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			writeServiceError(w, r, logger, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp errorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	t.Run("default when absent", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		n, err := queryInt(r, "depth", 10)
		if err != nil || n != 10 {
			t.Fatalf("queryInt = %d, %v, want 10, nil", n, err)
		}
	})

	t.Run("parses value", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?depth=3", nil)
		n, err := queryInt(r, "depth", 10)
		if err != nil || n != 3 {
			t.Fatalf("queryInt = %d, %v, want 3, nil", n, err)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?depth=abc", nil)
		_, err := queryInt(r, "depth", 10)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.FixedZone("IST", 5*3600+1800))
	if got := formatTime(ts); got != "2025-03-14T03:56:53Z" {
		t.Errorf("formatTime = %q, want %q", got, "2025-03-14T03:56:53Z")
	}
	if formatTimePtr(nil) != nil {
		t.Error("formatTimePtr(nil) should be nil")
	}
}
