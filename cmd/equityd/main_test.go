package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/efreitasn/equityledger/internal/config"
	"github.com/efreitasn/equityledger/internal/domain"
	"github.com/efreitasn/equityledger/internal/service"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPreviewCommand(t *testing.T) {
	t.Setenv("MIN_SHARES", "100")
	t.Setenv("MAX_SHARES", "10000")

	out, err := runCmd(t, "preview", "--valuation", "1000001", "--ticket", "1000")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	for _, want := range []string{"total shares:    1000", "price per share: 10.00", "dust:            0.01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "clamped") {
		t.Errorf("unexpected clamping:\n%s", out)
	}
}

func TestPreviewCommand_Clamped(t *testing.T) {
	t.Setenv("MIN_SHARES", "100")
	t.Setenv("MAX_SHARES", "10000")

	out, err := runCmd(t, "preview", "--valuation", "10000000", "--ticket", "100")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "clamped:         yes (naive share count 100000)") {
		t.Errorf("expected clamping note:\n%s", out)
	}
}

func TestPreviewCommand_InvalidValuation(t *testing.T) {
	if _, err := runCmd(t, "preview", "--valuation", "0", "--ticket", "100"); err == nil {
		t.Fatal("expected error for zero valuation")
	}
	if _, err := runCmd(t, "preview", "--ticket", "100"); err == nil {
		t.Fatal("expected error for missing --valuation")
	}
}

func TestHealthcheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	if err := healthcheck(ok.URL + "/healthz"); err != nil {
		t.Fatalf("healthy server reported %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := healthcheck(down.URL + "/healthz"); err == nil {
		t.Fatal("expected error for unhealthy server")
	}
}

func TestReconcileCommand(t *testing.T) {
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("REDIS_URL", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	listing, err := a.properties.Create(ctx, service.CreatePropertyRequest{
		Name:           "Harbour View",
		TotalValuation: 5_000_000_000,
		MinimumTicket:  500_000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.orders.Submit(ctx, service.SubmitOrderRequest{
		PropertyID: listing.Property.PropertyID,
		OwnerID:    "alice",
		Side:       domain.OrderSideBuy,
		Quantity:   10,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := runCmd(t, "reconcile")
	if err != nil {
		t.Fatalf("reconcile: %v\n%s", err, out)
	}
	if !strings.Contains(out, listing.Property.PropertyID+": ok (1 transactions)") {
		t.Errorf("expected ok report:\n%s", out)
	}
	if !strings.Contains(out, "1 properties checked, 0 inconsistent") {
		t.Errorf("expected summary:\n%s", out)
	}

	out, err = runCmd(t, "reconcile", "--property", "missing")
	if err == nil {
		t.Fatalf("expected error for unknown property:\n%s", out)
	}
}
