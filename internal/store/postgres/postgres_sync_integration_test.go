package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/store"
)

func TestMarkSyncedDiscardingHoldTransaction(t *testing.T) {
	databaseURL := os.Getenv("PUNTOVENTA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PUNTOVENTA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	producto := domain.ProductoSnapshot{
		Codigo:            "PROD-SYNC-IT",
		Nombre:            "Integration Brew",
		Factor:            decimal.NewFromInt(1),
		Precio:            decimal.RequireFromString("185.50"),
		PorcientoImpuesto: decimal.NewFromInt(18),
	}
	cart := []domain.CartLineItem{domain.NewCartLineItem(producto, decimal.NewFromInt(2))}

	held, err := s.CreateHeldCart(ctx, domain.HeldCart{Cart: cart})
	if err != nil {
		t.Fatalf("create held cart: %v", err)
	}
	order, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: cart, HoldID: held.ID})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM pending_orders WHERE id = $1`, order.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM held_carts WHERE id = $1`, held.ID)
	})

	at := time.Now().UTC()
	synced, err := s.MarkOrderSyncedDiscardingHold(ctx, order.ID, held.ID, at)
	if err != nil {
		t.Fatalf("mark synced discarding hold: %v", err)
	}
	if synced.Status != domain.StatusSynced || synced.SyncedAt == nil {
		t.Fatalf("order not flipped: %+v", synced)
	}
	if _, err := s.GetHeldCart(ctx, held.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("held cart should be gone, got %v", err)
	}

	// Repeating the flip must keep the original synced_at.
	again, err := s.MarkOrderSynced(ctx, order.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat mark synced: %v", err)
	}
	if !again.SyncedAt.Equal(*synced.SyncedAt) {
		t.Fatalf("repeat flip rewrote synced_at: %v != %v", again.SyncedAt, synced.SyncedAt)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status
		FROM pending_orders
		WHERE id = $1
	`, order.ID).Scan(&status); err != nil {
		t.Fatalf("query order status: %v", err)
	}
	if status != string(domain.StatusSynced) {
		t.Fatalf("expected synced row, got %s", status)
	}
}

func TestLatestProductSnapshotPicksMaxCapturedAt(t *testing.T) {
	databaseURL := os.Getenv("PUNTOVENTA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PUNTOVENTA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	newer := time.Now().UTC().Truncate(time.Microsecond)
	older := newer.Add(-48 * time.Hour)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_snapshots WHERE captured_at IN ($1, $2)`, newer, older)
	})

	if err := s.PutProductSnapshot(ctx, domain.ProductSnapshotRecord{
		Products:   []domain.ProductoSnapshot{{Codigo: "NEW-IT"}},
		CapturedAt: newer,
	}); err != nil {
		t.Fatalf("put newer snapshot: %v", err)
	}
	if err := s.PutProductSnapshot(ctx, domain.ProductSnapshotRecord{
		Products:   []domain.ProductoSnapshot{{Codigo: "OLD-IT"}},
		CapturedAt: older,
	}); err != nil {
		t.Fatalf("put older snapshot: %v", err)
	}

	latest, err := s.LatestProductSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if len(latest.Products) != 1 || latest.Products[0].Codigo != "NEW-IT" {
		t.Fatalf("expected the newest capture, got %+v", latest.Products)
	}
}
