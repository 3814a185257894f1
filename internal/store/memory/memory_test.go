package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/store"
)

func testCart() []domain.CartLineItem {
	producto := domain.ProductoSnapshot{
		Codigo:            "PROD-001",
		Nombre:            "Cafe Molido 1lb",
		Factor:            decimal.NewFromInt(1),
		Precio:            decimal.RequireFromString("185.50"),
		PorcientoImpuesto: decimal.NewFromInt(18),
	}
	return []domain.CartLineItem{domain.NewCartLineItem(producto, decimal.NewFromInt(2))}
}

func TestHeldCartRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.CreateHeldCart(ctx, domain.HeldCart{
		Cart:    testCart(),
		Cliente: &domain.ClienteSnapshot{Codigo: "CLI-7", Nombre: "Maria Perez"},
	})
	if err != nil {
		t.Fatalf("create held cart: %v", err)
	}
	if saved.ID == "" || saved.Status != domain.StatusHeld {
		t.Fatalf("unexpected saved record: %+v", saved)
	}

	loaded, err := s.GetHeldCart(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get held cart: %v", err)
	}
	if len(loaded.Cart) != 1 || !loaded.Cart[0].Subtotal.Equal(saved.Cart[0].Subtotal) {
		t.Fatalf("cart did not survive round trip: %+v", loaded.Cart)
	}
	if loaded.Cliente == nil || loaded.Cliente.Nombre != "Maria Perez" {
		t.Fatalf("cliente did not survive round trip: %+v", loaded.Cliente)
	}
}

func TestCreateHeldCartRejectsEmptyCart(t *testing.T) {
	s := New()

	if _, err := s.CreateHeldCart(context.Background(), domain.HeldCart{}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestListHeldCartsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := range 3 {
		_, err := s.CreateHeldCart(ctx, domain.HeldCart{
			Cart:      testCart(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create held cart %d: %v", i, err)
		}
	}

	helds, err := s.ListHeldCarts(ctx, 0)
	if err != nil {
		t.Fatalf("list held carts: %v", err)
	}
	if len(helds) != 3 {
		t.Fatalf("expected 3 held carts, got %d", len(helds))
	}
	for i := 1; i < len(helds); i++ {
		if helds[i].CreatedAt.After(helds[i-1].CreatedAt) {
			t.Fatalf("held carts not newest first: %v before %v", helds[i-1].CreatedAt, helds[i].CreatedAt)
		}
	}
}

func TestDeleteHeldCartMissing(t *testing.T) {
	s := New()

	if err := s.DeleteHeldCart(context.Background(), "hold_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestProductSnapshotIgnoresInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	newer := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-48 * time.Hour)

	// Newest written first; an insertion-ordered lookup would return the
	// stale snapshot here.
	if err := s.PutProductSnapshot(ctx, domain.ProductSnapshotRecord{
		Products:   []domain.ProductoSnapshot{{Codigo: "NEW"}},
		CapturedAt: newer,
	}); err != nil {
		t.Fatalf("put newer snapshot: %v", err)
	}
	if err := s.PutProductSnapshot(ctx, domain.ProductSnapshotRecord{
		Products:   []domain.ProductoSnapshot{{Codigo: "OLD"}},
		CapturedAt: older,
	}); err != nil {
		t.Fatalf("put older snapshot: %v", err)
	}

	latest, err := s.LatestProductSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if !latest.CapturedAt.Equal(newer) || latest.Products[0].Codigo != "NEW" {
		t.Fatalf("expected the newest capture, got %+v", latest)
	}
}

func TestLatestProductSnapshotEmpty(t *testing.T) {
	s := New()

	if _, err := s.LatestProductSnapshot(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingOrderRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: testCart()})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}
	if saved.Status != domain.StatusPendingSync || saved.SyncedAt != nil {
		t.Fatalf("new order not pending-sync: %+v", saved)
	}

	loaded, err := s.GetPendingOrder(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get pending order: %v", err)
	}
	if loaded.ID != saved.ID || len(loaded.Cart) != 1 {
		t.Fatalf("order did not survive round trip: %+v", loaded)
	}
}

func TestListPendingOrdersOldestFirstAndFiltered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ids := make([]string, 0, 3)
	for i := range 3 {
		saved, err := s.CreatePendingOrder(ctx, domain.PendingOrder{
			Cart:      testCart(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create pending order %d: %v", i, err)
		}
		ids = append(ids, saved.ID)
	}
	if _, err := s.MarkOrderSynced(ctx, ids[1], base.Add(time.Hour)); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	orders, err := s.ListPendingOrders(ctx, 0)
	if err != nil {
		t.Fatalf("list pending orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected synced order filtered out, got %d orders", len(orders))
	}
	if orders[0].ID != ids[0] || orders[1].ID != ids[2] {
		t.Fatalf("orders not oldest first: %s, %s", orders[0].ID, orders[1].ID)
	}
}

func TestMarkOrderSyncedIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: testCart()})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	synced, err := s.MarkOrderSynced(ctx, saved.ID, first)
	if err != nil {
		t.Fatalf("first mark synced: %v", err)
	}
	if synced.Status != domain.StatusSynced || synced.SyncedAt == nil || !synced.SyncedAt.Equal(first) {
		t.Fatalf("unexpected synced record: %+v", synced)
	}

	again, err := s.MarkOrderSynced(ctx, saved.ID, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second mark synced: %v", err)
	}
	if !again.SyncedAt.Equal(first) {
		t.Fatalf("repeat mark must keep the first synced_at, got %v", again.SyncedAt)
	}
}

func TestMarkOrderSyncedMissing(t *testing.T) {
	s := New()

	if _, err := s.MarkOrderSynced(context.Background(), "order_missing", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOrderSyncedDiscardingHoldIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()

	held, err := s.CreateHeldCart(ctx, domain.HeldCart{Cart: testCart()})
	if err != nil {
		t.Fatalf("create held cart: %v", err)
	}
	order, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: held.Cart, HoldID: held.ID})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}

	synced, err := s.MarkOrderSyncedDiscardingHold(ctx, order.ID, held.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("mark synced discarding hold: %v", err)
	}
	if synced.Status != domain.StatusSynced {
		t.Fatalf("order not synced: %+v", synced)
	}
	if _, err := s.GetHeldCart(ctx, held.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("held cart should be gone, got %v", err)
	}
}

func TestPruneSyncedOrders(t *testing.T) {
	s := New()
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	old, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: testCart()})
	if err != nil {
		t.Fatalf("create old order: %v", err)
	}
	if _, err := s.MarkOrderSynced(ctx, old.ID, cutoff.Add(-time.Hour)); err != nil {
		t.Fatalf("mark old synced: %v", err)
	}
	recent, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: testCart()})
	if err != nil {
		t.Fatalf("create recent order: %v", err)
	}
	if _, err := s.MarkOrderSynced(ctx, recent.ID, cutoff.Add(time.Hour)); err != nil {
		t.Fatalf("mark recent synced: %v", err)
	}
	stillPending, err := s.CreatePendingOrder(ctx, domain.PendingOrder{Cart: testCart()})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}

	pruned, err := s.PruneSyncedOrders(ctx, cutoff)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
	if _, err := s.GetPendingOrder(ctx, old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old synced order should be pruned, got %v", err)
	}
	if _, err := s.GetPendingOrder(ctx, recent.ID); err != nil {
		t.Fatalf("recent synced order must survive: %v", err)
	}
	if _, err := s.GetPendingOrder(ctx, stillPending.ID); err != nil {
		t.Fatalf("pending order must survive: %v", err)
	}
}

func TestStoredRecordsAreIsolatedFromCallers(t *testing.T) {
	s := New()
	ctx := context.Background()

	cart := testCart()
	saved, err := s.CreateHeldCart(ctx, domain.HeldCart{Cart: cart})
	if err != nil {
		t.Fatalf("create held cart: %v", err)
	}

	// Mutating the caller's slice after the write must not change the record.
	cart[0].SetCantidad(decimal.NewFromInt(99))

	loaded, err := s.GetHeldCart(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get held cart: %v", err)
	}
	if loaded.Cart[0].Cantidad.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("caller mutation leaked into the store")
	}
}
