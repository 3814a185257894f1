package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/store"
	"puntoventa/terminal/internal/xid"
)

// Store keeps all three collections in process memory. It is the session
// fallback when the durable store cannot be opened, and the fixture for tests.
type Store struct {
	mu            sync.RWMutex
	heldCartsByID map[string]domain.HeldCart
	snapshots     []domain.ProductSnapshotRecord
	ordersByID    map[string]domain.PendingOrder
}

func New() *Store {
	return &Store{
		heldCartsByID: make(map[string]domain.HeldCart),
		snapshots:     make([]domain.ProductSnapshotRecord, 0, 4),
		ordersByID:    make(map[string]domain.PendingOrder),
	}
}

func (s *Store) CreateHeldCart(_ context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if len(held.Cart) == 0 {
		return nil, store.ErrInvalidRecord
	}
	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.CreatedAt.IsZero() {
		held.CreatedAt = time.Now().UTC()
	}
	held.Status = domain.StatusHeld
	held.Cart = domain.CloneCart(held.Cart)
	held.Cliente = domain.CloneCliente(held.Cliente)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.heldCartsByID[held.ID] = held
	saved := cloneHeldCart(held)
	return &saved, nil
}

func (s *Store) GetHeldCart(_ context.Context, holdID string) (*domain.HeldCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held, exists := s.heldCartsByID[holdID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := cloneHeldCart(held)
	return &copied, nil
}

func (s *Store) ListHeldCarts(_ context.Context, limit int) ([]domain.HeldCart, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	helds := make([]domain.HeldCart, 0, len(s.heldCartsByID))
	for _, held := range s.heldCartsByID {
		// Only held records should ever reach this collection; the filter
		// protects against partially written records from a crash mid-write.
		if held.Status != domain.StatusHeld {
			continue
		}
		helds = append(helds, cloneHeldCart(held))
	}

	slices.SortFunc(helds, func(a, b domain.HeldCart) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(helds) > limit {
		helds = helds[:limit]
	}
	return helds, nil
}

func (s *Store) DeleteHeldCart(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.heldCartsByID[holdID]; !exists {
		return store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	return nil
}

func (s *Store) PutProductSnapshot(_ context.Context, snapshot domain.ProductSnapshotRecord) error {
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now().UTC()
	}
	snapshot.Products = slices.Clone(snapshot.Products)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

// LatestProductSnapshot selects by max captured-at timestamp, never by
// insertion order, so an older snapshot can never shadow a newer one.
func (s *Store) LatestProductSnapshot(_ context.Context) (*domain.ProductSnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ProductSnapshotRecord
	for i := range s.snapshots {
		if latest == nil || s.snapshots[i].CapturedAt.After(latest.CapturedAt) {
			latest = &s.snapshots[i]
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	copied := *latest
	copied.Products = slices.Clone(latest.Products)
	return &copied, nil
}

func (s *Store) CreatePendingOrder(_ context.Context, order domain.PendingOrder) (*domain.PendingOrder, error) {
	if len(order.Cart) == 0 {
		return nil, store.ErrInvalidRecord
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.StatusPendingSync
	order.SyncedAt = nil
	order.Cart = domain.CloneCart(order.Cart)
	order.Cliente = domain.CloneCliente(order.Cliente)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ordersByID[order.ID] = order
	saved := clonePendingOrder(order)
	return &saved, nil
}

func (s *Store) GetPendingOrder(_ context.Context, orderID string) (*domain.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := clonePendingOrder(order)
	return &copied, nil
}

func (s *Store) ListPendingOrders(_ context.Context, limit int) ([]domain.PendingOrder, error) {
	if limit < 1 {
		limit = 500
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PendingOrder, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if order.Status != domain.StatusPendingSync {
			continue
		}
		orders = append(orders, clonePendingOrder(order))
	}

	// Oldest first so a sweep submits orders in the sequence the register
	// produced them.
	slices.SortFunc(orders, func(a, b domain.PendingOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) MarkOrderSynced(_ context.Context, orderID string, at time.Time) (*domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.markSyncedLocked(orderID, at)
}

// MarkOrderSyncedDiscardingHold flips the order and removes its originating
// held cart under the same lock, so a crash can never observe one without
// the other.
func (s *Store) MarkOrderSyncedDiscardingHold(_ context.Context, orderID string, holdID string, at time.Time) (*domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.markSyncedLocked(orderID, at)
	if err != nil {
		return nil, err
	}
	delete(s.heldCartsByID, holdID)
	return order, nil
}

func (s *Store) markSyncedLocked(orderID string, at time.Time) (*domain.PendingOrder, error) {
	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.StatusSynced {
		if !domain.CanTransition(order.Status, domain.StatusSynced) {
			return nil, store.ErrInvalidRecord
		}
		at = at.UTC()
		order.Status = domain.StatusSynced
		order.SyncedAt = &at
		s.ordersByID[orderID] = order
	}
	copied := clonePendingOrder(order)
	return &copied, nil
}

func (s *Store) PruneSyncedOrders(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, order := range s.ordersByID {
		if order.Status != domain.StatusSynced || order.SyncedAt == nil {
			continue
		}
		if order.SyncedAt.Before(olderThan) {
			delete(s.ordersByID, id)
			pruned++
		}
	}
	return pruned, nil
}

func cloneHeldCart(held domain.HeldCart) domain.HeldCart {
	held.Cart = domain.CloneCart(held.Cart)
	held.Cliente = domain.CloneCliente(held.Cliente)
	return held
}

func clonePendingOrder(order domain.PendingOrder) domain.PendingOrder {
	order.Cart = domain.CloneCart(order.Cart)
	order.Cliente = domain.CloneCliente(order.Cliente)
	if order.SyncedAt != nil {
		at := *order.SyncedAt
		order.SyncedAt = &at
	}
	return order
}
