package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"puntoventa/terminal/internal/catalog"
	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/netstatus"
	"puntoventa/terminal/internal/store"
)

// SubmitFunc pushes one pending order to the remote order system. It must
// return an error on any failure; the transport behind it is the caller's
// choice.
type SubmitFunc func(ctx context.Context, order domain.PendingOrder) error

// Service is the offline register core: it parks and resumes carts, keeps the
// product catalog usable without connectivity, and runs the write-ahead queue
// of orders awaiting remote confirmation.
//
// The held-cart and pending-order list views are only as fresh as the last
// load; a single register per terminal is assumed, no cross-process
// coordination is attempted.
type Service struct {
	repo     store.Store
	cache    catalog.Cache
	monitor  *netstatus.Monitor
	submit   SubmitFunc
	cacheTTL time.Duration

	mu            sync.Mutex
	heldCarts     []domain.HeldCart
	pendingOrders []domain.PendingOrder
	lastSyncAt    time.Time
}

func New(repo store.Store, cache catalog.Cache, monitor *netstatus.Monitor, submit SubmitFunc, cacheTTL time.Duration) *Service {
	if cache == nil {
		cache = catalog.NoopCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		monitor:  monitor,
		submit:   submit,
		cacheTTL: cacheTTL,
	}
}

// HoldCart parks the cart under a fresh id. The id is usable for
// ResumeHeldCart as soon as this returns.
func (s *Service) HoldCart(ctx context.Context, cart []domain.CartLineItem, cliente *domain.ClienteSnapshot) (string, error) {
	if len(cart) == 0 {
		return "", store.ErrInvalidRecord
	}

	held := domain.HeldCart{
		Cart:      domain.CloneCart(cart),
		Cliente:   domain.CloneCliente(cliente),
		Status:    domain.StatusHeld,
		CreatedAt: time.Now().UTC(),
	}
	saved, err := s.repo.CreateHeldCart(ctx, held)
	if err != nil {
		return "", err
	}
	if err := s.LoadHeldCarts(ctx); err != nil {
		return "", err
	}
	return saved.ID, nil
}

// ResumeHeldCart is a pure lookup; removal is a separate explicit step so the
// register can preview a cart before committing to resume it. A stale id
// yields nil, not an error.
func (s *Service) ResumeHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error) {
	held, err := s.repo.GetHeldCart(ctx, holdID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return held, nil
}

func (s *Service) DiscardHeldCart(ctx context.Context, holdID string) error {
	if err := s.repo.DeleteHeldCart(ctx, holdID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.LoadHeldCarts(ctx)
}

func (s *Service) LoadHeldCarts(ctx context.Context) error {
	helds, err := s.repo.ListHeldCarts(ctx, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.heldCarts = helds
	s.mu.Unlock()
	return nil
}

func (s *Service) HeldCarts() []domain.HeldCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := make([]domain.HeldCart, len(s.heldCarts))
	copy(view, s.heldCarts)
	return view
}

// CacheProducts overwrites the current catalog snapshot. The durable store is
// written first; the redis fast path is best effort.
func (s *Service) CacheProducts(ctx context.Context, products []domain.ProductoSnapshot) error {
	snapshot := domain.ProductSnapshotRecord{
		Products:   products,
		CapturedAt: time.Now().UTC(),
	}
	if err := s.repo.PutProductSnapshot(ctx, snapshot); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, &snapshot, s.cacheTTL); err != nil {
		log.Printf("[service] catalog cache set failed: %v", err)
	}
	return nil
}

// LoadProductCache returns the most recent catalog snapshot, or nil when none
// has been captured yet.
func (s *Service) LoadProductCache(ctx context.Context) (*domain.ProductSnapshotRecord, error) {
	if snapshot, hit, err := s.cache.Get(ctx); err == nil && hit {
		return snapshot, nil
	} else if err != nil {
		log.Printf("[service] catalog cache get failed: %v", err)
	}

	snapshot, err := s.repo.LatestProductSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.cache.Set(ctx, snapshot, s.cacheTTL); err != nil {
		log.Printf("[service] catalog cache warm failed: %v", err)
	}
	return snapshot, nil
}

// SavePendingOrder records an order in the local write-ahead queue.
func (s *Service) SavePendingOrder(ctx context.Context, cart []domain.CartLineItem, cliente *domain.ClienteSnapshot) (string, error) {
	return s.savePending(ctx, cart, cliente, "")
}

func (s *Service) savePending(ctx context.Context, cart []domain.CartLineItem, cliente *domain.ClienteSnapshot, holdID string) (string, error) {
	if len(cart) == 0 {
		return "", store.ErrInvalidRecord
	}

	order := domain.PendingOrder{
		Cart:      domain.CloneCart(cart),
		Cliente:   domain.CloneCliente(cliente),
		HoldID:    holdID,
		Status:    domain.StatusPendingSync,
		CreatedAt: time.Now().UTC(),
	}
	saved, err := s.repo.CreatePendingOrder(ctx, order)
	if err != nil {
		return "", err
	}
	if err := s.LoadPendingOrders(ctx); err != nil {
		return "", err
	}
	return saved.ID, nil
}

func (s *Service) LoadPendingOrders(ctx context.Context) error {
	orders, err := s.repo.ListPendingOrders(ctx, 0)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pendingOrders = orders
	s.mu.Unlock()
	return nil
}

func (s *Service) PendingOrders() []domain.PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := make([]domain.PendingOrder, len(s.pendingOrders))
	copy(view, s.pendingOrders)
	return view
}

// MarkOrderSynced flips one order to synced. Idempotent: an already-synced or
// missing id is a no-op, never an error.
func (s *Service) MarkOrderSynced(ctx context.Context, orderID string) error {
	if _, err := s.repo.MarkOrderSynced(ctx, orderID, time.Now().UTC()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return s.LoadPendingOrders(ctx)
}

// SyncPendingOrders sweeps the queue strictly sequentially: each order's
// submit-then-mark completes before the next begins, so a just-reconnected
// link is never hit with a burst. A submit failure leaves that order pending
// and the sweep continues; storage failures abort because they mean something
// more fundamental than one order's network trouble.
func (s *Service) SyncPendingOrders(ctx context.Context, submit SubmitFunc) (domain.SyncReport, error) {
	report := domain.SyncReport{}
	if submit == nil {
		submit = s.submit
	}
	if submit == nil {
		return report, errors.New("no submit function configured")
	}

	if err := s.LoadPendingOrders(ctx); err != nil {
		return report, err
	}

	for _, order := range s.PendingOrders() {
		report.Attempted++

		if err := submit(ctx, order); err != nil {
			log.Printf("[service] order %s still pending: %v", order.ID, err)
			continue
		}

		if err := s.flipSynced(ctx, order); err != nil {
			report.Remaining = report.Attempted - report.Synced
			return report, err
		}
		report.Synced++
	}

	if err := s.LoadPendingOrders(ctx); err != nil {
		return report, err
	}
	s.mu.Lock()
	s.lastSyncAt = time.Now().UTC()
	report.Remaining = len(s.pendingOrders)
	s.mu.Unlock()

	if report.Remaining > 0 {
		log.Printf("[service] sync sweep: %d synced, %d still pending", report.Synced, report.Remaining)
	}
	return report, nil
}

func (s *Service) flipSynced(ctx context.Context, order domain.PendingOrder) error {
	now := time.Now().UTC()
	var err error
	if order.HoldID != "" {
		_, err = s.repo.MarkOrderSyncedDiscardingHold(ctx, order.ID, order.HoldID, now)
	} else {
		_, err = s.repo.MarkOrderSynced(ctx, order.ID, now)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if order.HoldID != "" {
		return s.LoadHeldCarts(ctx)
	}
	return nil
}

// Checkout settles a cart. The order is always written to the local queue
// first; when the observer says online it is submitted immediately and marked
// synced, otherwise (or when the submit fails) it stays queued for the next
// sweep.
func (s *Service) Checkout(ctx context.Context, cart []domain.CartLineItem, cliente *domain.ClienteSnapshot) (domain.CheckoutResult, error) {
	return s.checkout(ctx, cart, cliente, "")
}

// CheckoutHeld settles a previously parked cart. The held record is removed
// in the same transaction that marks the order synced, so a crash in between
// cannot leave a confirmed order with a lingering hold.
func (s *Service) CheckoutHeld(ctx context.Context, holdID string) (domain.CheckoutResult, error) {
	held, err := s.ResumeHeldCart(ctx, holdID)
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	if held == nil {
		return domain.CheckoutResult{}, store.ErrNotFound
	}
	return s.checkout(ctx, held.Cart, held.Cliente, held.ID)
}

func (s *Service) checkout(ctx context.Context, cart []domain.CartLineItem, cliente *domain.ClienteSnapshot, holdID string) (domain.CheckoutResult, error) {
	orderID, err := s.savePending(ctx, cart, cliente, holdID)
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	result := domain.CheckoutResult{OrderID: orderID, Queued: true}

	if s.submit == nil || s.monitor == nil || !s.monitor.Online() {
		return result, nil
	}

	order, err := s.repo.GetPendingOrder(ctx, orderID)
	if err != nil {
		return result, nil
	}
	if err := s.submit(ctx, *order); err != nil {
		log.Printf("[service] immediate submit failed, order %s queued: %v", orderID, err)
		return result, nil
	}
	if err := s.flipSynced(ctx, *order); err != nil {
		return result, err
	}
	if err := s.LoadPendingOrders(ctx); err != nil {
		return result, err
	}
	result.Queued = false
	return result, nil
}

// PruneSyncedOrders applies the retention window to confirmed orders.
func (s *Service) PruneSyncedOrders(ctx context.Context, olderThan time.Time) (int, error) {
	return s.repo.PruneSyncedOrders(ctx, olderThan)
}

// Status reports the signal the register badge shows: connectivity, the count
// of orders still awaiting sync, and the last completed sweep.
func (s *Service) Status() (online bool, pending int, lastSyncAt time.Time) {
	online = s.monitor == nil || s.monitor.Online()
	s.mu.Lock()
	pending = len(s.pendingOrders)
	lastSyncAt = s.lastSyncAt
	s.mu.Unlock()
	return online, pending, lastSyncAt
}
