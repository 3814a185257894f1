package store

import (
	"context"
	"errors"
	"time"

	"puntoventa/terminal/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable marks failures of the persistence layer itself
	// (cannot open, cannot reach). Callers degrade to in-memory operation
	// for the session instead of retrying.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidRecord      = errors.New("invalid record")
)

// Store is the terminal-local persistence layer: three independent record
// collections (held carts, product snapshots, pending orders). Each write is
// atomic at the single-record level; MarkOrderSyncedDiscardingHold is the one
// multi-record operation and commits as a single transaction.
type Store interface {
	CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error)
	GetHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error)
	ListHeldCarts(ctx context.Context, limit int) ([]domain.HeldCart, error)
	DeleteHeldCart(ctx context.Context, holdID string) error

	PutProductSnapshot(ctx context.Context, snapshot domain.ProductSnapshotRecord) error
	LatestProductSnapshot(ctx context.Context) (*domain.ProductSnapshotRecord, error)

	CreatePendingOrder(ctx context.Context, order domain.PendingOrder) (*domain.PendingOrder, error)
	GetPendingOrder(ctx context.Context, orderID string) (*domain.PendingOrder, error)
	ListPendingOrders(ctx context.Context, limit int) ([]domain.PendingOrder, error)
	MarkOrderSynced(ctx context.Context, orderID string, at time.Time) (*domain.PendingOrder, error)
	MarkOrderSyncedDiscardingHold(ctx context.Context, orderID string, holdID string, at time.Time) (*domain.PendingOrder, error)
	PruneSyncedOrders(ctx context.Context, olderThan time.Time) (int, error)
}
