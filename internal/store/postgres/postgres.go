package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"puntoventa/terminal/internal/domain"
	"puntoventa/terminal/internal/store"
	"puntoventa/terminal/internal/xid"
)

type Store struct {
	db *sql.DB
}

// schema is additive-only: opening an existing database never drops or
// rewrites data, it only creates what is missing.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS held_carts (
		id TEXT PRIMARY KEY,
		cart JSONB NOT NULL,
		cliente JSONB,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_snapshots (
		captured_at TIMESTAMPTZ PRIMARY KEY,
		products JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_orders (
		id TEXT PRIMARY KEY,
		cart JSONB NOT NULL,
		cliente JSONB,
		hold_id TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		synced_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS pending_orders_status_idx ON pending_orders (status, created_at)`,
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: schema: %v", store.ErrStorageUnavailable, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// storageErr classifies driver-level failures so callers can distinguish a
// broken persistence layer from an ordinary lookup miss.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
}

func (s *Store) CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
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

	cartJSON, err := json.Marshal(held.Cart)
	if err != nil {
		return nil, err
	}
	clienteJSON, err := marshalCliente(held.Cliente)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO held_carts (id, cart, cliente, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, held.ID, cartJSON, clienteJSON, string(held.Status), held.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	saved := held
	return &saved, nil
}

func (s *Store) GetHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cart, cliente, status, created_at
		FROM held_carts
		WHERE id = $1
	`, holdID)
	held, err := scanHeldCart(row)
	if err != nil {
		return nil, err
	}
	return held, nil
}

func (s *Store) ListHeldCarts(ctx context.Context, limit int) ([]domain.HeldCart, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cart, cliente, status, created_at
		FROM held_carts
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, string(domain.StatusHeld), limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	helds := make([]domain.HeldCart, 0, limit)
	for rows.Next() {
		held, err := scanHeldCart(rows)
		if err != nil {
			return nil, err
		}
		helds = append(helds, *held)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return helds, nil
}

func (s *Store) DeleteHeldCart(ctx context.Context, holdID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM held_carts WHERE id = $1`, holdID)
	if err != nil {
		return storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) PutProductSnapshot(ctx context.Context, snapshot domain.ProductSnapshotRecord) error {
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now().UTC()
	}
	productsJSON, err := json.Marshal(snapshot.Products)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO product_snapshots (captured_at, products)
		VALUES ($1,$2)
		ON CONFLICT (captured_at) DO UPDATE SET products = EXCLUDED.products
	`, snapshot.CapturedAt, productsJSON)
	return storageErr(err)
}

// LatestProductSnapshot orders by captured-at, never by write order, so an
// older snapshot can never shadow a newer one.
func (s *Store) LatestProductSnapshot(ctx context.Context) (*domain.ProductSnapshotRecord, error) {
	var snapshot domain.ProductSnapshotRecord
	var productsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT captured_at, products
		FROM product_snapshots
		ORDER BY captured_at DESC
		LIMIT 1
	`).Scan(&snapshot.CapturedAt, &productsRaw)
	if err != nil {
		return nil, storageErr(err)
	}
	snapshot.CapturedAt = snapshot.CapturedAt.UTC()
	if len(productsRaw) > 0 {
		if err := json.Unmarshal(productsRaw, &snapshot.Products); err != nil {
			return nil, err
		}
	}
	return &snapshot, nil
}

func (s *Store) CreatePendingOrder(ctx context.Context, order domain.PendingOrder) (*domain.PendingOrder, error) {
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

	cartJSON, err := json.Marshal(order.Cart)
	if err != nil {
		return nil, err
	}
	clienteJSON, err := marshalCliente(order.Cliente)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_orders (id, cart, cliente, hold_id, status, created_at, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL)
	`, order.ID, cartJSON, clienteJSON, nullIfEmpty(order.HoldID), string(order.Status), order.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	saved := order
	return &saved, nil
}

func (s *Store) GetPendingOrder(ctx context.Context, orderID string) (*domain.PendingOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cart, cliente, hold_id, status, created_at, synced_at
		FROM pending_orders
		WHERE id = $1
	`, orderID)
	return scanPendingOrder(row)
}

func (s *Store) ListPendingOrders(ctx context.Context, limit int) ([]domain.PendingOrder, error) {
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cart, cliente, hold_id, status, created_at, synced_at
		FROM pending_orders
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, string(domain.StatusPendingSync), limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	orders := make([]domain.PendingOrder, 0, limit)
	for rows.Next() {
		order, err := scanPendingOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return orders, nil
}

func (s *Store) MarkOrderSynced(ctx context.Context, orderID string, at time.Time) (*domain.PendingOrder, error) {
	return s.markSynced(ctx, orderID, "", at)
}

// MarkOrderSyncedDiscardingHold flips the order status and removes the
// originating held cart in one transaction so a crash between the two writes
// can never leave them inconsistent.
func (s *Store) MarkOrderSyncedDiscardingHold(ctx context.Context, orderID string, holdID string, at time.Time) (*domain.PendingOrder, error) {
	return s.markSynced(ctx, orderID, holdID, at)
}

func (s *Store) markSynced(ctx context.Context, orderID string, holdID string, at time.Time) (*domain.PendingOrder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	at = at.UTC()
	// The WHERE clause keeps the flip one-way: an already-synced order keeps
	// its original synced_at no matter how many sweeps touch it.
	_, err = tx.ExecContext(ctx, `
		UPDATE pending_orders
		SET status = $1, synced_at = $2
		WHERE id = $3 AND status = $4
	`, string(domain.StatusSynced), at, orderID, string(domain.StatusPendingSync))
	if err != nil {
		return nil, storageErr(err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, cart, cliente, hold_id, status, created_at, synced_at
		FROM pending_orders
		WHERE id = $1
	`, orderID)
	order, err := scanPendingOrder(row)
	if err != nil {
		return nil, err
	}

	if holdID != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM held_carts WHERE id = $1`, holdID); err != nil {
			return nil, storageErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr(err)
	}
	return order, nil
}

func (s *Store) PruneSyncedOrders(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_orders
		WHERE status = $1 AND synced_at IS NOT NULL AND synced_at < $2
	`, string(domain.StatusSynced), olderThan.UTC())
	if err != nil {
		return 0, storageErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeldCart(row rowScanner) (*domain.HeldCart, error) {
	var held domain.HeldCart
	var cartRaw []byte
	var clienteRaw []byte
	var status string
	if err := row.Scan(&held.ID, &cartRaw, &clienteRaw, &status, &held.CreatedAt); err != nil {
		return nil, storageErr(err)
	}
	held.Status = domain.Status(status)
	held.CreatedAt = held.CreatedAt.UTC()
	if err := json.Unmarshal(cartRaw, &held.Cart); err != nil {
		return nil, err
	}
	if len(clienteRaw) > 0 {
		if err := json.Unmarshal(clienteRaw, &held.Cliente); err != nil {
			return nil, err
		}
	}
	return &held, nil
}

func scanPendingOrder(row rowScanner) (*domain.PendingOrder, error) {
	var order domain.PendingOrder
	var cartRaw []byte
	var clienteRaw []byte
	var holdID sql.NullString
	var status string
	var syncedAt sql.NullTime
	if err := row.Scan(&order.ID, &cartRaw, &clienteRaw, &holdID, &status, &order.CreatedAt, &syncedAt); err != nil {
		return nil, storageErr(err)
	}
	order.Status = domain.Status(status)
	order.CreatedAt = order.CreatedAt.UTC()
	if holdID.Valid {
		order.HoldID = holdID.String
	}
	if syncedAt.Valid {
		at := syncedAt.Time.UTC()
		order.SyncedAt = &at
	}
	if err := json.Unmarshal(cartRaw, &order.Cart); err != nil {
		return nil, err
	}
	if len(clienteRaw) > 0 {
		if err := json.Unmarshal(clienteRaw, &order.Cliente); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

func marshalCliente(cliente *domain.ClienteSnapshot) ([]byte, error) {
	if cliente == nil {
		return nil, nil
	}
	return json.Marshal(cliente)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
