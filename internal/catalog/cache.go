package catalog

import (
	"context"
	"time"

	"puntoventa/terminal/internal/domain"
)

// Cache is a fast-path copy of the latest product snapshot so the register
// screen stays responsive offline. The durable store remains the source of
// truth; a cache miss is never an error.
type Cache interface {
	Get(ctx context.Context) (*domain.ProductSnapshotRecord, bool, error)
	Set(ctx context.Context, snapshot *domain.ProductSnapshotRecord, ttl time.Duration) error
}

type NoopCache struct{}

func (NoopCache) Get(_ context.Context) (*domain.ProductSnapshotRecord, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(_ context.Context, _ *domain.ProductSnapshotRecord, _ time.Duration) error {
	return nil
}
