package cache

import (
	"context"
	"time"

	"eclatpos/backend/internal/domain"
)

// SnapshotCache holds the last refreshed catalog snapshot so other
// instances can serve reads without hitting the datastore.
type SnapshotCache interface {
	Get(ctx context.Context) (*domain.Snapshot, bool, error)
	Set(ctx context.Context, value *domain.Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context) (*domain.Snapshot, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ *domain.Snapshot, _ time.Duration) error {
	return nil
}

func (NoopSnapshotCache) Invalidate(_ context.Context) error {
	return nil
}
