package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eclatpos/backend/internal/domain"
)

func TestNoopSnapshotCacheNeverHits(t *testing.T) {
	var c SnapshotCache = NoopSnapshotCache{}
	require.NoError(t, c.Set(context.Background(), &domain.Snapshot{}, time.Minute))

	snap, ok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snap)
}

func TestRedisSnapshotCacheSetGetInvalidate(t *testing.T) {
	addr := os.Getenv("ECLAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set ECLAT_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	c := NewRedisSnapshotCacheWithClient(client, fmt.Sprintf("eclat:test:%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = c.Invalidate(ctx)
		_ = c.Close()
	})
	require.NoError(t, c.Ping(ctx))

	want := &domain.Snapshot{Products: []domain.Product{{ID: "prd-1", Name: "Mascara", Stock: 3}}}
	require.NoError(t, c.Set(ctx, want, time.Minute))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Mascara", got.Products[0].Name)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
