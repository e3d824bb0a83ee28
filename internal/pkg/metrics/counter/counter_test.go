package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/storefront/internal/pkg/env"
)

const isolatedCounterTestRedisDB = 13

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       isolatedCounterTestRedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestDailyKey(t *testing.T) {
	day := time.Date(2024, 6, 12, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "webhook:counters:outcomes:2024-06-13", dailyKey(day))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NoError(t, r.AddWebhookOutcome(context.Background(), "resolved"))
}

func TestRecorder_CountsAndResets(t *testing.T) {
	client := newTestRedis(t)
	r := NewRecorder(client)
	fixed := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, r.AddWebhookOutcome(ctx, "resolved"))
	require.NoError(t, r.AddWebhookOutcome(ctx, "resolved"))
	require.NoError(t, r.AddWebhookOutcome(ctx, "not_found"))

	totals, err := r.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"resolved": 2, "not_found": 1}, totals)

	day, err := r.Day(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), day["resolved"])

	ttl, err := client.TTL(ctx, dailyKey(fixed)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	drained, err := r.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, drained)

	after, err := r.Totals(ctx)
	require.NoError(t, err)
	assert.Empty(t, after)

	empty, err := r.Reset(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
