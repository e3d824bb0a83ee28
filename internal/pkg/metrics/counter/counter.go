package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitrine/storefront/internal/pkg/cache"
)

const (
	webhookOutcomesKey     = "webhook:counters:outcomes"
	webhookDailyKeyPrefix  = "webhook:counters:outcomes:"
	webhookDailyRetention  = 35 * 24 * time.Hour
	webhookDailyDateLayout = "2006-01-02"
)

// Recorder counts webhook outcomes in Redis hashes: one running total and one
// hash per UTC day.
type Recorder struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRecorder creates a recorder over a Redis client.
func NewRecorder(client redis.Cmdable) *Recorder {
	return &Recorder{client: client, now: time.Now}
}

// Default returns a recorder over the shared cache client.
func Default() *Recorder {
	return NewRecorder(cache.GetClient())
}

func dailyKey(t time.Time) string {
	return webhookDailyKeyPrefix + t.UTC().Format(webhookDailyDateLayout)
}

// AddWebhookOutcome increments the counters for an outcome.
func (r *Recorder) AddWebhookOutcome(ctx context.Context, outcome string) error {
	if r == nil || r.client == nil {
		return nil
	}
	day := dailyKey(r.now())
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, webhookOutcomesKey, outcome, 1)
	pipe.HIncrBy(ctx, day, outcome, 1)
	pipe.Expire(ctx, day, webhookDailyRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// Totals returns the running totals per outcome.
func (r *Recorder) Totals(ctx context.Context) (map[string]int64, error) {
	return r.read(ctx, webhookOutcomesKey)
}

// Day returns the counters of a single UTC day.
func (r *Recorder) Day(ctx context.Context, day time.Time) (map[string]int64, error) {
	return r.read(ctx, dailyKey(day))
}

func (r *Recorder) read(ctx context.Context, key string) (map[string]int64, error) {
	data, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("counter %s/%s: %w", key, k, perr)
		}
		out[k] = n
	}
	return out, nil
}

// Reset drains the running totals and returns what they held. RENAME makes
// the drain atomic against concurrent increments.
func (r *Recorder) Reset(ctx context.Context) (map[string]int64, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", webhookOutcomesKey, r.now().UnixNano())
	if err := r.client.Rename(ctx, webhookOutcomesKey, tmpKey).Err(); err != nil {
		if isNoSuchKey(err) {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	defer r.client.Del(ctx, tmpKey)
	return r.read(ctx, tmpKey)
}

func isNoSuchKey(err error) bool {
	return errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key")
}
