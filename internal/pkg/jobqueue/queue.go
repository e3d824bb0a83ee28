package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vitrine/storefront/internal/pkg/cache"
)

// Redis layout. Job bodies live under JobKeyPrefix+id; the lists and the
// delayed set only carry ids.
const (
	JobKeyPrefix     = "storefront:jobs:job:"
	JobQueueKey      = "storefront:jobs:pending"
	JobProcessingKey = "storefront:jobs:processing"
	JobDelayedKey    = "storefront:jobs:delayed"
	JobStatsKey      = "storefront:jobs:stats"

	DefaultMaxRetries = 3
	DefaultWorkers    = 3
	JobTTL            = 24 * time.Hour
	RetryBackoffUnit  = 30 * time.Second

	stuckJobMaxAge      = 10 * time.Minute
	maintenanceInterval = time.Minute
	dequeueWait         = time.Second
)

// Handler executes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job *Job) error

// Queue runs background jobs stored in Redis.
type Queue struct {
	client  *redis.Client
	workers int
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	handlersMu sync.RWMutex
	handlers   map[JobType]Handler
}

// NewQueue creates a queue on the shared cache client.
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

// NewQueueWithClient creates a queue on a specific Redis client.
func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		client:   client,
		workers:  workers,
		now:      time.Now,
		handlers: make(map[JobType]Handler),
	}
}

// Register installs the handler for a job type.
func (q *Queue) Register(jobType JobType, h Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (Handler, bool) {
	q.handlersMu.RLock()
	defer q.handlersMu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the maintenance loop. Calling it twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true

	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.wg.Add(1)
	go q.maintenance(ctx)
}

// Stop cancels the workers and waits for the job in flight to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	q.cancel()
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	for ctx.Err() == nil {
		job, err := q.dequeueJob(ctx)
		switch {
		case err == nil:
			log.Infof("[JobQueue] Worker %d processing job %s (Type: %s)", id, job.ID, job.Type)
			// A job picked up before shutdown runs to completion.
			q.processJob(context.WithoutCancel(ctx), job)
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
		default:
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
			case <-time.After(dequeueWait):
			}
		}
	}
	log.Debugf("[JobQueue] Worker %d stopped", id)
}

// maintenance promotes due retries and requeues jobs orphaned in the
// processing list by a crashed worker.
func (q *Queue) maintenance(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := q.now()
			if n, err := q.promoteDueRetries(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promoting retries failed: %v", err)
			} else if n > 0 {
				log.Infof("[JobQueue] Promoted %d retries", n)
			}
			if err := q.recoverStuckJobs(ctx, now, stuckJobMaxAge); err != nil {
				log.Errorf("[JobQueue] Stuck job sweep failed: %v", err)
			}
		}
	}
}

// promoteDueRetries moves delayed ids whose time has come back onto the
// pending list.
func (q *Queue) promoteDueRetries(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		// ZRem decides the winner when several instances sweep at once.
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *Queue) recoverStuckJobs(ctx context.Context, now time.Time, maxAge time.Duration) error {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			// Body expired or unreadable, or a finished job whose LRem was lost.
			q.removeFromProcessing(ctx, id)
			continue
		}

		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if age := now.Sub(started); age > maxAge {
			log.Warnf("[JobQueue] Recovering stuck job %s (type=%s) after %s", job.ID, job.Type, age)
			job.Status = JobStatusPending
			job.ErrorMsg = "recovered by sweeper"
			job.UpdatedAt = now
			q.saveJob(ctx, job)
			q.removeFromProcessing(ctx, id)
			if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnqueueJob stores a new job and pushes it onto the pending list.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := q.now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob atomically moves the oldest pending id to the processing list
// and loads its body. redis.Nil means nothing arrived within dequeueWait.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, JobQueueKey, JobProcessingKey, "RIGHT", "LEFT", dequeueWait).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.removeFromProcessing(ctx, id)
		return nil, fmt.Errorf("job %s unreadable: %w", id, err)
	}
	return job, nil
}

func (q *Queue) run(ctx context.Context, job *Job) (err error) {
	h, ok := q.handler(job.Type)
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.saveJob(ctx, job)

	err := q.run(ctx, job)
	switch {
	case err == nil:
		log.Infof("[JobQueue] Job %s completed", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		if derr := q.client.Del(ctx, JobKeyPrefix+job.ID).Err(); derr != nil {
			log.Errorf("[JobQueue] Failed to delete completed job %s: %v", job.ID, derr)
		}

	default:
		log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
		job.MarkAsFailed(err.Error())
		if job.IsRetryable() {
			job.MarkAsRetrying()
			q.saveJob(ctx, job)
			q.scheduleRetry(ctx, job)
		} else {
			log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
			q.saveJob(ctx, job)
			q.updateJobStats(ctx, JobStatusFailed, 1)
		}
	}

	q.removeFromProcessing(ctx, job.ID)
}

// scheduleRetry parks the job in the delayed set with a linear backoff.
func (q *Queue) scheduleRetry(ctx context.Context, job *Job) {
	due := q.now().Add(RetryBackoffUnit * time.Duration(job.RetryCount))
	log.Infof("[JobQueue] Retrying job %s at %s (attempt %d/%d)",
		job.ID, due.Format(time.RFC3339), job.RetryCount, job.MaxRetries)
	if err := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(due.Unix()), Member: job.ID}).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to schedule retry for job %s: %v", job.ID, err)
	}
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to save job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing list: %v", id, err)
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob loads a stored job.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Stats summarizes the queue for the admin API.
type Stats struct {
	Pending    int64               `json:"pending"`
	Processing int64               `json:"processing"`
	Delayed    int64               `json:"delayed"`
	Statuses   map[JobStatus]int64 `json:"statuses"`
}

// Stats reads list depths and the status counters in one round trip.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, JobQueueKey)
	processing := pipe.LLen(ctx, JobProcessingKey)
	delayed := pipe.ZCard(ctx, JobDelayedKey)
	counters := pipe.HGetAll(ctx, JobStatsKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	statuses := make(map[JobStatus]int64, len(counters.Val()))
	for status, raw := range counters.Val() {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("job stat %s: %w", status, err)
		}
		statuses[JobStatus(status)] = n
	}
	return &Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Statuses:   statuses,
	}, nil
}
