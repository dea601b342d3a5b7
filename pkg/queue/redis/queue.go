// Package redis provides a Redis-backed delayed job queue. Jobs wait in a
// sorted set scored by ready time; a poll loop claims due jobs and dispatches
// them to a bounded worker pool.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cadencehq/cadence/pkg/queue"
)

const (
	delayedKey   = "cadence:jobs:delayed"
	dedupePrefix = "cadence:jobs:dedupe:"

	defaultPollInterval = 500 * time.Millisecond
	defaultConcurrency  = 5
	claimBatchSize      = 32

	// retryBackoff delays redelivery after a handler failure.
	retryBackoff = 5 * time.Second

	// dedupeGrace keeps the dedupe marker alive slightly past delivery so a
	// crashed worker cannot race a duplicate enqueue.
	dedupeGrace = time.Minute
)

type envelope struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Payload   []byte `json:"payload"`
	DedupeKey string `json:"dedupe_key,omitempty"`
	Attempts  int    `json:"attempts"`
}

// Config tunes the queue consumer.
type Config struct {
	// Concurrency bounds the number of jobs in flight at once.
	Concurrency int
	// PollInterval is how often the delayed set is checked for due jobs.
	PollInterval time.Duration
}

// Queue is a DelayedQueue over a Redis sorted set.
type Queue struct {
	client   goredis.UniversalClient
	logger   *slog.Logger
	config   Config
	pool     *ants.Pool
	handlers map[string]queue.Handler
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(client goredis.UniversalClient, logger *slog.Logger, config Config) (*Queue, error) {
	if config.Concurrency <= 0 {
		config.Concurrency = defaultConcurrency
	}

	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}

	pool, err := ants.NewPool(config.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Queue{
		client:   client,
		logger:   logger.With("module", "redis_queue"),
		config:   config,
		pool:     pool,
		handlers: make(map[string]queue.Handler),
		stopCh:   make(chan struct{}),
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, kind string, payload []byte, opts queue.Options) error {
	if opts.DedupeKey != "" {
		acquired, err := q.client.SetNX(ctx, dedupePrefix+opts.DedupeKey, "1", opts.Delay+dedupeGrace).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve dedupe key: %w", err)
		}

		if !acquired {
			q.logger.DebugContext(ctx, "Skipping duplicate job", "kind", kind, "dedupe_key", opts.DedupeKey)

			return nil
		}
	}

	env := envelope{
		ID:        "job-" + uuid.New().String(),
		Kind:      kind,
		Payload:   payload,
		DedupeKey: opts.DedupeKey,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	readyAt := time.Now().Add(opts.Delay)

	err = q.client.ZAdd(ctx, delayedKey, goredis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: body,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

func (q *Queue) Handle(kind string, handler queue.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[kind] = handler
}

// Start begins the poll loop. It returns immediately; consumption runs until
// Close or context cancellation.
func (q *Queue) Start(ctx context.Context) error {
	q.wg.Add(1)

	go q.poll(ctx)

	return nil
}

func (q *Queue) poll(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := q.claimDue(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				q.logger.ErrorContext(ctx, "Failed to claim due jobs", "error", err)
			}
		}
	}
}

// claimDue pops jobs whose ready time has passed and dispatches each to the
// pool. ZPOPMIN-style claiming keeps at-most-one worker per job.
func (q *Queue) claimDue(ctx context.Context) error {
	now := time.Now().UnixMilli()

	members, err := q.client.ZRangeByScore(ctx, delayedKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: claimBatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to range delayed jobs: %w", err)
	}

	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}

		if removed == 0 {
			// Another consumer claimed it first.
			continue
		}

		body := member

		err = q.pool.Submit(func() {
			q.dispatch(ctx, []byte(body))
		})
		if err != nil {
			// Pool rejected the task: put the job back for the next tick.
			q.requeue(ctx, []byte(body), time.Now())

			return fmt.Errorf("failed to submit job to pool: %w", err)
		}
	}

	return nil
}

func (q *Queue) dispatch(ctx context.Context, body []byte) {
	var env envelope

	err := json.Unmarshal(body, &env)
	if err != nil {
		q.logger.ErrorContext(ctx, "Dropping malformed job", "error", err)

		return
	}

	q.mu.RLock()
	handler, ok := q.handlers[env.Kind]
	q.mu.RUnlock()

	if !ok {
		q.logger.ErrorContext(ctx, "No handler registered for job kind", "kind", env.Kind)

		return
	}

	err = handler(ctx, env.Payload)
	if err != nil {
		q.logger.ErrorContext(ctx, "Job handler failed, scheduling redelivery",
			"kind", env.Kind,
			"attempts", env.Attempts+1,
			"error", err,
		)

		env.Attempts++

		retryBody, marshalErr := json.Marshal(env)
		if marshalErr != nil {
			return
		}

		q.requeue(ctx, retryBody, time.Now().Add(retryBackoff))

		return
	}

	if env.DedupeKey != "" {
		q.client.Del(ctx, dedupePrefix+env.DedupeKey)
	}
}

func (q *Queue) requeue(ctx context.Context, body []byte, readyAt time.Time) {
	err := q.client.ZAdd(ctx, delayedKey, goredis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: body,
	}).Err()
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to requeue job", "error", err)
	}
}

func (q *Queue) Close() error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
		q.pool.Release()
	})

	return nil
}
