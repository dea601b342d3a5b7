package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cadencehq/cadence/pkg/queue"
	memoryqueue "github.com/cadencehq/cadence/pkg/queue/memory"
	redisqueue "github.com/cadencehq/cadence/pkg/queue/redis"
)

// NewDelayedQueue selects the delayed-job backend from the queue URL. An
// empty URL yields the in-memory queue, which only makes sense for local
// development: delayed jobs do not survive restarts, and RunDue must be
// driven by the caller.
func NewDelayedQueue(ctx context.Context, logger *slog.Logger, queueURL string, concurrency int) queue.DelayedQueue {
	if queueURL == "" {
		logger.WarnContext(ctx, "Using in-memory delayed queue, jobs will not survive restarts")

		return memoryqueue.NewQueue(clockwork.NewRealClock())
	}

	options, err := goredis.ParseURL(queueURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	client := goredis.NewClient(options)

	delayed, err := redisqueue.NewQueue(client, logger, redisqueue.Config{Concurrency: concurrency})
	if err != nil {
		panic(fmt.Errorf("failed to initialize redis delayed queue: %w", err))
	}

	return delayed
}
