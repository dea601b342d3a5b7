// Package memory provides a deterministic in-process delayed queue for tests
// and local development, driven by an injectable clock.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cadencehq/cadence/pkg/queue"
)

type job struct {
	kind      string
	payload   []byte
	readyAt   time.Time
	dedupeKey string
}

// Queue keeps pending jobs in memory, ordered by ready time. Jobs run only
// when RunDue or Drain is called, which keeps tests fully deterministic.
type Queue struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	handlers map[string]queue.Handler
	jobs     []*job
}

func NewQueue(clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Queue{
		clock:    clock,
		handlers: make(map[string]queue.Handler),
	}
}

func (q *Queue) Enqueue(_ context.Context, kind string, payload []byte, opts queue.Options) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if opts.DedupeKey != "" {
		for _, pending := range q.jobs {
			if pending.dedupeKey == opts.DedupeKey {
				return nil
			}
		}
	}

	q.jobs = append(q.jobs, &job{
		kind:      kind,
		payload:   payload,
		readyAt:   q.clock.Now().Add(opts.Delay),
		dedupeKey: opts.DedupeKey,
	})

	sort.SliceStable(q.jobs, func(i, j int) bool { return q.jobs[i].readyAt.Before(q.jobs[j].readyAt) })

	return nil
}

func (q *Queue) Handle(kind string, handler queue.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[kind] = handler
}

// Start is a no-op: the in-memory queue is pumped explicitly.
func (q *Queue) Start(_ context.Context) error {
	return nil
}

func (q *Queue) Close() error {
	return nil
}

// Pending returns the number of undelivered jobs.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.jobs)
}

// RunDue delivers every job whose ready time has passed, in ready order.
// Returns the number of jobs delivered.
func (q *Queue) RunDue(ctx context.Context) (int, error) {
	delivered := 0

	for {
		next := q.popDue()
		if next == nil {
			return delivered, nil
		}

		handler := q.handlerFor(next.kind)
		if handler == nil {
			return delivered, fmt.Errorf("%w: %s", queue.ErrUnknownJobKind, next.kind)
		}

		err := handler(ctx, next.payload)
		delivered++

		if err != nil {
			return delivered, err
		}
	}
}

// Drain runs jobs until none remain, advancing the fake clock over delays.
// This simulates arbitrary elapsed time: a multi-day wait costs nothing.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	delivered := 0

	for {
		n, err := q.RunDue(ctx)
		delivered += n

		if err != nil {
			return delivered, err
		}

		wait, ok := q.nextWait()
		if !ok {
			return delivered, nil
		}

		if fake, isFake := q.clock.(*clockwork.FakeClock); isFake {
			fake.Advance(wait)
		} else {
			q.clock.Sleep(wait)
		}
	}
}

func (q *Queue) popDue() *job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 || q.jobs[0].readyAt.After(q.clock.Now()) {
		return nil
	}

	next := q.jobs[0]
	q.jobs = q.jobs[1:]

	return next
}

func (q *Queue) handlerFor(kind string) queue.Handler {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.handlers[kind]
}

func (q *Queue) nextWait() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return 0, false
	}

	return q.jobs[0].readyAt.Sub(q.clock.Now()), true
}
