package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/queue"
)

func TestRunDue_DeliversOnlyReadyJobs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewQueue(clock)
	ctx := context.Background()

	var delivered []string

	q.Handle("job", func(_ context.Context, payload []byte) error {
		delivered = append(delivered, string(payload))

		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "job", []byte("now"), queue.Options{}))
	require.NoError(t, q.Enqueue(ctx, "job", []byte("later"), queue.Options{Delay: time.Hour}))

	n, err := q.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"now"}, delivered)
	assert.Equal(t, 1, q.Pending())

	clock.Advance(time.Hour)

	n, err = q.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"now", "later"}, delivered)
}

func TestDrain_AdvancesClockOverDelays(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewQueue(clock)
	ctx := context.Background()

	start := clock.Now()

	q.Handle("job", func(_ context.Context, _ []byte) error { return nil })

	require.NoError(t, q.Enqueue(ctx, "job", []byte("a"), queue.Options{Delay: 3 * 24 * time.Hour}))

	n, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3*24*time.Hour, clock.Now().Sub(start))
}

func TestEnqueue_DedupeSuppressesPendingDuplicates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewQueue(clock)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job", []byte("a"), queue.Options{DedupeKey: "k"}))
	require.NoError(t, q.Enqueue(ctx, "job", []byte("b"), queue.Options{DedupeKey: "k"}))
	assert.Equal(t, 1, q.Pending())

	// Once delivered, the key is free again.
	q.Handle("job", func(_ context.Context, _ []byte) error { return nil })

	_, err := q.RunDue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, "job", []byte("c"), queue.Options{DedupeKey: "k"}))
	assert.Equal(t, 1, q.Pending())
}

func TestRunDue_UnknownKind(t *testing.T) {
	q := NewQueue(clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "mystery", nil, queue.Options{}))

	_, err := q.RunDue(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrUnknownJobKind)
}

func TestRunDue_StopsOnHandlerError(t *testing.T) {
	q := NewQueue(clockwork.NewFakeClock())
	ctx := context.Background()

	handlerErr := errors.New("boom")

	q.Handle("job", func(_ context.Context, _ []byte) error { return handlerErr })

	require.NoError(t, q.Enqueue(ctx, "job", []byte("a"), queue.Options{}))
	require.NoError(t, q.Enqueue(ctx, "job", []byte("b"), queue.Options{}))

	n, err := q.RunDue(ctx)
	require.ErrorIs(t, err, handlerErr)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, q.Pending())
}

func TestDeliveryOrderFollowsReadyTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewQueue(clock)
	ctx := context.Background()

	var delivered []string

	q.Handle("job", func(_ context.Context, payload []byte) error {
		delivered = append(delivered, string(payload))

		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "job", []byte("third"), queue.Options{Delay: 3 * time.Hour}))
	require.NoError(t, q.Enqueue(ctx, "job", []byte("first"), queue.Options{Delay: time.Hour}))
	require.NoError(t, q.Enqueue(ctx, "job", []byte("second"), queue.Options{Delay: 2 * time.Hour}))

	_, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, delivered)
}
