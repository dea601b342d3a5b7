// Package queue defines the delayed-job facility used to re-invoke the
// engine after a wait, with at-least-once delivery semantics.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownJobKind indicates a delivered job with no registered handler.
var ErrUnknownJobKind = errors.New("unknown job kind")

// Handler consumes one delivered job payload. Returning an error leaves the
// job eligible for redelivery under the queue's retry policy.
type Handler func(ctx context.Context, payload []byte) error

// Options control enqueueing of a single job.
type Options struct {
	// Delay postpones delivery by the given duration. Zero means deliver as
	// soon as a worker is free.
	Delay time.Duration
	// DedupeKey suppresses the enqueue when a job with the same key is
	// already pending, guaranteeing at-most-one in-flight job per key.
	DedupeKey string
}

// DelayedQueue is the job transport the engine suspends on. The engine never
// blocks a worker for a delay: it enqueues a resume job and returns.
type DelayedQueue interface {
	Enqueue(ctx context.Context, kind string, payload []byte, opts Options) error
	Handle(kind string, handler Handler)
	Start(ctx context.Context) error
	Close() error
}
