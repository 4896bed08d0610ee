// Package dispatch is the bounded hand-off between network intake and the
// scoring task.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/tigerdelta/internal/core"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// DefaultCapacity is the queue depth; newer items are dropped beyond it.
const DefaultCapacity = 1024

var (
	// ErrQueueFull is returned by TrySend when the queue is saturated.
	ErrQueueFull error = utils.NewCodedError(utils.ErrCodeQueueFull, "dispatch queue is full")

	// ErrQueueClosed is returned once the producer has closed the queue and,
	// for Receive, every queued item has been drained.
	ErrQueueClosed = errors.New("dispatch queue is closed")
)

// Queue is a single-producer single-consumer bounded FIFO.
type Queue struct {
	items     chan core.Item
	closed    atomic.Bool
	closeOnce sync.Once

	// Metrics (atomic for lock-free reads)
	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a queue; capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{items: make(chan core.Item, capacity)}
}

// TrySend enqueues without blocking. Only the producer may call it.
func (q *Queue) TrySend(item core.Item) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.items <- item:
		q.enqueued.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Receive blocks until an item arrives, the queue is closed and drained, or
// ctx is done.
func (q *Queue) Receive(ctx context.Context) (core.Item, error) {
	select {
	case item, ok := <-q.items:
		if !ok {
			return core.Item{}, ErrQueueClosed
		}
		return item, nil
	case <-ctx.Done():
		return core.Item{}, ctx.Err()
	}
}

// Close stops further sends. Only the producer may call it.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.items)
	})
}

func (q *Queue) Len() int         { return len(q.items) }
func (q *Queue) Cap() int         { return cap(q.items) }
func (q *Queue) Enqueued() uint64 { return q.enqueued.Load() }
func (q *Queue) Dropped() uint64  { return q.dropped.Load() }
