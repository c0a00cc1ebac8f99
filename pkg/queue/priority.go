package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTimeout = errors.New("queue: pop timed out")
	ErrClosed  = errors.New("queue: closed")
)

type entry[T any] struct {
	priority int
	seq      uint64
	value    T
}

type entries[T any] []entry[T]

func (h entries[T]) Len() int { return len(h) }
func (h entries[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entries[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entries[T]) Push(x any)   { *h = append(*h, x.(entry[T])) }
func (h *entries[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// PriorityQueue is a blocking min-priority queue, FIFO among equal priorities.
// Every pushed item must be acknowledged with Done once processed; Join waits
// until all pushed items are acknowledged.
type PriorityQueue[T any] struct {
	mu         sync.Mutex
	items      entries[T]
	seq        uint64
	unfinished int
	idle       chan struct{}
	notify     chan struct{}
	closed     bool
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	idle := make(chan struct{})
	close(idle)
	return &PriorityQueue[T]{
		idle:   idle,
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues value. Lower priority values are dequeued first.
func (q *PriorityQueue[T]) Push(priority int, value T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.seq++
	heap.Push(&q.items, entry[T]{priority: priority, seq: q.seq, value: value})
	if q.unfinished == 0 {
		q.idle = make(chan struct{})
	}
	q.unfinished++
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *PriorityQueue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until an item is available, the timeout elapses (ErrTimeout),
// ctx is cancelled, or the queue is closed and drained (ErrClosed).
func (q *PriorityQueue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := heap.Pop(&q.items).(entry[T])
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return it.value, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			q.wake()
			return zero, ErrClosed
		}

		select {
		case <-q.notify:
		case <-timer.C:
			return zero, ErrTimeout
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Done acknowledges one popped item.
func (q *PriorityQueue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished == 0 {
		return
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.idle)
	}
}

// Join waits until every pushed item has been acknowledged.
func (q *PriorityQueue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued, not yet popped, items.
func (q *PriorityQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes. Queued items can still be popped.
func (q *PriorityQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}
