package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned when operations are attempted on a closed queue.
	ErrClosed = errors.New("queue is closed")

	// ErrTerminated is returned when pushing after the terminator. A second
	// terminator would never be consumed and would hang Join.
	ErrTerminated = errors.New("queue already terminated")
)

// Kind describes what Pop produced.
type Kind int

const (
	// KindItem means a pushed value was returned.
	KindItem Kind = iota
	// KindTerminator means the producer has finished; the consumer should exit.
	KindTerminator
	// KindTimeout means nothing arrived within the poll interval.
	KindTimeout
	// KindClosed means the queue was closed and its contents discarded.
	KindClosed
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindTerminator:
		return "terminator"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats tracks queue throughput.
type Stats struct {
	TotalPushed int64
	TotalPopped int64
	Timeouts    int64
	CurrentSize int
	PeakSize    int
	LastPush    time.Time
	LastPop     time.Time
}

type entry[T any] struct {
	value      T
	terminator bool
}

// Queue is a FIFO hand-off between one producer and one consumer.
//
// Every popped entry, the terminator included, must be acknowledged with
// Done once the consumer has finished with it; Join waits for that.
type Queue[T any] struct {
	items   []entry[T]
	maxSize int // 0 means unbounded

	unfinished int
	terminated bool
	closed     bool

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	drained  *sync.Cond

	stats Stats
}

// New creates a queue. With maxSize > 0 pushes block while the queue holds
// maxSize values; with maxSize <= 0 the queue is unbounded and Push never
// blocks.
func New[T any](maxSize int) *Queue[T] {
	if maxSize < 0 {
		maxSize = 0
	}
	q := &Queue[T]{maxSize: maxSize}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.drained = sync.NewCond(&q.mu)
	return q
}

// Push appends v, waiting for space if the queue is bounded and full.
func (q *Queue[T]) Push(v T) error {
	return q.PushContext(context.Background(), v)
}

// PushContext is like Push but gives up waiting for space when ctx is done.
func (q *Queue[T]) PushContext(ctx context.Context, v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.writableLocked(); err != nil {
		return err
	}

	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
		})
		defer stop()

		// Apply backpressure - wait for space
		for len(q.items) >= q.maxSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			q.notFull.Wait()
			if err := q.writableLocked(); err != nil {
				return err
			}
		}
	}

	q.appendLocked(entry[T]{value: v})
	return nil
}

// Terminate pushes the terminator. It never blocks: the terminator is
// accepted even when a bounded queue is full. Only the first call succeeds.
func (q *Queue[T]) Terminate() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.writableLocked(); err != nil {
		return err
	}
	q.terminated = true
	q.appendLocked(entry[T]{terminator: true})
	return nil
}

// Pop removes the oldest entry, waiting at most timeout for one to arrive.
// The value is only meaningful when the kind is KindItem.
func (q *Queue[T]) Pop(timeout time.Duration) (T, Kind) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 && !q.closed {
		deadline := time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()

		for len(q.items) == 0 && !q.closed && time.Now().Before(deadline) {
			q.notEmpty.Wait()
		}
	}

	if q.closed {
		return zero, KindClosed
	}
	if len(q.items) == 0 {
		q.stats.Timeouts++
		return zero, KindTimeout
	}

	e := q.items[0]
	q.items[0] = entry[T]{}
	q.items = q.items[1:]

	q.stats.TotalPopped++
	q.stats.LastPop = time.Now()
	q.stats.CurrentSize = len(q.items)
	q.notFull.Signal()

	if e.terminator {
		return zero, KindTerminator
	}
	return e.value, KindItem
}

// Done marks one popped entry as processed.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if q.unfinished <= 0 {
		panic("queue: Done called more times than entries were pushed")
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.drained.Broadcast()
	}
}

// Join blocks until every pushed entry has been popped and marked Done, the
// queue is closed, or ctx is done.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.drained.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for q.unfinished > 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.drained.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	return nil
}

// Close discards pending entries and wakes every waiter. It is safe to call
// more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.unfinished = 0
	q.stats.CurrentSize = 0

	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.drained.Broadcast()
}

// Len returns the number of entries waiting to be popped.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Terminated reports whether the terminator has been pushed.
func (q *Queue[T]) Terminated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.terminated
}

// Stats returns current queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	return stats
}

func (q *Queue[T]) writableLocked() error {
	if q.closed {
		return ErrClosed
	}
	if q.terminated {
		return ErrTerminated
	}
	return nil
}

func (q *Queue[T]) appendLocked(e entry[T]) {
	q.items = append(q.items, e)
	q.unfinished++

	q.stats.TotalPushed++
	q.stats.LastPush = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
	q.stats.CurrentSize = len(q.items)

	q.notEmpty.Signal()
}
