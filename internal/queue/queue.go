// Package queue provides the in-process work queue that connects the stages
// of the ranking pipeline, and the SQS producer that announces finished
// ranking runs to downstream consumers.
//
// Queue is an unbounded FIFO with join semantics: every popped item must be
// acknowledged with Done, and Join blocks until all pushed items have been
// acknowledged. End of stream is expressed at the type level, either by
// closing the queue (observed by every consumer) or by a Marker item that a
// single reader pushes and waits for.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by Pop once the queue is closed and empty, and by
	// Push after Close.
	ErrClosed = errors.New("queue: closed")

	// ErrTooManyDone is returned when Done is called more times than items
	// were pushed.
	ErrTooManyDone = errors.New("queue: Done called more times than items were pushed")
)

// Marker is an end-of-stream token. Each call to Queue.Mark creates a new
// one, and markers compare equal only to themselves.
type Marker struct {
	id uuid.UUID
}

// ID returns the marker's unique token.
func (m *Marker) ID() uuid.UUID {
	return m.id
}

// Item is either a value or an end-of-stream marker.
type Item[T any] struct {
	value  T
	marker *Marker
}

// Value returns the carried value. It is the zero value for markers.
func (i Item[T]) Value() T {
	return i.value
}

// Marker returns the end-of-stream marker, or nil for value items.
func (i Item[T]) Marker() *Marker {
	return i.marker
}

// IsMarker reports whether the item is an end-of-stream marker.
func (i Item[T]) IsMarker() bool {
	return i.marker != nil
}

// Is reports whether the item is exactly the given marker.
func (i Item[T]) Is(m *Marker) bool {
	return m != nil && i.marker == m
}

// Queue is a FIFO safe for any number of concurrent pushers and poppers.
// The zero value is not usable; create queues with New.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []Item[T]
	unfinished int
	closed     bool

	// changed is closed and replaced whenever the queue state changes, waking
	// every goroutine blocked in Pop or Join.
	changed chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{changed: make(chan struct{})}
}

// Push appends a value. It never blocks.
func (q *Queue[T]) Push(v T) error {
	return q.put(Item[T]{value: v})
}

// Mark appends a fresh end-of-stream marker and returns it.
func (q *Queue[T]) Mark() (*Marker, error) {
	m := &Marker{id: uuid.New()}
	if err := q.put(Item[T]{marker: m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (q *Queue[T]) put(item Item[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.unfinished++
	q.broadcastLocked()
	return nil
}

// Pop removes and returns the oldest item, blocking until one is available.
// It returns ErrClosed once the queue is closed and drained, or the context
// error if ctx is cancelled first.
func (q *Queue[T]) Pop(ctx context.Context) (Item[T], error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			var zero Item[T]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Item[T]{}, ErrClosed
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return Item[T]{}, ctx.Err()
		}
	}
}

// Done acknowledges one popped item.
func (q *Queue[T]) Done() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		return ErrTooManyDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.broadcastLocked()
	}
	return nil
}

// Join blocks until every pushed item has been acknowledged with Done.
func (q *Queue[T]) Join(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.unfinished == 0 {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the queue from accepting items. Items already buffered are
// still delivered; after that every Pop returns ErrClosed. Close is
// idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished returns the number of pushed items not yet acknowledged.
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

func (q *Queue[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
