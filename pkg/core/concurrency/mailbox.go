package concurrency

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrMailboxClosed is returned when trying to send/receive on a closed mailbox
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when trying to send to a full mailbox (backpressure)
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox is a bounded FIFO queue with a non-blocking Send and a blocking,
// context-aware Receive. A single consumer draining it gives ordered,
// one-at-a-time processing.
type Mailbox[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

// NewMailbox creates a mailbox holding at most capacity messages.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	if capacity < 1 {
		capacity = 100
	}
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Send enqueues msg without blocking.
func (mb *Mailbox[T]) Send(msg T) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrMailboxClosed
	}

	select {
	case mb.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Receive blocks until a message is available, ctx is done, or the mailbox is
// closed and drained.
func (mb *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case msg, ok := <-mb.ch:
		if !ok {
			return zero, ErrMailboxClosed
		}
		return msg, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close stops further sends. Messages already queued can still be received.
func (mb *Mailbox[T]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if !mb.closed {
		mb.closed = true
		close(mb.ch)
	}
}
