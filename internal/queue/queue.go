// Package queue provides an unbounded multi-producer/multi-consumer FIFO with
// one sender endpoint and any number of receiver endpoints.
//
// A queue reports ErrDisconnected to the sender once every receiver has been
// closed, and to receivers once the sender has been closed and the backlog
// has been drained.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrEmpty is returned by TryRecv when nothing is queued.
	ErrEmpty = errors.New("queue: empty")
	// ErrDisconnected is returned when the opposite side of the queue is gone.
	ErrDisconnected = errors.New("queue: disconnected")
	// ErrClosed is returned when the endpoint itself has been closed.
	ErrClosed = errors.New("queue: endpoint closed")
)

// compactThreshold bounds how many consumed slots are kept before the
// backing slice is shifted.
const compactThreshold = 64

type state[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	// ready is closed and replaced whenever items arrive or an endpoint goes away.
	ready chan struct{}

	senderGone bool
	receivers  int
}

func (s *state[T]) signal() {
	close(s.ready)
	s.ready = make(chan struct{})
}

func (s *state[T]) pending() int {
	return len(s.items) - s.head
}

func (s *state[T]) pop() T {
	var zero T
	v := s.items[s.head]
	s.items[s.head] = zero
	s.head++
	switch {
	case s.head == len(s.items):
		s.items = s.items[:0]
		s.head = 0
	case s.head >= compactThreshold && s.head*2 >= len(s.items):
		n := copy(s.items, s.items[s.head:])
		clear(s.items[n:])
		s.items = s.items[:n]
		s.head = 0
	}
	return v
}

// New creates a queue and returns its first sender and receiver endpoints.
// capHint pre-sizes the backlog; it is not a bound.
func New[T any](capHint int) (*Sender[T], *Receiver[T]) {
	if capHint < 0 {
		capHint = 0
	}
	s := &state[T]{
		items:     make([]T, 0, capHint),
		ready:     make(chan struct{}),
		receivers: 1,
	}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Sender is the producing endpoint. It is safe for concurrent use by any
// number of producers.
type Sender[T any] struct {
	s      *state[T]
	closed atomic.Bool
}

// Send appends v to the queue. It never blocks.
func (tx *Sender[T]) Send(v T) error {
	if tx.closed.Load() {
		return ErrClosed
	}
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receivers == 0 {
		return ErrDisconnected
	}
	s.items = append(s.items, v)
	s.signal()
	return nil
}

// Receivers returns the number of open receivers.
func (tx *Sender[T]) Receivers() int {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receivers
}

// NewReceiver attaches another receiver to the queue. It fails with
// ErrDisconnected once every receiver has been closed; a disconnected queue
// cannot be revived.
func (tx *Sender[T]) NewReceiver() (*Receiver[T], error) {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receivers == 0 {
		return nil, ErrDisconnected
	}
	s.receivers++
	return &Receiver[T]{s: s}, nil
}

// Close stops production. Receivers drain what is queued and then get
// ErrDisconnected. Closing twice is a no-op.
func (tx *Sender[T]) Close() {
	if tx.closed.Swap(true) {
		return
	}
	s := tx.s
	s.mu.Lock()
	s.senderGone = true
	s.signal()
	s.mu.Unlock()
}

// Receiver is a consuming endpoint. Receivers attached to the same queue share
// one backlog and compete for items. It is safe for concurrent use.
type Receiver[T any] struct {
	s      *state[T]
	closed atomic.Bool
}

// TryRecv pops the oldest item without waiting.
func (rx *Receiver[T]) TryRecv() (T, error) {
	var zero T
	if rx.closed.Load() {
		return zero, ErrClosed
	}
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending() > 0 {
		return s.pop(), nil
	}
	if s.senderGone {
		return zero, ErrDisconnected
	}
	return zero, ErrEmpty
}

// Recv pops the oldest item, waiting until one arrives, the sender is gone
// or ctx is done.
func (rx *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		if rx.closed.Load() {
			return zero, ErrClosed
		}
		s := rx.s
		s.mu.Lock()
		if s.pending() > 0 {
			v := s.pop()
			s.mu.Unlock()
			return v, nil
		}
		if s.senderGone {
			s.mu.Unlock()
			return zero, ErrDisconnected
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ready:
		}
	}
}

// IsEmpty reports whether nothing is currently queued.
func (rx *Receiver[T]) IsEmpty() bool {
	return rx.Len() == 0
}

// Len returns the number of queued items.
func (rx *Receiver[T]) Len() int {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending()
}

// Close releases this endpoint. Once every receiver is closed the backlog is
// dropped and the sender gets ErrDisconnected.
func (rx *Receiver[T]) Close() {
	if rx.closed.Swap(true) {
		return
	}
	s := rx.s
	s.mu.Lock()
	s.receivers--
	if s.receivers == 0 {
		clear(s.items)
		s.items = s.items[:0]
		s.head = 0
	}
	s.signal()
	s.mu.Unlock()
}
