package xcomm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xlog"
)

// notification is one event bound to the observers registered when it fired.
type notification struct {
	event     Event
	observers []Observer
}

// ObserverPool fans lifecycle events out to observers on background workers,
// so Send and Receive never wait on an observer. When the buffer is full the
// event is dropped and counted.
type ObserverPool struct {
	logger *xlog.Logger

	// mu guards closing of queue against concurrent Notify.
	mu     sync.RWMutex
	closed bool
	queue  chan notification

	workers sync.WaitGroup
	size    int

	dropped   atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewObserverPool starts workers goroutines reading from a buffer of
// bufferSize events. Non-positive arguments fall back to 2 workers and 1024
// slots. A nil logger disables panic reporting.
func NewObserverPool(workers, bufferSize int, logger *xlog.Logger) *ObserverPool {
	workers = positiveOr(workers, 2)
	bufferSize = positiveOr(bufferSize, 1024)

	op := &ObserverPool{
		logger: logger,
		queue:  make(chan notification, bufferSize),
		size:   workers,
	}
	op.workers.Add(workers)
	for range workers {
		go op.work()
	}
	return op
}

func positiveOr(v, def int) int {
	if v < 1 {
		return def
	}
	return v
}

// Notify queues e for observers without blocking. Events sent after Close
// are discarded.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	op.mu.RLock()
	defer op.mu.RUnlock()
	if op.closed {
		return
	}
	select {
	case op.queue <- notification{event: e, observers: observers}:
	default:
		op.dropped.Add(1)
	}
}

// work runs until the queue is closed and drained.
func (op *ObserverPool) work() {
	defer op.workers.Done()
	for n := range op.queue {
		for _, obs := range n.observers {
			op.deliver(obs, n.event)
		}
		op.processed.Add(1)
	}
}

func (op *ObserverPool) deliver(obs Observer, e Event) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			op.panics.Add(1)
			if op.logger != nil {
				op.logger.Error().
					Err(fmt.Errorf("observer panic: %v", r)).
					Str("type", string(e.Type)).
					Str("topic", e.Topic).
					Msg("xcomm: observer panicked")
			}
		}
	}()
	obs.OnEvent(e)
}

// Close stops accepting events and waits for queued ones to be delivered.
// It returns ErrObserverPoolShutdownTimeout if ctx ends first; the workers
// then finish in the background.
func (op *ObserverPool) Close(ctx context.Context) error {
	op.mu.Lock()
	if op.closed {
		op.mu.Unlock()
		return nil
	}
	op.closed = true
	close(op.queue)
	op.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		op.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrObserverPoolShutdownTimeout, ctx.Err())
	}
}

// Stats returns a snapshot of pool counters.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		Panics:       op.panics.Load(),
		ActiveEvents: len(op.queue),
		Workers:      op.size,
		BufferSize:   cap(op.queue),
	}
}
