package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	tx, rx := New[int](0)

	for i := 0; i < 200; i++ {
		require.NoError(t, tx.Send(i))
	}
	assert.Equal(t, 200, rx.Len())

	for i := 0; i < 200; i++ {
		v, err := rx.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rx.IsEmpty())
}

func TestQueue_TryRecvEmpty(t *testing.T) {
	_, rx := New[string](4)

	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_SendAfterReceiversClosed(t *testing.T) {
	tx, rx := New[int](0)
	extra, err := tx.NewReceiver()
	require.NoError(t, err)
	assert.Equal(t, 2, tx.Receivers())

	rx.Close()
	require.NoError(t, tx.Send(1), "one receiver is still open")
	assert.Equal(t, 1, tx.Receivers())

	extra.Close()
	assert.Zero(t, tx.Receivers())
	assert.ErrorIs(t, tx.Send(2), ErrDisconnected)

	_, err = tx.NewReceiver()
	assert.ErrorIs(t, err, ErrDisconnected, "a disconnected queue cannot be revived")
}

func TestQueue_DrainAfterSenderClosed(t *testing.T) {
	tx, rx := New[int](0)
	require.NoError(t, tx.Send(7))
	tx.Close()

	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestQueue_ClosedEndpoints(t *testing.T) {
	tx, rx := New[int](0)
	other, err := tx.NewReceiver()
	require.NoError(t, err)

	tx.Close()
	tx.Close()
	assert.ErrorIs(t, tx.Send(1), ErrClosed)

	rx.Close()
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = other.TryRecv()
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestQueue_RecvWaitsForItem(t *testing.T) {
	tx, rx := New[int](0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tx.Send(42)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestQueue_RecvHonorsContext(t *testing.T) {
	_, rx := New[int](0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_RecvReturnsWhenSenderGone(t *testing.T) {
	tx, rx := New[int](0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tx.Close()
	}()

	_, err := rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	const producers, perProducer = 8, 500

	tx, rx := New[int](0)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = tx.Send(i)
			}
		}()
	}

	var mu sync.Mutex
	got := 0
	var cg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cg.Add(1)
		consumer, err := tx.NewReceiver()
		require.NoError(t, err)
		go func() {
			defer cg.Done()
			for {
				_, err := consumer.Recv(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				got++
				mu.Unlock()
			}
		}()
	}

	rx.Close()
	wg.Wait()
	tx.Close()
	cg.Wait()

	assert.Equal(t, producers*perProducer, got)
}
