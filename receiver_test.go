package xcomm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiver_ReceiveNeverBlocks(t *testing.T) {
	comm := newTestCommunicator(t, nil)
	rx, err := comm.Register(eventOne)
	require.NoError(t, err)

	start := time.Now()
	msg, ok := rx.Receive()
	assert.False(t, ok)
	assert.Nil(t, msg)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestReceiver_WaitReturnsQueuedMessage(t *testing.T) {
	comm := newTestCommunicator(t, nil)
	rx, err := comm.Register("wait")
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = comm.Send(context.Background(), comm.NewMessage().WithParam("n", 3).BuildFor("wait"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := rx.Wait(ctx)
	require.NoError(t, err)
	n, _, err := Get[int](msg, "n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReceiver_WaitHonorsContextAndClose(t *testing.T) {
	comm := newTestCommunicator(t, nil)
	rx, err := comm.Register("wait")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = rx.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, rx.Close())
	_, err = rx.Wait(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, 0, comm.Subscribers("wait"))
}

func TestSubscribe_RunsHandlerForEachMessage(t *testing.T) {
	comm := newTestCommunicator(t, nil)
	ctx := context.Background()

	got := make(chan int, 3)
	sub, err := comm.Subscribe(ctx, "push", func(ctx context.Context, msg *Message) error {
		k, ok := EventFromContext(ctx)
		if !ok || k.Display != "push" {
			return errors.New("missing event in context")
		}
		if _, ok := LoggerFromContext(ctx); !ok {
			return errors.New("missing logger in context")
		}
		if _, ok := ClockFromContext(ctx); !ok {
			return errors.New("missing clock in context")
		}
		n, _, err := Get[int](msg, "n")
		if err != nil {
			return err
		}
		got <- n
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "push", sub.Key().Display)

	for i := 1; i <= 3; i++ {
		require.NoError(t, comm.Send(ctx, comm.NewMessage().WithParam("n", i).BuildFor("push")))
	}

	for i := 1; i <= 3; i++ {
		select {
		case n := <-got:
			assert.Equal(t, i, n)
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	err = comm.Send(ctx, comm.NewMessage().BuildFor("push"))
	assert.ErrorIs(t, err, ErrSendFailed, "closing the only subscription drops the consumer side")
}

func TestSubscribe_SurvivesHandlerPanicsAndErrors(t *testing.T) {
	var errorsSeen atomic.Int64
	comm := newTestCommunicator(t, func(cb *CommunicatorBuilder) {
		cb.WithObserver(ObserverFunc(func(e Event) {
			if e.Type == Error {
				errorsSeen.Add(1)
			}
		}))
	})
	ctx := context.Background()

	var calls atomic.Int64
	done := make(chan struct{})
	_, err := comm.Subscribe(ctx, "flaky", func(ctx context.Context, msg *Message) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("failed")
		default:
			close(done)
			return nil
		}
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, comm.Send(ctx, comm.NewMessage().BuildFor("flaky")))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stopped after a failing handler")
	}
	assert.Equal(t, int64(3), calls.Load())

	require.Eventually(t, func() bool { return errorsSeen.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSubscribe_AppliesConfiguredMiddleware(t *testing.T) {
	var attempts atomic.Int64
	comm := newTestCommunicator(t, func(cb *CommunicatorBuilder) {
		cb.WithMiddleware(RetryMiddleware(RetryConfig{MaxAttempts: 3}))
	})

	done := make(chan struct{})
	_, err := comm.Subscribe(context.Background(), "retry", func(ctx context.Context, msg *Message) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, comm.Send(context.Background(), comm.NewMessage().BuildFor("retry")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not succeed")
	}
	assert.Equal(t, int64(3), attempts.Load())
}

func TestSubscribe_Validation(t *testing.T) {
	comm := newTestCommunicator(t, nil)

	_, err := comm.Subscribe(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrInvalidSubscription)
}

func TestSubscribe_StoppedByCommunicatorClose(t *testing.T) {
	comm, closeFn, err := New(nil)
	require.NoError(t, err)

	_, err = comm.Subscribe(context.Background(), "x", func(context.Context, *Message) error { return nil })
	require.NoError(t, err)

	require.NoError(t, closeFn())

	comm.subsMu.Lock()
	defer comm.subsMu.Unlock()
	assert.Empty(t, comm.subs)
}
