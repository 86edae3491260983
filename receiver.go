package xcomm

import (
	"context"
	"errors"

	"github.com/trickstertwo/xcomm/internal/queue"
)

// Receiver is the subscription handle returned by Register. It polls one
// consumer endpoint of a channel and is safe for concurrent use.
type Receiver struct {
	comm *Communicator
	key  Key
	rx   *queue.Receiver[*Message]
}

// Key returns the event this handle was registered for.
func (r *Receiver) Key() Key { return r.key }

// Receive pops the oldest pending message without waiting. It returns false
// when nothing is queued, and also when the channel can never deliver again;
// the two cases are not distinguished.
func (r *Receiver) Receive() (*Message, bool) {
	msg, err := r.rx.TryRecv()
	if err != nil {
		return nil, false
	}
	r.comm.received(r, msg)
	return msg, true
}

// Wait blocks until a message arrives or ctx is done. It returns
// ErrChannelClosed once this handle has been closed, and
// ErrCommunicatorClosed once the communicator is closed and nothing is left
// to drain.
func (r *Receiver) Wait(ctx context.Context) (*Message, error) {
	msg, err := r.rx.Recv(ctx)
	switch {
	case err == nil:
		r.comm.received(r, msg)
		return msg, nil
	case errors.Is(err, queue.ErrClosed):
		return nil, ErrChannelClosed
	case errors.Is(err, queue.ErrDisconnected):
		return nil, ErrCommunicatorClosed
	default:
		return nil, err
	}
}

// Pending returns the number of messages queued on this handle's channel.
func (r *Receiver) Pending() int { return r.rx.Len() }

// Close drops this consumer endpoint. When every consumer of a channel has
// been closed, sends to that channel fail with ErrSendFailed.
func (r *Receiver) Close() error {
	r.rx.Close()
	return nil
}
