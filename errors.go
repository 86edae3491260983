package xcomm

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNoRoute matches *NoRouteError.
	ErrNoRoute = errors.New("xcomm: no route")
	// ErrSendFailed matches *SendFailedError.
	ErrSendFailed = errors.New("xcomm: send failed")
	// ErrTypeMismatch matches *TypeMismatchError.
	ErrTypeMismatch = errors.New("xcomm: type mismatch")

	ErrKeyCollision        = errors.New("xcomm: event key collision")
	ErrChannelClosed       = errors.New("xcomm: channel closed")
	ErrUnboundMessage      = errors.New("xcomm: message is not bound to an event")
	ErrNilMessage          = errors.New("xcomm: nil message")
	ErrBuilderConsumed     = errors.New("xcomm: message builder already finalized")
	ErrCommunicatorClosed  = errors.New("xcomm: communicator is closed")
	ErrInvalidSubscription = errors.New("xcomm: invalid subscription")
	ErrHandlerPanic        = errors.New("xcomm: handler panic")

	ErrObserverPoolShutdownTimeout = errors.New("xcomm: observer pool shutdown timeout")
)

// NoRouteError reports a send to an event nobody registered for.
type NoRouteError struct {
	Event string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("xcomm: no route for event %s", e.Event)
}

func (e *NoRouteError) Is(target error) bool { return target == ErrNoRoute }

// SendFailedError reports a registered event whose channel(s) no longer have
// a consumer. Routes are never removed, so the condition is permanent.
//
// In Broadcast mode the message may still have reached the live channels;
// Delivered reports how many. Resending after a partial delivery duplicates
// the message for those subscribers.
type SendFailedError struct {
	Event  string
	Failed int
	Total  int
	Err    error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("xcomm: message could not be sent for event %s (%d of %d channels closed, delivered to %d)",
		e.Event, e.Failed, e.Total, e.Delivered())
}

// Delivered returns the number of channels that accepted the message.
func (e *SendFailedError) Delivered() int { return e.Total - e.Failed }

// Partial reports whether at least one channel accepted the message.
func (e *SendFailedError) Partial() bool { return e.Delivered() > 0 }

func (e *SendFailedError) Is(target error) bool { return target == ErrSendFailed }

func (e *SendFailedError) Unwrap() error { return e.Err }

// TypeMismatchError reports a parameter read with a type other than the one
// it was stored with.
type TypeMismatchError struct {
	Name      string
	Stored    reflect.Type
	Requested reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("xcomm: parameter %q holds %v, requested %v", e.Name, e.Stored, e.Requested)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// KeyCollisionError reports two distinct descriptors hashing to the same key.
type KeyCollisionError struct {
	Hash     uint64
	Existing string
	Incoming string
}

func (e *KeyCollisionError) Error() string {
	return fmt.Sprintf("xcomm: event key %016x already used by %q, refusing %q", e.Hash, e.Existing, e.Incoming)
}

func (e *KeyCollisionError) Is(target error) bool { return target == ErrKeyCollision }
