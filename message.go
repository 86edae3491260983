package xcomm

import (
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// param is one entry of the payload store: the dynamic type recorded at
// insertion and the value itself.
type param struct {
	typ reflect.Type
	val any
}

// Message is an immutable set of named parameters, optionally addressed to an
// event. A Message is shared by pointer across every subscriber it is
// delivered to; it owns its parameters and is safe for concurrent reads.
type Message struct {
	id         string
	key        Key
	bound      bool
	producedAt time.Time
	params     map[string]param
}

// ID returns the message identifier (UUIDv7).
func (m *Message) ID() string { return m.id }

// ProducedAt returns the time the message was finalized.
func (m *Message) ProducedAt() time.Time { return m.producedAt }

// Key returns the event the message is addressed to, if any.
func (m *Message) Key() (Key, bool) { return m.key, m.bound }

// Has reports whether name was set.
func (m *Message) Has(name string) bool {
	_, ok := m.params[name]
	return ok
}

// Len returns the number of parameters.
func (m *Message) Len() int { return len(m.params) }

// Names returns the parameter names in sorted order.
func (m *Message) Names() []string {
	return slices.Sorted(maps.Keys(m.params))
}

// TypeOf returns the type a parameter was stored with, or nil if absent.
func (m *Message) TypeOf(name string) reflect.Type {
	return m.params[name].typ
}

// Get reads parameter name as T.
//
// It returns ok == false when name was never set, and a *TypeMismatchError
// when the stored value is not a T. Every successful read is an independent
// copy: values with a `Clone() T` method are cloned, and slices, maps and
// pointers are deep-copied, so concurrent readers never share memory.
func Get[T any](m *Message, name string) (T, bool, error) {
	var zero T
	if m == nil {
		return zero, false, nil
	}
	p, ok := m.params[name]
	if !ok {
		return zero, false, nil
	}

	requested := reflect.TypeFor[T]()
	if p.val == nil {
		if requested.Kind() == reflect.Interface {
			return zero, true, nil
		}
		return zero, false, &TypeMismatchError{Name: name, Stored: p.typ, Requested: requested}
	}

	v, ok := p.val.(T)
	if !ok {
		return zero, false, &TypeMismatchError{Name: name, Stored: p.typ, Requested: requested}
	}
	if c, ok := any(v).(interface{ Clone() T }); ok {
		return c.Clone(), true, nil
	}
	return ownedCopy(v).(T), true, nil
}

// MessageBuilder accumulates parameters for a single Message.
// It is not safe for concurrent use and cannot be reused after Build.
type MessageBuilder struct {
	clock    xclock.Clock
	params   map[string]param
	consumed bool
}

// NewMessageBuilder returns an empty builder using the default clock.
func NewMessageBuilder() *MessageBuilder {
	return newMessageBuilder(nil)
}

func newMessageBuilder(clk xclock.Clock) *MessageBuilder {
	if clk == nil {
		clk = xclock.Default()
	}
	return &MessageBuilder{
		clock:  clk,
		params: make(map[string]param),
	}
}

// WithParam stores a copy of value under name, replacing any previous value
// and type. Later changes to value do not reach the message.
func (mb *MessageBuilder) WithParam(name string, value any) *MessageBuilder {
	mb.mustBeOpen()
	mb.params[name] = param{typ: reflect.TypeOf(value), val: ownedCopy(value)}
	return mb
}

// Build finalizes a message that is not bound to an event; route it with
// Communicator.SendTo.
func (mb *MessageBuilder) Build() *Message {
	return mb.finalize(Key{}, false)
}

// BuildFor finalizes a message addressed to descriptor.
func (mb *MessageBuilder) BuildFor(descriptor any) *Message {
	return mb.finalize(KeyOf(descriptor), true)
}

func (mb *MessageBuilder) finalize(key Key, bound bool) *Message {
	mb.mustBeOpen()
	mb.consumed = true

	msg := &Message{
		id:         newMessageID(),
		key:        key,
		bound:      bound,
		producedAt: mb.clock.Now(),
		params:     mb.params,
	}
	mb.params = nil
	return msg
}

func (mb *MessageBuilder) mustBeOpen() {
	if mb.consumed {
		panic(ErrBuilderConsumed)
	}
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
