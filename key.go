package xcomm

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Keyer lets a descriptor choose its own canonical routing name.
type Keyer interface {
	EventKey() string
}

// Key is the routing address derived from an event descriptor.
type Key struct {
	// Hash is the 64-bit EventKey used for lookups.
	Hash uint64
	// Canonical is the string Hash was computed from. Two descriptors route
	// to the same channel only when their canonical forms are equal.
	Canonical string
	// Display is the descriptor's printable form, used in errors and logs.
	Display string
}

// String returns the display form of the descriptor.
func (k Key) String() string { return k.Display }

// KeyOf derives the Key for an arbitrary descriptor.
//
// Keyer values use their EventKey, strings are used as-is and every other
// value is rendered as "<type>:<value>", so 42, int64(42) and "42" are three
// different topics.
func KeyOf(descriptor any) Key {
	var canonical, display string
	switch d := descriptor.(type) {
	case Key:
		return d
	case Keyer:
		canonical = "key:" + d.EventKey()
		display = fmt.Sprint(d)
	case string:
		canonical = "string:" + d
		display = d
	default:
		display = fmt.Sprint(d)
		canonical = fmt.Sprintf("%T:%s", d, display)
	}
	return Key{
		Hash:      xxhash.Sum64String(canonical),
		Canonical: canonical,
		Display:   display,
	}
}
