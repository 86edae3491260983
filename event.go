package xcomm

import (
	"time"
)

// EventType enumerates communicator lifecycle events for observers.
type EventType string

const (
	Registered EventType = "registered"
	SendStart  EventType = "send_start"
	SendDone   EventType = "send_done"
	Received   EventType = "received"
	NoRoute    EventType = "no_route"
	SendFailed EventType = "send_failed"
	Error      EventType = "error"
)

// Event carries telemetry for observers.
type Event struct {
	Type      EventType
	Topic     string
	KeyHash   uint64
	MessageID string
	// Fanout is the number of channels a send targeted.
	Fanout   int
	Duration time.Duration
	Err      error
}
