package xcomm

import "time"

// FanOut selects how multiple registrations for one event share messages.
type FanOut string

const (
	// Broadcast gives every registration a private channel; each one receives
	// its own copy of every message.
	Broadcast FanOut = "broadcast"
	// WorkQueue gives every registration a handle on one shared channel;
	// handles compete and each message is received once.
	WorkQueue FanOut = "work_queue"
)

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events delivered to their observers
	Panics       uint64 // Observer calls that panicked
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics is a snapshot of communicator counters.
type Metrics struct {
	Topics        int
	Channels      int
	Registrations uint64
	Sent          uint64
	Delivered     uint64
	Received      uint64
	NoRoute       uint64
	SendFailed    uint64
	EventsDropped uint64
	AvgSendTimeMs float64
}

// HealthStatus summarizes communicator health.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
