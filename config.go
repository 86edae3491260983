package xcomm

import (
	"fmt"
	"time"
)

// Config controls communicator behavior.
type Config struct {
	// FanOut selects broadcast or work-queue registration semantics (default: Broadcast).
	FanOut FanOut
	// QueueCapacityHint pre-sizes each channel backlog; channels stay unbounded (default: 16).
	QueueCapacityHint int
	// ObserverWorkers is the number of observer dispatch goroutines (default: 2).
	ObserverWorkers int
	// ObserverBuffer is the observer event buffer; events beyond it are dropped (default: 1024).
	ObserverBuffer int
	// CloseTimeout bounds how long Close waits for observers and subscriptions (default: 5s).
	CloseTimeout time.Duration
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		FanOut:            Broadcast,
		QueueCapacityHint: 16,
		ObserverWorkers:   2,
		ObserverBuffer:    1024,
		CloseTimeout:      5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.FanOut {
	case Broadcast, WorkQueue:
	default:
		return fmt.Errorf("config: unknown fan_out %q", c.FanOut)
	}
	if c.QueueCapacityHint < 0 {
		return fmt.Errorf("config: queue_capacity_hint must be >= 0, got %d", c.QueueCapacityHint)
	}
	if c.ObserverWorkers < 1 {
		return fmt.Errorf("config: observer_workers must be >= 1, got %d", c.ObserverWorkers)
	}
	if c.ObserverBuffer < 1 {
		return fmt.Errorf("config: observer_buffer must be >= 1, got %d", c.ObserverBuffer)
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("config: close_timeout must be > 0, got %v", c.CloseTimeout)
	}
	return nil
}

// ConfigFromMap converts a generic map into Config, falling back to defaults
// for missing or malformed keys.
func ConfigFromMap(cfg map[string]any) Config {
	d := DefaultConfig()

	getInt := func(k string, def int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return def
		}
	}

	getDur := func(k string, def time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return def
	}

	fanOut := d.FanOut
	switch v := cfg["fan_out"].(type) {
	case FanOut:
		fanOut = v
	case string:
		if v != "" {
			fanOut = FanOut(v)
		}
	}

	return Config{
		FanOut:            fanOut,
		QueueCapacityHint: maxInt(0, getInt("queue_capacity_hint", d.QueueCapacityHint)),
		ObserverWorkers:   maxInt(1, getInt("observer_workers", d.ObserverWorkers)),
		ObserverBuffer:    maxInt(1, getInt("observer_buffer", d.ObserverBuffer)),
		CloseTimeout:      getDur("close_timeout", d.CloseTimeout),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
