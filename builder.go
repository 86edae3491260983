package xcomm

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// CommunicatorBuilder constructs Communicator instances (Builder pattern).
type CommunicatorBuilder struct {
	cfg         Config
	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
}

// NewCommunicatorBuilder returns a builder with DefaultConfig.
func NewCommunicatorBuilder() *CommunicatorBuilder {
	return &CommunicatorBuilder{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (cb *CommunicatorBuilder) WithConfig(cfg Config) *CommunicatorBuilder {
	cb.cfg = cfg
	return cb
}

// WithConfigMap applies a generic map via ConfigFromMap.
func (cb *CommunicatorBuilder) WithConfigMap(cfg map[string]any) *CommunicatorBuilder {
	cb.cfg = ConfigFromMap(cfg)
	return cb
}

func (cb *CommunicatorBuilder) WithFanOut(f FanOut) *CommunicatorBuilder {
	cb.cfg.FanOut = f
	return cb
}

func (cb *CommunicatorBuilder) WithQueueCapacityHint(n int) *CommunicatorBuilder {
	cb.cfg.QueueCapacityHint = n
	return cb
}

// WithObserverPool sizes the asynchronous observer dispatcher.
func (cb *CommunicatorBuilder) WithObserverPool(workers, bufferSize int) *CommunicatorBuilder {
	if workers > 0 {
		cb.cfg.ObserverWorkers = workers
	}
	if bufferSize > 0 {
		cb.cfg.ObserverBuffer = bufferSize
	}
	return cb
}

func (cb *CommunicatorBuilder) WithCloseTimeout(d time.Duration) *CommunicatorBuilder {
	if d > 0 {
		cb.cfg.CloseTimeout = d
	}
	return cb
}

// WithMiddleware adds handler middlewares for Subscribe.
func (cb *CommunicatorBuilder) WithMiddleware(mw ...Middleware) *CommunicatorBuilder {
	cb.middlewares = append(cb.middlewares, mw...)
	return cb
}

func (cb *CommunicatorBuilder) WithObserver(obs ...Observer) *CommunicatorBuilder {
	for _, o := range obs {
		if o != nil {
			cb.observers = append(cb.observers, o)
		}
	}
	return cb
}

func (cb *CommunicatorBuilder) WithLogger(l *xlog.Logger) *CommunicatorBuilder {
	cb.logger = l
	return cb
}

func (cb *CommunicatorBuilder) WithClock(c xclock.Clock) *CommunicatorBuilder {
	cb.clock = c
	return cb
}

// Build validates the configuration and returns a ready Communicator.
func (cb *CommunicatorBuilder) Build() (*Communicator, error) {
	if err := cb.cfg.Validate(); err != nil {
		return nil, err
	}

	clk := cb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := cb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	c := &Communicator{
		cfg:          cb.cfg,
		clock:        clk,
		logger:       lg,
		middlewares:  cb.middlewares,
		observerPool: NewObserverPool(cb.cfg.ObserverWorkers, cb.cfg.ObserverBuffer, lg),
		routes:       make(map[uint64]*route),
		subs:         make(map[*subscription]struct{}),
		metrics:      &commMetrics{},
	}

	// Logging observer first unless the caller supplied one.
	hasLoggingObserver := false
	for _, o := range cb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		c.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range cb.observers {
		c.AddObserver(o)
	}

	return c, nil
}

// New constructs a Communicator via the builder and returns a close func for convenience.
func New(init func(cb *CommunicatorBuilder)) (*Communicator, func() error, error) {
	cb := NewCommunicatorBuilder()
	if init != nil {
		init(cb)
	}
	c, err := cb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return c.Close(context.Background()) }
	return c, closeFn, nil
}
