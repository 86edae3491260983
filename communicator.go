package xcomm

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xcomm/internal/queue"
)

// Communicator maps event keys to channels and mediates registration and
// delivery. Build one per process (or per subsystem) and share the pointer
// with every producer and subscriber; there is no package-level instance.
//
// Routes are never removed. Close only stops background work.
type Communicator struct {
	cfg          Config
	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	mu     sync.RWMutex
	routes map[uint64]*route

	subsMu sync.Mutex
	subs   map[*subscription]struct{}

	metrics   *commMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// route is the set of channels registered for one key. In Broadcast mode
// every registration appends a sender; in WorkQueue mode there is exactly one.
type route struct {
	key     Key
	senders []*queue.Sender[*Message]
}

type commMetrics struct {
	registrations atomic.Uint64
	sent          atomic.Uint64
	delivered     atomic.Uint64
	received      atomic.Uint64
	noRoute       atomic.Uint64
	sendFailed    atomic.Uint64
	sendNs        atomic.Int64
}

// NewMessage returns a builder stamped with the communicator's clock.
func (c *Communicator) NewMessage() *MessageBuilder {
	return newMessageBuilder(c.clock)
}

// Register returns a handle that receives messages sent to descriptor.
//
// In Broadcast mode each call creates a private channel. In WorkQueue mode
// the first call creates the channel and later calls attach to it.
func (c *Communicator) Register(descriptor any) (*Receiver, error) {
	if c.closed.Load() {
		return nil, ErrCommunicatorClosed
	}
	key := KeyOf(descriptor)

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil, ErrCommunicatorClosed
	}
	r, ok := c.routes[key.Hash]
	if ok && r.key.Canonical != key.Canonical {
		c.mu.Unlock()
		return nil, &KeyCollisionError{Hash: key.Hash, Existing: r.key.Canonical, Incoming: key.Canonical}
	}
	if !ok {
		r = &route{key: key}
		c.routes[key.Hash] = r
	}

	var rx *queue.Receiver[*Message]
	if c.cfg.FanOut == WorkQueue && len(r.senders) > 0 {
		var err error
		rx, err = r.senders[0].NewReceiver()
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: every consumer of %s is gone", ErrChannelClosed, key.Display)
		}
	} else {
		var tx *queue.Sender[*Message]
		tx, rx = queue.New[*Message](c.cfg.QueueCapacityHint)
		r.senders = append(r.senders, tx)
	}
	channels := len(r.senders)
	c.mu.Unlock()

	c.metrics.registrations.Add(1)
	c.notifyAsync(Event{Type: Registered, Topic: key.Display, KeyHash: key.Hash, Fanout: channels})

	return &Receiver{comm: c, key: key, rx: rx}, nil
}

// Send delivers msg to the event it was built for.
//
// When some of the event's channels have lost their consumers, the message
// is still delivered to every live channel and a *SendFailedError is
// returned; check its Delivered count before retrying, since a resend reaches
// the live subscribers a second time.
func (c *Communicator) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	key, ok := msg.Key()
	if !ok {
		return ErrUnboundMessage
	}
	return c.send(ctx, key, msg)
}

// SendTo delivers msg to descriptor, ignoring any key msg was built for.
// Partial delivery is reported as in Send.
func (c *Communicator) SendTo(ctx context.Context, descriptor any, msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	return c.send(ctx, KeyOf(descriptor), msg)
}

func (c *Communicator) send(ctx context.Context, key Key, msg *Message) error {
	if c.closed.Load() {
		return ErrCommunicatorClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.metrics.sent.Add(1)

	c.mu.RLock()
	r, ok := c.routes[key.Hash]
	var (
		senders   []*queue.Sender[*Message]
		canonical string
	)
	if ok {
		senders = r.senders
		canonical = r.key.Canonical
	}
	c.mu.RUnlock()

	if !ok {
		err := &NoRouteError{Event: key.Display}
		c.metrics.noRoute.Add(1)
		c.notifyAsync(Event{Type: NoRoute, Topic: key.Display, KeyHash: key.Hash, MessageID: msg.ID(), Err: err})
		return err
	}
	if canonical != key.Canonical {
		return &KeyCollisionError{Hash: key.Hash, Existing: canonical, Incoming: key.Canonical}
	}

	start := c.clock.Now()
	c.notifyAsync(Event{Type: SendStart, Topic: key.Display, KeyHash: key.Hash, MessageID: msg.ID(), Fanout: len(senders)})

	// Deliver to every live channel even if some have lost their consumers.
	failed := 0
	for _, tx := range senders {
		if err := tx.Send(msg); err != nil {
			failed++
		}
	}
	c.metrics.delivered.Add(uint64(len(senders) - failed))

	duration := c.clock.Since(start)
	c.recordSendTime(duration.Nanoseconds())

	if failed > 0 {
		err := &SendFailedError{Event: key.Display, Failed: failed, Total: len(senders), Err: ErrChannelClosed}
		c.metrics.sendFailed.Add(1)
		c.notifyAsync(Event{Type: SendFailed, Topic: key.Display, KeyHash: key.Hash, MessageID: msg.ID(), Fanout: len(senders), Err: err})
		return err
	}

	c.notifyAsync(Event{
		Type:      SendDone,
		Topic:     key.Display,
		KeyHash:   key.Hash,
		MessageID: msg.ID(),
		Fanout:    len(senders),
		Duration:  duration,
	})
	return nil
}

// Subscribe registers for descriptor and runs handler for every delivered
// message on a background goroutine until the subscription or the
// communicator is closed. Handler errors are logged and reported to
// observers; the message is not redelivered.
func (c *Communicator) Subscribe(ctx context.Context, descriptor any, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrInvalidSubscription
	}
	rx, err := c.Register(descriptor)
	if err != nil {
		return nil, err
	}

	// recovery is always innermost
	wh := Chain(RecoveryMiddleware()(handler), c.middlewares...)

	innerCtx, cancel := context.WithCancel(ctx)
	hctx := injectEvent(injectClock(injectLogger(innerCtx, c.logger), c.clock), rx.Key())

	sub := &subscription{
		comm:   c,
		rx:     rx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.subsMu.Lock()
	if c.closed.Load() {
		c.subsMu.Unlock()
		cancel()
		_ = rx.Close()
		return nil, ErrCommunicatorClosed
	}
	c.subs[sub] = struct{}{}
	c.subsMu.Unlock()

	go sub.run(innerCtx, hctx, wh)
	return sub, nil
}

// Topics returns the keys that have been registered, ordered by display form.
func (c *Communicator) Topics() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.routes))
	for _, r := range c.routes {
		keys = append(keys, r.key)
	}
	c.mu.RUnlock()

	slices.SortFunc(keys, func(a, b Key) int { return cmp.Compare(a.Display, b.Display) })
	return keys
}

// Subscribers returns the number of open handles registered for descriptor.
func (c *Communicator) Subscribers(descriptor any) int {
	key := KeyOf(descriptor)

	c.mu.RLock()
	r, ok := c.routes[key.Hash]
	var senders []*queue.Sender[*Message]
	if ok && r.key.Canonical == key.Canonical {
		senders = r.senders
	}
	c.mu.RUnlock()

	n := 0
	for _, tx := range senders {
		n += tx.Receivers()
	}
	return n
}

// FanOut returns the configured fan-out mode.
func (c *Communicator) FanOut() FanOut { return c.cfg.FanOut }

// Metrics returns current communicator counters.
func (c *Communicator) Metrics() Metrics {
	c.mu.RLock()
	topics := len(c.routes)
	channels := 0
	for _, r := range c.routes {
		channels += len(r.senders)
	}
	c.mu.RUnlock()

	return Metrics{
		Topics:        topics,
		Channels:      channels,
		Registrations: c.metrics.registrations.Load(),
		Sent:          c.metrics.sent.Load(),
		Delivered:     c.metrics.delivered.Load(),
		Received:      c.metrics.received.Load(),
		NoRoute:       c.metrics.noRoute.Load(),
		SendFailed:    c.metrics.sendFailed.Load(),
		EventsDropped: c.observerPool.Stats().Dropped,
		AvgSendTimeMs: float64(c.metrics.sendNs.Load()) / 1e6,
	}
}

// Health reports "degraded" when more than 5% of sends failed to route or deliver.
func (c *Communicator) Health(_ context.Context) HealthStatus {
	now := c.clock.Now()
	if c.closed.Load() {
		return HealthStatus{Status: "unhealthy", Timestamp: now, Message: "communicator is closed"}
	}

	m := c.Metrics()
	status := "healthy"
	if m.Sent > 0 {
		failures := float64(m.NoRoute+m.SendFailed) / float64(m.Sent)
		if failures > 0.05 {
			status = "degraded"
		}
	}
	return HealthStatus{Status: status, Metrics: m, Timestamp: now}
}

// Close stops running subscriptions and the observer pool, then disconnects
// every channel. Routes stay registered. Handles obtained from Register can
// still drain messages queued before Close; after that Wait returns
// ErrCommunicatorClosed. Register, Subscribe and Send return
// ErrCommunicatorClosed once Close has started.
func (c *Communicator) Close(ctx context.Context) error {
	var closeErr error

	c.closeOnce.Do(func() {
		// Taking both locks orders Close after any Register or Subscribe
		// already holding them; later calls observe closed.
		c.mu.Lock()
		c.subsMu.Lock()
		c.closed.Store(true)
		subs := make([]*subscription, 0, len(c.subs))
		for s := range c.subs {
			subs = append(subs, s)
		}
		c.subsMu.Unlock()
		c.mu.Unlock()

		wctx, cancel := context.WithTimeout(ctx, c.cfg.CloseTimeout)
		defer cancel()

		for _, s := range subs {
			if err := s.stop(wctx); err != nil {
				c.logger.Warn().Err(err).Str("topic", s.rx.Key().Display).Msg("xcomm: subscription did not stop in time")
				closeErr = err
			}
		}

		c.mu.RLock()
		for _, r := range c.routes {
			for _, tx := range r.senders {
				tx.Close()
			}
		}
		c.mu.RUnlock()

		if err := c.observerPool.Close(wctx); err != nil {
			c.logger.Warn().Err(err).Msg("xcomm: observer pool shutdown timeout")
			closeErr = err
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (c *Communicator) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	c.observers = append(c.observers, obs)
	c.observersMu.Unlock()
}

// RemoveObserver removes an observer previously added. Observers of
// non-comparable types (such as ObserverFunc) cannot be removed.
func (c *Communicator) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	c.observersMu.Lock()
	defer c.observersMu.Unlock()

	for i, o := range c.observers {
		if reflect.TypeOf(o).Comparable() && o == obs {
			c.observers = slices.Delete(c.observers, i, i+1)
			break
		}
	}
}

func (c *Communicator) received(r *Receiver, msg *Message) {
	c.metrics.received.Add(1)
	c.notifyAsync(Event{Type: Received, Topic: r.key.Display, KeyHash: r.key.Hash, MessageID: msg.ID()})
}

// notifyAsync hands e to the observer pool; it never blocks.
func (c *Communicator) notifyAsync(e Event) {
	if c.closed.Load() {
		return
	}

	c.observersMu.RLock()
	if len(c.observers) == 0 {
		c.observersMu.RUnlock()
		return
	}
	observers := slices.Clone(c.observers)
	c.observersMu.RUnlock()

	c.observerPool.Notify(e, observers)
}

// recordSendTime keeps an exponential moving average of send durations.
func (c *Communicator) recordSendTime(ns int64) {
	const alpha = 0.2
	current := c.metrics.sendNs.Load()
	if current == 0 {
		c.metrics.sendNs.Store(ns)
		return
	}
	c.metrics.sendNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}

// subscription is the push consumer started by Subscribe.
type subscription struct {
	comm     *Communicator
	rx       *Receiver
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) Key() Key { return s.rx.Key() }

func (s *subscription) run(ctx, hctx context.Context, h Handler) {
	defer close(s.done)
	for {
		msg, err := s.rx.Wait(ctx)
		if err != nil {
			return
		}
		if herr := h(hctx, msg); herr != nil {
			s.comm.logger.Warn().Err(herr).
				Str("topic", s.rx.Key().Display).
				Str("message_id", msg.ID()).
				Msg("xcomm: handler failed")
			s.comm.notifyAsync(Event{Type: Error, Topic: s.rx.Key().Display, KeyHash: s.rx.Key().Hash, MessageID: msg.ID(), Err: herr})
		}
	}
}

// stop cancels the worker, waits for it and releases the consumer endpoint.
func (s *subscription) stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		_ = s.rx.Close()

		s.comm.subsMu.Lock()
		delete(s.comm.subs, s)
		s.comm.subsMu.Unlock()
	})
	return err
}

// Close stops the subscription, waiting up to the configured close timeout
// for an in-flight handler.
func (s *subscription) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.comm.cfg.CloseTimeout)
	defer cancel()
	return s.stop(ctx)
}
