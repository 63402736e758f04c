package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned when sending to a closed bus.
var ErrClosed = errors.New("event bus is closed")

// ErrNilEvent is returned by Send for a nil event.
var ErrNilEvent = errors.New("event bus: nil event")

// Handler receives one event. Returning true ends the subscription.
type Handler func(e Event) (done bool)

// Subscription is a registered handler for a topic pattern.
type Subscription struct {
	id      uint64
	pattern string
	handler Handler

	mu     sync.Mutex
	ch     chan Event // set for channel subscriptions
	closed bool
}

// Pattern returns the topic pattern of the subscription.
func (s *Subscription) Pattern() string { return s.pattern }

func (s *Subscription) offer(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// Channel full, drop event (non-blocking)
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ch != nil {
		close(s.ch)
	}
}

// Match reports whether topic matches pattern. "*" matches everything,
// a trailing "*" matches by prefix, anything else must match exactly.
func Match(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithMinSeverity drops leveled events below min.
func WithMinSeverity(min Severity) Option {
	return func(b *EventBus) { b.minSeverity = min }
}

// WithLogger sets the logger used to report misbehaving subscribers.
func WithLogger(logger *zap.Logger) Option {
	return func(b *EventBus) { b.logger = logger }
}

// EventBus is a multi-producer, single-consumer event bus. Send never blocks;
// one background goroutine dispatches events in the order they were sent, so
// handlers are never called concurrently with each other.
type EventBus struct {
	mu     sync.Mutex // guards queue and closed
	queue  []Event
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	subsMu sync.RWMutex
	subs   []*Subscription
	nextID atomic.Uint64

	minSeverity Severity
	logger      *zap.Logger
	closeOnce   sync.Once
}

// NewEventBus creates a bus and starts its dispatch goroutine.
func NewEventBus(opts ...Option) *EventBus {
	b := &EventBus{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

// Send queues e for dispatch.
func (b *EventBus) Send(e Event) error {
	if e == nil {
		return ErrNilEvent
	}
	if lv, ok := e.(Leveled); ok && lv.Severity() < b.minSeverity {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.queue = append(b.queue, e)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
		// Worker already signalled
	}
	return nil
}

// Publish is Send that first honours ctx.
func (b *EventBus) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Send(e)
}

// Subscribe registers handler for topics matching pattern.
func (b *EventBus) Subscribe(pattern string, handler Handler) *Subscription {
	sub := &Subscription{
		id:      b.nextID.Add(1),
		pattern: pattern,
		handler: handler,
	}
	b.addSubscription(sub)
	return sub
}

// SubscribeChan returns a channel that receives events matching pattern.
// bufSize determines the channel buffer size (defaults to 256 if <= 0).
// Events are dropped for this subscriber when the channel is full. The
// channel is closed when the bus closes.
func (b *EventBus) SubscribeChan(pattern string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}

	sub := &Subscription{
		id:      b.nextID.Add(1),
		pattern: pattern,
		ch:      make(chan Event, bufSize),
	}
	sub.handler = func(e Event) bool {
		sub.offer(e)
		return false
	}
	b.addSubscription(sub)
	return sub.ch
}

// SubscribeAll is SubscribeChan for every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.SubscribeChan("*", bufSize)
}

func (b *EventBus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		sub.close()
		return
	}

	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()
}

// Unsubscribe removes sub. Safe to call more than once.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.subsMu.Lock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.subsMu.Unlock()
	sub.close()
}

// Close stops accepting events, dispatches whatever is still queued and
// waits for the dispatch goroutine to exit. Safe to call multiple times.
func (b *EventBus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.stop)
		<-b.done

		b.subsMu.Lock()
		subs := b.subs
		b.subs = nil
		b.subsMu.Unlock()
		for _, sub := range subs {
			sub.close()
		}
	})
	return nil
}

func (b *EventBus) run() {
	defer close(b.done)
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.stop:
			b.drain()
			return
		}
	}
}

func (b *EventBus) drain() {
	for {
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			b.dispatch(e)
		}
	}
}

func (b *EventBus) dispatch(e Event) {
	b.subsMu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.subsMu.RUnlock()

	for _, sub := range subs {
		if !Match(sub.pattern, e.Topic()) {
			continue
		}
		if b.deliver(sub, e) {
			b.Unsubscribe(sub)
		}
	}
}

func (b *EventBus) deliver(sub *Subscription, e Event) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				zap.String("topic", e.Topic()),
				zap.String("pattern", sub.pattern),
				zap.Any("panic", r))
			done = false
		}
	}()
	return sub.handler(e)
}
