// Package pubsub is the in-process event bus that feeds GraphQL
// subscriptions.
//
// HOW DELIVERY WORKS:
// Every Subscribe call gets its own buffered channel. Publish walks the
// subscribers of a topic and does a non-blocking send into each channel. A
// subscriber whose buffer is full misses that event; the drop is counted and
// logged, and the publisher moves on. Publishing therefore never waits on a
// slow WebSocket client.
//
// There is no replay: a subscriber only sees events published after its
// Subscribe call returned. Events never leave the process.
package pubsub

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Topics used by the resolvers.
const (
	TopicPhotoAdded = "photo-added"
	TopicUserAdded  = "user-added"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 16

// Bus fans events out to the subscribers of a topic.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	closed  bool
	buffer  int
	dropped atomic.Int64
	logger  *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		logger: logger,
	}
}

// Subscription is one consumer's registration on a topic.
type Subscription struct {
	topic string
	ch    chan any
	bus   *Bus
}

// Events returns the channel events arrive on. It is closed by Close or when
// the bus shuts down.
func (s *Subscription) Events() <-chan any {
	return s.ch
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close unregisters the subscription. Once Close returns, no further event
// is delivered. Calling it more than once is fine.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Subscribe registers a new subscriber on topic.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan any, b.buffer), bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[sub.topic]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.ch)
}

// Publish delivers payload to every current subscriber of topic and returns
// how many received it. It never blocks.
func (b *Bus) Publish(topic string, payload any) int {
	// A read lock is enough: sends don't mutate the registry, and channels
	// are only closed under the write lock.
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			b.dropped.Add(1)
			b.logger.Warn("dropping event for slow subscriber",
				slog.String("topic", topic),
			)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription. Later Subscribe calls return an already
// closed subscription and Publish delivers to nobody.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
}
