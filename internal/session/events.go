package session

import (
	"sync"
	"time"

	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// LifecycleType identifies a session lifecycle transition.
type LifecycleType string

const (
	EventPaired       LifecycleType = "paired"
	EventConnected    LifecycleType = "connected"
	EventDisconnected LifecycleType = "disconnected"
	EventLoggedOut    LifecycleType = "logged_out"
)

// LifecycleEvent is published to bus subscribers on every transition.
type LifecycleEvent struct {
	Type      LifecycleType `json:"type"`
	TenantID  string        `json:"tenant_id"`
	AccountID string        `json:"account_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	At        time.Time     `json:"at"`
}

const subscriptionBuffer = 128

// Subscription is a registered listener. Each subscription has its own
// delivery goroutine, so one slow handler never stalls another, while
// events for a given tenant reach each handler in publish order.
type Subscription struct {
	bus  *Bus
	ch   chan LifecycleEvent
	once sync.Once
}

// Unsubscribe detaches the listener and stops its delivery goroutine.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus fans lifecycle events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a handler and returns its unsubscribe handle.
func (b *Bus) Subscribe(handler func(LifecycleEvent)) *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan LifecycleEvent, subscriptionBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for event := range sub.ch {
			handler(event)
		}
	}()

	return sub
}

// Publish delivers the event to every current subscriber. A subscriber
// whose buffer is full loses the event rather than blocking the publisher.
func (b *Bus) Publish(event LifecycleEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			logger.Base().Warn("Dropping lifecycle event for slow subscriber",
				zap.String("type", string(event.Type)),
				zap.String("tenant_id", event.TenantID))
		}
	}
}

// Close detaches all subscribers. Further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(b.subs, sub)
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}
