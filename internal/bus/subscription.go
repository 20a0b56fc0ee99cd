package bus

import (
	"sync"
	"sync/atomic"
)

// Subscription is a revocable handle returned by Subscribe.
type Subscription struct {
	bus     *Bus
	topic   Topic
	id      uint64
	handler Handler
	revoked atomic.Bool
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Active reports whether the handler can still fire.
func (s *Subscription) Active() bool {
	return s != nil && !s.revoked.Load()
}

// Revoke removes the handler. Safe to call more than once.
func (s *Subscription) Revoke() {
	if s == nil || !s.revoked.CompareAndSwap(false, true) {
		return
	}
	s.bus.remove(s)
}

// SubscriptionSet collects the subscriptions made on behalf of one owner so
// they can be revoked together when the owner goes away.
type SubscriptionSet struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Subscribe subscribes on b and tracks the handle.
func (set *SubscriptionSet) Subscribe(b *Bus, topic Topic, h Handler) *Subscription {
	return set.Track(b.Subscribe(topic, h))
}

// Track adds an existing handle to the set.
func (set *SubscriptionSet) Track(s *Subscription) *Subscription {
	set.mu.Lock()
	set.subs = append(set.subs, s)
	set.mu.Unlock()
	return s
}

// RevokeAll revokes every tracked handle and empties the set. It returns the
// number of handles that were still active.
func (set *SubscriptionSet) RevokeAll() int {
	set.mu.Lock()
	subs := set.subs
	set.subs = nil
	set.mu.Unlock()

	n := 0
	for _, s := range subs {
		if s.Active() {
			n++
		}
		s.Revoke()
	}
	return n
}

// Len returns the number of tracked handles.
func (set *SubscriptionSet) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.subs)
}
