// Package bus is the synchronous publish/subscribe channel shared by every
// component of a game process. A Bus is created once and injected; nothing
// reaches for a global.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/holoquest/internal/logging"
)

// DefaultHistory is the number of messages kept for Recent.
const DefaultHistory = 256

// Message is a published payload on a topic.
type Message struct {
	Seq       uint64    `json:"seq"`
	Topic     Topic     `json:"topic"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Handler receives messages synchronously on the publisher's goroutine.
type Handler func(Message)

// Journal persists selected messages. Append is called from the bus's
// journal writer goroutine, never from Publish. Implementations live in
// internal/storage.
type Journal interface {
	Append(ts time.Time, topic string, payload interface{}) error
}

// Bus delivers every message to the current subscribers of its topic, in
// registration order, before Publish returns.
type Bus struct {
	mu       sync.Mutex
	handlers map[Topic][]*Subscription
	nextID   uint64
	seq      uint64

	tapMu sync.RWMutex
	taps  map[Tap]struct{}

	history *RingBuffer
	now     func() time.Time
	log     *logging.Logger

	journal       Journal
	journalTopics map[Topic]struct{}
	journalQueue  int
	journalFailed atomic.Bool
	writer        *journalWriter
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistory sets the size of the Recent buffer.
func WithHistory(n int) Option {
	return func(b *Bus) { b.history = NewRingBuffer(n) }
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLogger sets the logger used for journal failures.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// WithJournal persists messages on the given topics. With no topics every
// topic except system.error is persisted.
func WithJournal(j Journal, topics ...Topic) Option {
	return func(b *Bus) {
		b.journal = j
		if len(topics) == 0 {
			return
		}
		b.journalTopics = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			b.journalTopics[t] = struct{}{}
		}
	}
}

// WithJournalQueue bounds the messages waiting to be journaled. n <= 0 uses
// DefaultJournalQueue.
func WithJournalQueue(n int) Option {
	return func(b *Bus) { b.journalQueue = n }
}

// New creates a Bus. With a journal attached it starts the journal writer;
// call CloseJournal to drain it.
func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[Topic][]*Subscription),
		taps:     make(map[Tap]struct{}),
		history:  NewRingBuffer(DefaultHistory),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.journal != nil {
		b.writer = newJournalWriter(b.journal, b.journalQueue)
		go b.writer.run(b)
	}
	return b
}

// Subscribe registers h for topic. The returned handle revokes it.
func (b *Bus) Subscribe(topic Topic, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{
		bus:     b,
		topic:   topic,
		id:      b.nextID,
		handler: h,
	}
	b.handlers[topic] = append(b.handlers[topic], s)
	return s
}

// Publish validates the topic and delivers the message to every subscriber.
// Handlers may publish; nested messages are delivered depth-first.
func (b *Bus) Publish(topic Topic, payload any) error {
	if err := Validate(topic); err != nil {
		return err
	}

	b.mu.Lock()
	b.seq++
	m := Message{
		Seq:       b.seq,
		Topic:     topic,
		Payload:   payload,
		Timestamp: b.now().UTC(),
	}
	subs := append([]*Subscription(nil), b.handlers[topic]...)
	b.mu.Unlock()

	b.history.Add(m)
	b.persist(m)
	b.broadcast(m)

	for _, s := range subs {
		// Revoked by an earlier handler of this same message.
		if !s.Active() {
			continue
		}
		s.handler(m)
	}
	return nil
}

// Recent returns up to n of the most recent messages, oldest first.
// n <= 0 returns everything buffered.
func (b *Bus) Recent(n int) []Message {
	all := b.history.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}

// Published returns the number of messages published so far.
func (b *Bus) Published() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// JournalHealthy reports whether a journal is attached and no append has
// failed yet.
func (b *Bus) JournalHealthy() bool {
	return b.journal != nil && !b.journalFailed.Load()
}

// JournalStats reports messages journaled and messages dropped because the
// queue was full or the journal was closed.
func (b *Bus) JournalStats() (written, dropped uint64) {
	if b.writer == nil {
		return 0, 0
	}
	return b.writer.written.Load(), b.writer.dropped.Load()
}

// CloseJournal stops journaling and waits for queued messages to be
// appended. Later publishes are delivered but not journaled.
func (b *Bus) CloseJournal() {
	if b.writer != nil {
		b.writer.close()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[s.topic]
	for i, cur := range subs {
		if cur == s {
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, s.topic)
			} else {
				b.handlers[s.topic] = next
			}
			return
		}
	}
}

func (b *Bus) persist(m Message) {
	if b.writer == nil || m.Topic == TopicSystemError {
		return
	}
	if b.journalTopics != nil {
		if _, ok := b.journalTopics[m.Topic]; !ok {
			return
		}
	}
	if !b.writer.enqueue(m) && b.writer.dropped.Load() == 1 {
		b.log.Warn("bus.journal_full", "journal queue full, dropping messages", map[string]interface{}{
			"topic": string(m.Topic),
		})
	}
}

// journalError runs on the writer goroutine. Only the first failure is
// reported, straight to history and taps so it cannot recurse through Publish.
func (b *Bus) journalError(m Message, err error) {
	if !b.journalFailed.CompareAndSwap(false, true) {
		return
	}
	b.log.Error("bus.journal_failed", "journal append failed", map[string]interface{}{
		"topic": string(m.Topic),
		"error": err.Error(),
	})
	b.mu.Lock()
	b.seq++
	errMsg := Message{
		Seq:       b.seq,
		Topic:     TopicSystemError,
		Payload:   Notice{Text: "journal append failed: " + err.Error(), Severity: "error", Source: "bus"},
		Timestamp: b.now().UTC(),
	}
	b.mu.Unlock()
	b.history.Add(errMsg)
	b.broadcast(errMsg)
}
