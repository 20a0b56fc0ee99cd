package mqtt

import (
	"context"
	"sync/atomic"

	"github.com/AaronLay10/holoquest/internal/logging"
)

// DefaultOutboxSize bounds messages waiting to be published.
const DefaultOutboxSize = 256

type outbound struct {
	topic    string
	retained bool
	payload  []byte
}

// Outbox publishes from its own goroutine so the frame loop never waits on
// the broker. Messages are dropped when it is full.
type Outbox struct {
	broker  Broker
	ch      chan outbound
	log     *logging.Logger
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewOutbox creates an outbox. size <= 0 uses DefaultOutboxSize.
func NewOutbox(broker Broker, size int, log *logging.Logger) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		broker: broker,
		ch:     make(chan outbound, size),
		log:    log,
	}
}

// Send queues a message. It reports false when the message was dropped.
func (o *Outbox) Send(topic string, retained bool, payload []byte) bool {
	select {
	case o.ch <- outbound{topic: topic, retained: retained, payload: payload}:
		return true
	default:
		if o.dropped.Add(1) == 1 {
			o.log.Warn("mqtt.outbox_full", "outbox full, dropping messages", map[string]interface{}{
				"topic": topic,
			})
		}
		return false
	}
}

// Run publishes queued messages until ctx is done.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-o.ch:
			if err := o.broker.Publish(m.topic, m.retained, m.payload); err != nil {
				o.log.Warn("mqtt.publish_failed", "failed to publish", map[string]interface{}{
					"topic": m.topic,
					"error": err,
				})
				continue
			}
			o.sent.Add(1)
		}
	}
}

// Stats reports sent and dropped messages.
func (o *Outbox) Stats() (sent, dropped uint64) {
	return o.sent.Load(), o.dropped.Load()
}
