package mqtt

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/logging"
)

// Bridge owns the MQTT side of a room: the input probe, the display and the
// prop monitor.
type Bridge struct {
	broker  Broker
	topics  Topics
	bus     *bus.Bus
	log     *logging.Logger
	health  time.Duration
	Outbox  *Outbox
	Probe   *InputProbe
	Display *Display
	Monitor *Monitor
}

// NewBridge builds the bridge around broker. Nothing is subscribed until
// Start.
func NewBridge(broker Broker, topics Topics, b *bus.Bus, log *logging.Logger) *Bridge {
	out := NewOutbox(broker, DefaultOutboxSize, log)
	return &Bridge{
		broker:  broker,
		topics:  topics,
		bus:     b,
		log:     log,
		health:  5 * time.Second,
		Outbox:  out,
		Probe:   NewInputProbe(broker, out, b, topics, log),
		Display: NewDisplay(out, topics),
	}
}

// Start subscribes to prop input and heartbeats. Monitor alerts go through
// pub.
func (br *Bridge) Start(pub Publisher) error {
	if err := br.Probe.Start(); err != nil {
		return err
	}
	br.Monitor = NewMonitor(pub, 2.0, br.log)
	if err := br.broker.Subscribe(br.topics.HeartbeatFilter(), br.Monitor.Handler()); err != nil {
		return err
	}
	br.Monitor.Start(br.health)
	return nil
}

// Run publishes outgoing messages and follows the bus until ctx is done,
// then unsubscribes.
func (br *Bridge) Run(ctx context.Context) error {
	tap := br.bus.Tap()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.Outbox.Run(gctx) })
	g.Go(func() error { return br.Display.Follow(gctx, tap) })

	err := g.Wait()
	br.bus.Untap(tap)
	if br.Monitor != nil {
		br.Monitor.Stop()
	}
	if cerr := br.Probe.Close(); cerr != nil {
		br.log.Warn("mqtt.unsubscribe_failed", "failed to unsubscribe", map[string]interface{}{
			"error": cerr,
		})
	}
	return err
}
