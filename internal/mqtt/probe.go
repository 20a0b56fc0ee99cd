package mqtt

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/logging"
	"github.com/AaronLay10/holoquest/internal/puzzle"
	"github.com/AaronLay10/holoquest/internal/registry"
)

// DefaultQueueSize bounds inputs waiting for the next frame.
const DefaultQueueSize = 64

// Target receives the probe's interactions. *game.Controller satisfies it.
type Target interface {
	Activate(name, input string) (puzzle.Result, error)
	Hover(name string) bool
	Unhover(name string) bool
}

type inputKind int

const (
	inputActivate inputKind = iota
	inputHover
	inputUnhover
)

type queuedInput struct {
	kind  inputKind
	name  string
	input string
}

// InputProbe is the interaction probe for physical props. MQTT messages are
// queued as they arrive and applied on the next frame, so every activation
// runs on the frame loop.
type InputProbe struct {
	broker   Broker
	out      *Outbox
	topics   Topics
	log      *logging.Logger
	max      int
	sceneSub *bus.Subscription

	mu      sync.Mutex
	target  Target
	objects map[string]registry.Object
	queue   []queuedInput
	dropped uint64
	applied uint64
}

var _ game.Probe = (*InputProbe)(nil)

// NewInputProbe creates a probe. The controller that announces scene:ready
// on b becomes the probe's target. Activation results go out through out.
func NewInputProbe(broker Broker, out *Outbox, b *bus.Bus, topics Topics, log *logging.Logger) *InputProbe {
	p := &InputProbe{
		broker:  broker,
		out:     out,
		topics:  topics,
		log:     log,
		max:     DefaultQueueSize,
		objects: make(map[string]registry.Object),
	}
	p.sceneSub = b.Subscribe(bus.TopicSceneReady, func(m bus.Message) {
		if ev, ok := m.Payload.(game.SceneReady); ok && ev.Controller != nil {
			p.SetTarget(ev.Controller)
		}
	})
	return p
}

// SetTarget replaces the probe's target.
func (p *InputProbe) SetTarget(t Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = t
}

// Start subscribes to prop input.
func (p *InputProbe) Start() error {
	if err := p.broker.Subscribe(p.topics.InputFilter(), p.handle(inputActivate)); err != nil {
		return err
	}
	return p.broker.Subscribe(p.topics.HoverFilter(), p.handle(inputHover))
}

// Close unsubscribes and detaches from the bus.
func (p *InputProbe) Close() error {
	p.sceneSub.Revoke()
	return p.broker.Unsubscribe(p.topics.InputFilter(), p.topics.HoverFilter())
}

// inputPayload is the optional JSON body of an input or hover message.
type inputPayload struct {
	Input string `json:"input"`
	On    *bool  `json:"on"`
}

func (p *InputProbe) handle(kind inputKind) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		name := lastSegment(msg.Topic())
		q := queuedInput{kind: kind, name: name}

		raw := strings.TrimSpace(string(msg.Payload()))
		var body inputPayload
		switch {
		case raw == "":
		case strings.HasPrefix(raw, "{"):
			if json.Unmarshal([]byte(raw), &body) != nil {
				body.Input = raw
			}
		case json.Unmarshal([]byte(raw), &body.Input) != nil:
			// Not a JSON string either: the raw text is the input.
			body.Input = raw
		}
		q.input = body.Input
		if kind == inputHover && body.On != nil && !*body.On {
			q.kind = inputUnhover
		}
		p.enqueue(q)
	}
}

func (p *InputProbe) enqueue(q queuedInput) {
	p.mu.Lock()
	_, known := p.objects[q.name]
	switch {
	case !known:
		p.mu.Unlock()
		p.log.Debug("mqtt.input_ignored", "input for an object not in the current level", map[string]interface{}{
			"object": q.name,
		})
		return
	case len(p.queue) >= p.max:
		p.dropped++
		p.mu.Unlock()
		p.log.Warn("mqtt.input_dropped", "input queue full", map[string]interface{}{
			"object": q.name,
		})
		return
	}
	p.queue = append(p.queue, q)
	p.mu.Unlock()
}

// Attach replaces the known objects with the new level's.
func (p *InputProbe) Attach(objects []registry.Object) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects = make(map[string]registry.Object, len(objects))
	for _, o := range objects {
		p.objects[o.Name] = o
	}
	p.queue = nil
}

// Release forgets the level's objects and any queued input.
func (p *InputProbe) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects = make(map[string]registry.Object)
	p.queue = nil
}

// Update applies queued input. It runs on the frame loop.
func (p *InputProbe) Update(time.Duration) {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	target := p.target
	p.mu.Unlock()

	if target == nil {
		return
	}
	for _, q := range queue {
		switch q.kind {
		case inputHover:
			target.Hover(q.name)
		case inputUnhover:
			target.Unhover(q.name)
		default:
			p.activate(target, q)
		}
	}
}

func (p *InputProbe) activate(target Target, q queuedInput) {
	res, err := target.Activate(q.name, q.input)
	if err != nil {
		p.log.Warn("mqtt.activate_failed", "prop activation failed", map[string]interface{}{
			"object": q.name,
			"error":  err,
		})
		return
	}
	p.mu.Lock()
	p.applied++
	p.mu.Unlock()

	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	p.out.Send(p.topics.Result(q.name), false, b)
}

// Stats reports applied and dropped inputs.
func (p *InputProbe) Stats() (applied, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied, p.dropped
}
