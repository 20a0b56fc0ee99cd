// Package mqtt bridges the game to physical room props: prop input becomes
// object activations, and presentation changes are published to room
// displays.
package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/holoquest/internal/logging"
)

const (
	defaultBroker = "tcp://localhost:1883"
	opTimeout     = 10 * time.Second
	publishQoS    = 1
)

// Broker is the subset of a client the bridge uses.
type Broker interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, retained bool, payload []byte) error
}

// Options configure a Client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Logger   *logging.Logger
}

// Client wraps the Paho client. Subscriptions are remembered and replayed
// after an automatic reconnect.
type Client struct {
	client paho.Client
	broker string
	log    *logging.Logger

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

var _ Broker = (*Client)(nil)

// NewClient creates a client but does not connect.
func NewClient(o Options) *Client {
	if o.Broker == "" {
		o.Broker = defaultBroker
	}
	c := &Client{
		broker: o.Broker,
		log:    o.Logger,
		subs:   make(map[string]paho.MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("mqtt.connection_lost", "broker connection lost", map[string]interface{}{
				"broker": c.broker,
				"error":  err,
			})
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

// onConnect re-subscribes after a reconnect.
func (c *Client) onConnect(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		token := pc.Subscribe(topic, publishQoS, h)
		if !token.WaitTimeout(opTimeout) || token.Error() != nil {
			c.log.Error("mqtt.resubscribe_failed", "failed to resubscribe", map[string]interface{}{
				"topic": topic,
				"error": token.Error(),
			})
		}
	}
	c.log.Info("mqtt.connected", "connected to broker", map[string]interface{}{
		"broker":        c.broker,
		"subscriptions": len(subs),
	})
}

// Connect attempts to connect to the broker. It does not block past the
// operation timeout.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &ConnectTimeoutError{Broker: c.broker}
	}
	return token.Error()
}

// Subscribe subscribes to a topic and remembers it for reconnects.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, publishQoS, handler)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Unsubscribe drops topics.
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "unsubscribe"}
	}
	return token.Error()
}

// Publish sends payload and waits for the broker to accept it.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, publishQoS, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.client.Disconnect(1000)
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates the connection attempt timed out.
type ConnectTimeoutError struct {
	Broker string
}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout: " + e.Broker
}

// TimeoutError indicates a subscribe, unsubscribe or publish timed out.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	if e.Topic == "" {
		return "mqtt " + e.Op + " timeout"
	}
	return "mqtt " + e.Op + " timeout: " + e.Topic
}
