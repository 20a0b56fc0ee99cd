package mqtt

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/logging"
)

// DefaultHeartbeat is assumed for props that do not announce an interval.
const DefaultHeartbeat = 10 * time.Second

// Publisher sends bus messages. *game.Session satisfies it, which keeps
// monitor alerts serialized with the frame loop.
type Publisher interface {
	Publish(topic bus.Topic, payload any) error
}

// PropState tracks one prop's liveness.
type PropState struct {
	Prop      string        `json:"prop"`
	LastSeen  time.Time     `json:"last_seen"`
	Interval  time.Duration `json:"interval"`
	Connected bool          `json:"connected"`
}

// heartbeat is the optional JSON body of a heartbeat message.
type heartbeat struct {
	IntervalSec int `json:"interval_sec"`
}

// Monitor watches prop heartbeats and raises system.error when a prop goes
// silent for longer than tolerance heartbeats.
type Monitor struct {
	mu        sync.RWMutex
	props     map[string]*PropState
	tolerance float64
	pub       Publisher
	log       *logging.Logger
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor. tolerance <= 1 means two missed beats.
func NewMonitor(pub Publisher, tolerance float64, log *logging.Logger) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0
	}
	return &Monitor{
		props:     make(map[string]*PropState),
		tolerance: tolerance,
		pub:       pub,
		log:       log,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Handler returns the heartbeat message handler.
func (m *Monitor) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var hb heartbeat
		_ = json.Unmarshal(msg.Payload(), &hb)
		m.Beat(lastSegment(msg.Topic()), time.Duration(hb.IntervalSec)*time.Second)
	}
}

// Beat records a heartbeat from prop.
func (m *Monitor) Beat(prop string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	m.mu.Lock()
	existing, seen := m.props[prop]
	reconnect := seen && !existing.Connected
	m.props[prop] = &PropState{
		Prop:      prop,
		LastSeen:  m.now(),
		Interval:  interval,
		Connected: true,
	}
	m.mu.Unlock()

	if !seen || reconnect {
		m.log.Info("mqtt.prop_connected", "prop connected", map[string]interface{}{
			"prop":      prop,
			"reconnect": reconnect,
		})
	}
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckHealth()
		}
	}
}

// CheckHealth marks silent props disconnected and reports them.
func (m *Monitor) CheckHealth() {
	m.mu.Lock()
	now := m.now()
	var lost []PropState
	for _, st := range m.props {
		if !st.Connected {
			continue
		}
		timeout := time.Duration(float64(st.Interval) * m.tolerance)
		if now.Sub(st.LastSeen) > timeout {
			st.Connected = false
			lost = append(lost, *st)
		}
	}
	m.mu.Unlock()

	for _, st := range lost {
		m.log.Warn("mqtt.prop_disconnected", "heartbeat timeout", map[string]interface{}{
			"prop":      st.Prop,
			"last_seen": st.LastSeen.Format(time.RFC3339),
		})
		if m.pub == nil {
			continue
		}
		err := m.pub.Publish(bus.TopicSystemError, bus.Notice{
			Text:     "prop " + st.Prop + " stopped responding",
			Severity: "warning",
			Source:   "mqtt",
		})
		if err != nil {
			m.log.Error("mqtt.publish_failed", "failed to report prop timeout", map[string]interface{}{
				"error": err,
			})
		}
	}
}

// Props returns every known prop sorted by name.
func (m *Monitor) Props() []PropState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PropState, 0, len(m.props))
	for _, st := range m.props {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prop < out[j].Prop })
	return out
}

// Connected returns the number of live props.
func (m *Monitor) Connected() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, st := range m.props {
		if st.Connected {
			n++
		}
	}
	return n
}
