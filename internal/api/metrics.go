package api

import (
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/holoquest/internal/game"
	"github.com/AaronLay10/holoquest/internal/version"
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	startTime    time.Time
	roomName     string
	interactions atomic.Uint64
}

func newMetricsState(room string) *MetricsState {
	return &MetricsState{startTime: time.Now(), roomName: room}
}

func (m *MetricsState) interaction() {
	m.interactions.Add(1)
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.metrics.startTime).Seconds()
	snap := s.game.Snapshot()

	mqtt, storage := s.readiness.deps()

	gameRunning := 0
	if snap.State == game.StateRunning {
		gameRunning = 1
	}
	gamePaused := 0
	if snap.State == game.StatePaused {
		gamePaused = 1
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	labels := fmt.Sprintf(`room="%s",instance="%s",version="%s"`, s.metrics.roomName, hostname, version.Version)

	writeMetric("holoquest_uptime_seconds", "gauge",
		"Number of seconds since the process started", uptime, labels)
	writeMetric("holoquest_game_running", "gauge",
		"Whether a level is running (1) or not (0)", gameRunning, labels)
	writeMetric("holoquest_game_paused", "gauge",
		"Whether the game is paused (1) or not (0)", gamePaused, labels)
	writeMetric("holoquest_frames_total", "counter",
		"Frames ticked on the current controller", snap.Frames, labels)
	writeMetric("holoquest_interactions_total", "counter",
		"Interactions handled by the current controller", snap.Interactions, labels)
	writeMetric("holoquest_api_interactions_total", "counter",
		"Interactions submitted through the API", s.metrics.interactions.Load(), labels)
	writeMetric("holoquest_bus_messages_total", "counter",
		"Messages published on the bus since startup", s.bus.Published(), labels)
	journaled, dropped := s.bus.JournalStats()
	writeMetric("holoquest_journal_written_total", "counter",
		"Bus messages appended to the event journal", journaled, labels)
	writeMetric("holoquest_journal_dropped_total", "counter",
		"Bus messages dropped because the journal queue was full", dropped, labels)
	writeMetric("holoquest_inventory_items", "gauge",
		"Items in the player inventory", len(snap.Inventory), labels)
	writeMetric("holoquest_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(mqtt.up()), labels)
	writeMetric("holoquest_storage_connected", "gauge",
		"Whether the event journal is connected (1) or not (0)", boolGauge(storage.up()), labels)
	writeMetric("holoquest_props_connected", "gauge",
		"Props with a live heartbeat", s.readiness.propsConnected(), labels)
	writeMetric("holoquest_ws_clients", "gauge",
		"Active event stream taps", s.bus.TapCount(), labels)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
