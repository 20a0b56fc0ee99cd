package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Number of recent messages to send on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsEventsHandler streams bus messages. A client first receives the recent
// history, then every message published while it stays connected.
func (s *Server) wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws.upgrade_failed", "ws upgrade failed", map[string]interface{}{"error": err})
		return
	}

	// Tap before reading history so nothing published in between is lost.
	// Tapped messages already sent from history are skipped by seq.
	tap := s.bus.Tap()
	defer func() {
		s.bus.Untap(tap)
		conn.Close()
	}()

	var lastSeq uint64
	for _, m := range s.bus.Recent(recentEventsCount) {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.Warn("ws.write_failed", "ws write recent message failed", map[string]interface{}{"error": err})
			return
		}
		lastSeq = m.Seq
	}

	done := make(chan struct{})

	// Reader goroutine - handles pongs and close messages
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case m, ok := <-tap:
			if !ok {
				return
			}
			if m.Seq <= lastSeq {
				continue
			}
			data, err := json.Marshal(m)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Warn("ws.write_failed", "ws write message failed", map[string]interface{}{"error": err})
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
