package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/holoquest/internal/bus"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T, env *testEnv) (*websocket.Conn, func()) {
	t.Helper()
	server := httptest.NewServer(env.server.Handler())
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		server.Close()
		t.Fatalf("failed to connect: %v", err)
	}
	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) bus.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var m bus.Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return m
}

func TestWebSocketReceivesRecentMessages(t *testing.T) {
	env := newTestEnv(t, Options{})
	for i := 0; i < 5; i++ {
		env.bus.Publish(bus.TopicShowMessage, "hello")
	}

	conn, closeAll := dialEvents(t, env)
	defer closeAll()

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		m := readMessage(t, conn)
		if m.Topic != bus.TopicShowMessage {
			t.Errorf("expected showMessage, got %s", m.Topic)
		}
		if m.Seq <= lastSeq {
			t.Errorf("expected increasing seq, got %d after %d", m.Seq, lastSeq)
		}
		lastSeq = m.Seq
	}
}

func TestWebSocketReceivesNewMessages(t *testing.T) {
	env := newTestEnv(t, Options{})

	conn, closeAll := dialEvents(t, env)
	defer closeAll()

	waitFor(t, time.Second, func() bool { return env.bus.TapCount() == 1 }, "tap registered")
	env.bus.Publish(bus.TopicGamePause, nil)

	m := readMessage(t, conn)
	if m.Topic != bus.TopicGamePause {
		t.Errorf("expected game:pause, got %s", m.Topic)
	}
}

func TestWebSocketSkipsMessagesAlreadySent(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.bus.Publish(bus.TopicShowMessage, "before")

	conn, closeAll := dialEvents(t, env)
	defer closeAll()

	first := readMessage(t, conn)
	waitFor(t, time.Second, func() bool { return env.bus.TapCount() == 1 }, "tap registered")
	env.bus.Publish(bus.TopicShowMessage, "after")

	second := readMessage(t, conn)
	if second.Seq != first.Seq+1 {
		t.Errorf("expected seq %d, got %d", first.Seq+1, second.Seq)
	}
	if bus.Text(second.Payload) != "after" {
		t.Errorf("expected 'after', got %v", second.Payload)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	env := newTestEnv(t, Options{})

	conn, closeAll := dialEvents(t, env)
	defer closeAll()

	waitFor(t, time.Second, func() bool { return env.bus.TapCount() == 1 }, "tap registered")
	conn.Close()
	waitFor(t, 2*time.Second, func() bool { return env.bus.TapCount() == 0 }, "tap removed after disconnect")
}

func TestWebSocketMultipleClients(t *testing.T) {
	env := newTestEnv(t, Options{})

	conn1, close1 := dialEvents(t, env)
	defer close1()
	conn2, close2 := dialEvents(t, env)
	defer close2()

	waitFor(t, time.Second, func() bool { return env.bus.TapCount() == 2 }, "both taps registered")
	env.bus.Publish(bus.TopicGameResume, nil)

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		if m := readMessage(t, conn); m.Topic != bus.TopicGameResume {
			t.Errorf("client %d: expected game:resume, got %s", i+1, m.Topic)
		}
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	env := newTestEnv(t, Options{Auth: testCreds})
	server := httptest.NewServer(env.server.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without credentials")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("expected 401, got %v", resp)
	}
}
