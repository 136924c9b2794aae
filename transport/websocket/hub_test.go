package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/groupcart/group/session"
)

func newTestClient(hub *Hub, code string) *Client {
	return &Client{
		hub:    hub,
		code:   code,
		userID: "u-" + code,
		send:   make(chan []byte, clientBuffer),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.sessions == nil {
		t.Error("Hub sessions map is nil")
	}
	if hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("Hub channels not initialised")
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "ABC234")

	hub.registerClient(client)

	if !hub.sessions["ABC234"][client] {
		t.Error("Client was not registered in session")
	}
	if got := hub.ClientCount("ABC234"); got != 1 {
		t.Errorf("Expected 1 client in session, got %d", got)
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "ABC234")

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["ABC234"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed")
	}

	// A second unregister must not panic on the closed channel.
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub()
	client1 := newTestClient(hub, "MULTI2")
	client2 := newTestClient(hub, "MULTI2")

	hub.registerClient(client1)
	hub.registerClient(client2)
	if got := hub.ClientCount("MULTI2"); got != 2 {
		t.Fatalf("Expected 2 clients in session, got %d", got)
	}

	hub.unregisterClient(client1)
	if !hub.sessions["MULTI2"][client2] {
		t.Error("client2 should still be registered")
	}
}

func TestHubBroadcastOnlyToSession(t *testing.T) {
	hub := NewHub()
	member := newTestClient(hub, "ROOM22")
	outsider := newTestClient(hub, "OTHER3")
	hub.registerClient(member)
	hub.registerClient(outsider)

	env, err := NewEnvelope("room22", session.EventJoin, map[string]string{"user_id": "p"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	hub.broadcastMessage(env)

	select {
	case data := <-member.send:
		var got Envelope
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Failed to unmarshal envelope: %v", err)
		}
		if got.Code != "ROOM22" || got.Type != session.EventJoin {
			t.Errorf("unexpected envelope %+v", got)
		}
		if got.ID == "" {
			t.Error("envelope id is empty")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("No message received within timeout")
	}

	select {
	case <-outsider.send:
		t.Error("client in another session received the event")
	default:
	}
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{hub: hub, code: "SLOW23", send: make(chan []byte, 1)}
	hub.registerClient(slow)

	env, _ := NewEnvelope("SLOW23", session.EventCartUpdate, nil)
	hub.broadcastMessage(env)
	hub.broadcastMessage(env)

	if hub.ClientCount("SLOW23") != 0 {
		t.Error("slow client should have been disconnected")
	}
}

func TestHubDeliverWithoutSubscribers(t *testing.T) {
	hub := NewHub()

	if err := hub.Publish(context.Background(), "NOBODY", session.EventLeave, nil); err != nil {
		t.Errorf("Publish with no subscribers: %v", err)
	}
	if len(hub.broadcast) != 0 {
		t.Error("event without subscribers should not be queued")
	}
}

func TestHubDeliverQueueFull(t *testing.T) {
	hub := NewHub()
	hub.broadcast = make(chan *Envelope, 1)
	hub.registerClient(newTestClient(hub, "FULL22"))

	if err := hub.Publish(context.Background(), "FULL22", session.EventJoin, nil); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := hub.Publish(context.Background(), "FULL22", session.EventJoin, nil); err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestHubStopped(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	env, _ := NewEnvelope("ABC234", session.EventJoin, nil)
	if err := hub.Deliver(env); err != ErrHubStopped {
		t.Errorf("expected ErrHubStopped, got %v", err)
	}
}

func newWSServer(hub *Hub) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("code"), "tester")
	}))
}

func TestWebSocketUpgrade(t *testing.T) {
	hub := startHub(t)
	server := newWSServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?code=wstest"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}

	waitFor(t, func() bool { return hub.ClientCount("WSTEST") == 1 })

	conn.Close()

	waitFor(t, func() bool { return hub.ClientCount("WSTEST") == 0 })
}

func TestWebSocketMessageReceive(t *testing.T) {
	hub := startHub(t)
	server := newWSServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?code=MSG234"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount("MSG234") == 1 })

	payload := map[string]any{"final_order_ref": "ORD-99"}
	if err := hub.Publish(context.Background(), "MSG234", session.EventOrderPlaced, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if env.Type != session.EventOrderPlaced {
		t.Errorf("Expected ORDER_PLACED, got %s", env.Type)
	}
	var got map[string]string
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if got["final_order_ref"] != "ORD-99" {
		t.Errorf("payload not transmitted, got %v", got)
	}
}
