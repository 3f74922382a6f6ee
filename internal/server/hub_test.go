package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/queue/streams"
)

func newHubServer(t *testing.T, cfg config.BroadcastConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.Handle))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *Hub) subscribersOf(ticker string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		c.mu.Lock()
		if c.tickers[ticker] {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

func sendControl(t *testing.T, conn *websocket.Conn, action string, tickers ...string) {
	t.Helper()
	msg := controlMessage{Action: action, Tickers: tickers}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("send %s: %v", action, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) streams.BroadcastEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event streams.BroadcastEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return event
}

func TestHubSubscriptionFiltering(t *testing.T) {
	hub, srv := newHubServer(t, config.BroadcastConfig{})

	relianceConn := dialHub(t, srv)
	infyConn := dialHub(t, srv)
	waitFor(t, "both clients", func() bool { return hub.ClientCount() == 2 })

	sendControl(t, relianceConn, "subscribe", "RELIANCE")
	sendControl(t, infyConn, "subscribe", "INFY")
	waitFor(t, "subscriptions applied", func() bool {
		return hub.subscribersOf("RELIANCE") == 1 && hub.subscribersOf("INFY") == 1
	})

	hub.Broadcast(streams.BroadcastEvent{
		Type:    streams.EventAlphaUpdate,
		Tickers: []string{"RELIANCE"},
		Data:    json.RawMessage(`{"signal":"buy"}`),
	})

	event := readEvent(t, relianceConn)
	if event.Type != streams.EventAlphaUpdate || event.Tickers[0] != "RELIANCE" {
		t.Fatalf("unexpected event: %+v", event)
	}

	_ = infyConn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := infyConn.ReadMessage(); err == nil {
		t.Fatal("INFY subscriber received a RELIANCE-only event")
	}
}

func TestHubEmptySubscriptionReceivesAll(t *testing.T) {
	hub, srv := newHubServer(t, config.BroadcastConfig{})
	conn := dialHub(t, srv)
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	hub.Broadcast(streams.BroadcastEvent{
		Type:    streams.EventSentimentUpdate,
		Tickers: []string{"TCS"},
		Data:    json.RawMessage(`{"sentiment_score":0.4}`),
	})
	if event := readEvent(t, conn); event.Type != streams.EventSentimentUpdate {
		t.Fatalf("unexpected event: %+v", event)
	}

	// Events with no ticker list reach everyone too.
	hub.Broadcast(streams.BroadcastEvent{
		Type: streams.EventNewsUpdate,
		Data: json.RawMessage(`{"title":"x"}`),
	})
	if event := readEvent(t, conn); event.Type != streams.EventNewsUpdate {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub, srv := newHubServer(t, config.BroadcastConfig{})
	conn := dialHub(t, srv)
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	sendControl(t, conn, "subscribe", "WIPRO", "TCS")
	waitFor(t, "subscribe", func() bool { return hub.subscribersOf("WIPRO") == 1 })
	sendControl(t, conn, "unsubscribe", "WIPRO")
	waitFor(t, "unsubscribe", func() bool { return hub.subscribersOf("WIPRO") == 0 })

	// Still subscribed to TCS only: a WIPRO event must not arrive.
	hub.Broadcast(streams.BroadcastEvent{
		Type:    streams.EventAlphaUpdate,
		Tickers: []string{"WIPRO"},
		Data:    json.RawMessage(`{}`),
	})
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received event after unsubscribe")
	}
}

func TestHubPerTickerOrdering(t *testing.T) {
	hub, srv := newHubServer(t, config.BroadcastConfig{SendBuffer: 32})
	conn := dialHub(t, srv)
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	sendControl(t, conn, "subscribe", "RELIANCE")
	waitFor(t, "subscribe", func() bool { return hub.subscribersOf("RELIANCE") == 1 })

	for i := 0; i < 10; i++ {
		hub.Broadcast(streams.BroadcastEvent{
			Type:    streams.EventSentimentUpdate,
			Tickers: []string{"RELIANCE"},
			Data:    json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
		})
	}
	for i := 0; i < 10; i++ {
		event := readEvent(t, conn)
		var payload struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if payload.Seq != i {
			t.Fatalf("event %d arrived out of order (seq %d)", i, payload.Seq)
		}
	}
}

func TestHubDropsClientOnMissedPong(t *testing.T) {
	hub, srv := newHubServer(t, config.BroadcastConfig{
		PingInterval: 20 * time.Millisecond,
		PongTimeout:  60 * time.Millisecond,
	})
	conn := dialHub(t, srv)
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	// Never read: pings are not answered, so the pong deadline passes and
	// the hub discards the connection and its subscription state.
	_ = conn
	waitFor(t, "client dropped", func() bool { return hub.ClientCount() == 0 })
}
