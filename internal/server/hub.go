package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/metrics"
	"github.com/rish-kun/alphastream/internal/queue/streams"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// controlMessage is what clients send to manage their subscription set.
type controlMessage struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers"`
}

// client is one websocket connection. The outbound channel is drained by a
// single writer goroutine so events for a ticker reach the socket in publish
// order. A full channel marks the client slow and the hub drops it.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.Mutex
	tickers map[string]bool // empty = all events
}

func (c *client) subscribe(tickers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tickers {
		c.tickers[t] = true
	}
}

func (c *client) unsubscribe(tickers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tickers {
		delete(c.tickers, t)
	}
}

// wants reports whether the client should receive an event for the given
// tickers. An empty subscription set means everything; an event with no
// tickers goes to everyone.
func (c *client) wants(tickers []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 || len(tickers) == 0 {
		return true
	}
	for _, t := range tickers {
		if c.tickers[t] {
			return true
		}
	}
	return false
}

// Hub fans broadcast events out to websocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	pingInterval time.Duration
	pongTimeout  time.Duration
	sendBuffer   int

	met    *metrics.Set
	logger *log.Logger
}

func NewHub(cfg config.BroadcastConfig, met *metrics.Set) *Hub {
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pong := cfg.PongTimeout
	if pong <= 0 {
		pong = 90 * time.Second
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		clients:      make(map[*client]bool),
		pingInterval: ping,
		pongTimeout:  pong,
		sendBuffer:   buffer,
		met:          met,
		logger:       log.New(log.Writer(), "[WS] ", log.LstdFlags),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every matching client. Slow clients are
// dropped rather than allowed to reorder or block delivery for the rest.
func (h *Hub) Broadcast(event streams.BroadcastEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Printf("marshal %s event: %v", event.Type, err)
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(event.Tickers) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.logger.Printf("client too slow, dropping connection")
			h.remove(c)
		}
	}
	h.met.IncBroadcast(event.Type)
}

// Handle upgrades the request and runs the connection until the client
// leaves, the pong deadline passes, or the hub drops it.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed: %v", err)
		return
	}
	c := &client{
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		tickers: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("client connected (total %d)", total)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("read error: %v", err)
			}
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Printf("malformed control message ignored: %v", err)
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.subscribe(msg.Tickers)
		case "unsubscribe":
			c.unsubscribe(msg.Tickers)
		default:
			h.logger.Printf("unknown control action %q ignored", msg.Action)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// remove drops a client and its subscription state. Safe to call more than
// once per client.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	remaining := len(h.clients)
	h.mu.Unlock()
	// The send channel stays open; closing the conn unwinds the writer on
	// its next write or ping.
	_ = c.conn.Close()
	h.logger.Printf("client disconnected (remaining %d)", remaining)
}

// RelayEvents consumes the broadcast stream and fans each event out. Run it
// in its own goroutine; it returns when ctx is cancelled.
func (h *Hub) RelayEvents(ctx context.Context, consumer *streams.Consumer) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgs, err := consumer.Read(ctx, streams.StreamEvents, streams.WithBlock(5*time.Second), streams.WithCount(32))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Printf("read broadcast stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			var event streams.BroadcastEvent
			if err := json.Unmarshal(msg.Envelope.Data, &event); err != nil {
				h.logger.Printf("malformed broadcast event %s dropped: %v", msg.ID, err)
			} else {
				h.Broadcast(event)
			}
			_ = consumer.Ack(ctx, streams.StreamEvents, msg.ID)
		}
	}
}
