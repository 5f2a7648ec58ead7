package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	applogger "SigFlow/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 5 * time.Second
	clientBufSize  = 64
	maxMessageSize = 512
)

// Hub fans broadcast envelopes out to connected WebSocket subscribers.
// A slow client gets dropped rather than backpressuring the pipeline.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	l        *applogger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(l *applogger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		l: l,
	}
}

// Publish implements the Broadcaster contract: marshal once, enqueue to every
// client without blocking.
func (h *Hub) Publish(_ context.Context, channel, event string, payload interface{}) error {
	env := Envelope{Channel: channel, Event: event, Payload: payload, Timestamp: time.Now()}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			// client too slow; detach it
			go h.remove(c)
		}
	}
	return nil
}

// Serve upgrades the request and keeps the subscriber attached until it
// disconnects. Registered on the Echo server as GET /ws.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn, send: make(chan []byte, clientBufSize)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	if h.l != nil {
		h.l.Debug("ws subscriber connected", applogger.String("remote", conn.RemoteAddr().String()))
	}

	go cl.writePump()
	go h.readPump(cl)
	return nil
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		_ = c.conn.Close()
	}
	h.mu.Unlock()

	// Only the goroutine that removed the client closes its channel; by then
	// no Publish can still hold a reference to it.
	if ok {
		close(c.send)
	}
}

// readPump drains inbound frames so pings/pongs and close frames are
// processed; subscribers are read-only.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
