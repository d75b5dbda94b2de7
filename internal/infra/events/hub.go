package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/infra/metrics"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

type client struct {
	conn   *websocket.Conn
	send   chan domain.Event
	taskID string // empty = all tasks
}

// Hub broadcasts events to connected websocket clients. Clients may pass
// ?task_id= to receive a single task's events.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Field apps connect from arbitrary origins; auth is on the token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish implements domain.EventPublisher. Slow clients drop events
// rather than block the caller.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.taskID != "" && c.taskID != ev.TaskID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.log.Warn("dropping event for slow subscriber", zap.String("type", string(ev.Type)))
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan domain.Event, sendBuffer),
		taskID: r.URL.Query().Get("task_id"),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)

	// Read until the peer goes away; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.EventSubscribers.Set(float64(len(h.clients)))
	h.log.Debug("subscriber connected", zap.Int("total", len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.EventSubscribers.Set(float64(len(h.clients)))
	h.log.Debug("subscriber disconnected", zap.Int("total", len(h.clients)))
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	metrics.EventSubscribers.Set(0)
}
