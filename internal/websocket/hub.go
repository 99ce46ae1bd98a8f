package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Message is one frame sent to a view stream client.
type Message struct {
	Type  string `json:"type"`
	Pet   string `json:"pet,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	TypeCalendar = "calendar"
	TypeTrend    = "trend"
	TypeError    = "error"
	TypeNotice   = "notice"
)

// Hub tracks connected stream clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	logger   *slog.Logger
	sessions prometheus.Gauge
}

func NewHub(logger *slog.Logger, reg prometheus.Registerer) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pawlog",
			Name:      "websocket_sessions",
			Help:      "Open view stream connections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(h.sessions)
	}
	return h
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.sessions.Inc()
}

// Unregister removes c. Removing an unknown client is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		h.sessions.Dec()
	}
}

// Broadcast queues msg on every client without blocking; clients with a
// full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- frame{data: data}:
		default:
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
