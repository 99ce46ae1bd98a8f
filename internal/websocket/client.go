package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Request selects what a client streams. Calendar streams use Month, trend
// streams use Range.
type Request struct {
	Month string `json:"month,omitempty"`
	Range string `json:"range,omitempty"`
}

// Subscribe starts a view stream for req. The stream ends when ctx is done.
type Subscribe func(ctx context.Context, req Request) (<-chan Message, error)

// frame is one queued message. Frames with a non-zero view belong to that
// view stream and are dropped once the client has switched away from it.
type frame struct {
	view uint64
	data []byte
}

// Client is one websocket connection streaming a single view at a time.
type Client struct {
	hub       *Hub
	conn      *ws.Conn
	send      chan frame
	subscribe Subscribe
	logger    *slog.Logger

	view       atomic.Uint64
	cancelView context.CancelFunc
}

func NewClient(hub *Hub, conn *ws.Conn, subscribe Subscribe) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan frame, sendBufferSize),
		subscribe: subscribe,
		logger:    hub.logger,
	}
}

// Run streams the initial request, then re-subscribes whenever the client
// sends a new Request. It blocks until the connection is closed.
func (c *Client) Run(ctx context.Context, initial Request) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.switchView(ctx, initial)
	c.readPump(ctx)
	if c.cancelView != nil {
		c.cancelView()
	}
}

// readPump handles subscription changes until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.enqueue(ctx, 0, Message{Type: TypeError, Error: "malformed request"})
			continue
		}
		c.switchView(ctx, req)
	}
}

// switchView cancels the current view stream and starts the requested one.
func (c *Client) switchView(ctx context.Context, req Request) {
	if c.cancelView != nil {
		c.cancelView()
	}
	view := c.view.Add(1)
	viewCtx, cancel := context.WithCancel(ctx)
	c.cancelView = cancel

	views, err := c.subscribe(viewCtx, req)
	if err != nil {
		c.enqueue(ctx, 0, Message{Type: TypeError, Error: err.Error()})
		return
	}
	go func() {
		for msg := range views {
			if !c.enqueue(viewCtx, view, msg) {
				return
			}
		}
	}()
}

// enqueue blocks until msg is queued or ctx is done. view is the stream msg
// belongs to, or 0.
func (c *Client) enqueue(ctx context.Context, view uint64, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal view", "error", err)
		return true
	}
	select {
	case c.send <- frame{view: view, data: data}:
		return true
	case <-ctx.Done():
		return false
	}
}

// current reports whether f should still be written.
func (c *Client) current(f frame) bool {
	return f.view == 0 || f.view == c.view.Load()
}

// writePump drains the send channel and pings periodically to detect stale
// connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.send:
			if !c.current(f) {
				continue
			}
			if err := c.conn.Write(ctx, ws.MessageText, f.data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
