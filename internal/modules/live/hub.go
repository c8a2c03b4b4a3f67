// Package live pushes booking events to connected admin panels over websocket.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lulufarm/internal/queue"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

// client is one admin browser tab.
type client struct {
	username string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub fans booking events out to every connected admin. It is a
// notification sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	loggerf func(format string, args ...interface{})
}

func NewHub(loggerf func(format string, args ...interface{})) *Hub {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Hub{clients: make(map[*client]struct{}), loggerf: loggerf}
}

func (h *Hub) Name() string { return "live" }

// Publish never blocks: a client whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, ev queue.BookingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.loggerf("level=warn msg=live client too slow, event dropped username=%s booking_id=%s", c.username, ev.BookingID)
		}
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.loggerf("level=info msg=live client connected username=%s", c.username)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.loggerf("level=info msg=live client disconnected username=%s", c.username)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Serve registers the connection and blocks until it closes.
func (h *Hub) Serve(conn *websocket.Conn, username string) {
	c := &client{username: username, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

// readPump only keeps the connection alive; admins send nothing useful.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.loggerf("level=warn msg=live read error username=%s err=%v", c.username, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
