// SPDX-License-Identifier: LGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hyperfetch/logger"
)

// WSMessage is a single event pushed to every connected websocket client.
type WSMessage struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// WSClient is one connected websocket client.
type WSClient struct {
	conn      *websocket.Conn
	send      chan WSMessage
	hub       *WSHub
	closeOnce sync.Once
}

// WSHub fans broadcast lifecycle events out to every connected client, the
// same register/unregister/broadcast shape as the teacher's WSHub.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
	log        logger.Logger
	upgrader   websocket.Upgrader
}

// NewWSHub builds an idle hub; call Run to start its event loop.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetLogger attaches a logger used for client lifecycle and error events.
func (h *WSHub) SetLogger(log logger.Logger) {
	h.log = log
}

// Run drives the hub's event loop until ctx is canceled.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeOnce.Do(func() { close(client.send) })
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			stuck := make([]*WSClient, 0)
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					stuck = append(stuck, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range stuck {
				if h.log != nil {
					h.log.Warn("websocket client buffer full, disconnecting")
				}
				h.mu.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					client.closeOnce.Do(func() { close(client.send) })
				}
				h.mu.Unlock()
			}
		}
	}
}

// Broadcast pushes an event to every connected client, dropping it if the
// hub's internal queue is full rather than blocking the caller.
func (h *WSHub) Broadcast(msgType string, data map[string]interface{}) {
	select {
	case h.broadcast <- WSMessage{Type: msgType, Timestamp: time.Now(), Data: data}:
	default:
		if h.log != nil {
			h.log.Warn("websocket broadcast queue full, dropping message", "type", msgType)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connected client.
func (h *WSHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeOnce.Do(func() { close(client.send) })
		client.conn.Close()
	}
	h.clients = make(map[*WSClient]bool)
}

// ServeWS upgrades the request to a websocket and registers the client.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	client := &WSClient{conn: conn, send: make(chan WSMessage, 32), hub: h}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := json.NewEncoder(w).Encode(message); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
