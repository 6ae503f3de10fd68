// Package websocket pushes server events, such as schema snapshot swaps, to
// connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks connected clients and fans messages out to them. Only the Run
// goroutine writes to a client's send channel, so a client is never sent to
// after its channel has been closed.
type Hub struct {
	clients   map[*Client]struct{}
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. Call Run to start it and Shutdown to stop it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		broadcast:  make(chan []byte, 64),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop; it returns after Shutdown
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = struct{}{}
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.logger.Debug("watch client connected", zap.String("client", client.ID), zap.Int("clients", n))

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.logger.Debug("watch client disconnected", zap.String("client", client.ID), zap.Int("clients", n))

		case data := <-h.broadcast:
			h.clientsMu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					h.logger.Warn("dropping message for slow watch client", zap.String("client", client.ID))
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Broadcast queues a message for every connected client
func (h *Hub) Broadcast(m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := h.ctx.Err(); err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and waits for Run to return
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.logger.Debug("watch hub shutting down", zap.Int("clients", len(h.clients)))
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	// Clients that connected while the hub was stopping
	for {
		select {
		case client := <-h.register:
			close(client.send)
		default:
			return
		}
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}
