package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub tracks the open client connections so they can be counted and shut down.
// Room membership lives in the session package.
type Hub struct {
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Stop closes every open connection; their read pumps then leave their rooms.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.Close()
	}
	h.log.Info("hub stopped", "connections", len(h.clients))
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Context is cancelled when the hub stops.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID()] = client
	h.log.Debug("client registered", "conn", client.ID(), "room", client.RoomID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID()]; ok {
		delete(h.clients, client.ID())
		h.log.Debug("client unregistered", "conn", client.ID(), "room", client.RoomID)
	}
}
