package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/domain/models"
)

// EventDashboard carries a freshly applied dashboard result.
const EventDashboard = "dashboard"

const clientBuffer = 16

// Event is a single Server-Sent Event.
type Event struct {
	Type string
	Data []byte
}

// Client is one connected stream.
type Client struct {
	ID     string
	Events chan Event
}

// Hub fans events out to every connected client. Clients whose buffer is
// full miss the event instead of blocking the publisher.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, clients: make(map[string]*Client)}
}

// Register adds a new client with a fresh id.
func (h *Hub) Register() *Client {
	client := &Client{ID: uuid.NewString(), Events: make(chan Event, clientBuffer)}

	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("sse client registered", zap.String("client_id", client.ID), zap.Int("total", total))
	return client
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		close(client.Events)
		delete(h.clients, clientID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("sse client unregistered", zap.String("client_id", clientID), zap.Int("total", total))
	}
}

// Broadcast sends event to all connected clients.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, skipping event",
				zap.String("client_id", client.ID), zap.String("event", event.Type))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Events)
		delete(h.clients, id)
	}
}

// PublishDashboard broadcasts result as a dashboard event. Its signature
// matches the dashboard service hook.
func (h *Hub) PublishDashboard(_ context.Context, result models.DashboardResult) {
	data, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("encode dashboard event", zap.Error(err))
		return
	}
	h.Broadcast(Event{Type: EventDashboard, Data: data})
}
