// Package websocket streams project lifecycle events (status changes, process
// output, file updates) to connected clients over a WebSocket gateway.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/events/bus"
)

// Notification is the wire format pushed to clients.
type Notification struct {
	Type      string                 `json:"type"`
	ProjectID string                 `json:"projectId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Hub manages all WebSocket client connections and relays project events from
// the event bus. Clients that subscribed to specific projects receive only
// those projects' events; clients with no subscriptions receive everything.
type Hub struct {
	clients            map[*Client]bool
	projectSubscribers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Notification

	eventBus bus.EventBus
	busSub   bus.Subscription

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(eventBus bus.EventBus, log *logger.Logger) *Hub {
	return &Hub{
		clients:            make(map[*Client]bool),
		projectSubscribers: make(map[string]map[*Client]bool),
		register:           make(chan *Client),
		unregister:         make(chan *Client),
		broadcast:          make(chan *Notification, 256),
		eventBus:           eventBus,
		logger:             log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run starts the hub's main processing loop and bridges the event bus into
// it. Blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	if h.eventBus != nil {
		sub, err := h.eventBus.Subscribe("project.>", func(ctx context.Context, event *bus.Event) error {
			h.Notify(notificationFromEvent(event))
			return nil
		})
		if err != nil {
			h.logger.Error("failed to subscribe to project events", zap.Error(err))
		} else {
			h.busSub = sub
			defer func() { _ = h.busSub.Unsubscribe() }()
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case n := <-h.broadcast:
			h.dispatch(n)
		}
	}
}

// Notify queues a notification for delivery. Non-blocking: when the hub's
// queue is full the notification is dropped rather than stalling the caller.
func (h *Hub) Notify(n *Notification) {
	select {
	case h.broadcast <- n:
	default:
		h.logger.Warn("notification queue full, dropping", zap.String("type", n.Type))
	}
}

func notificationFromEvent(event *bus.Event) *Notification {
	n := &Notification{
		Type:      event.Type,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
	if id, ok := event.Data["project_id"].(string); ok {
		n.ProjectID = id
	}
	return n
}

// dispatch routes a notification to the right clients.
func (h *Hub) dispatch(n *Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("Failed to marshal notification", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.wants(n.ProjectID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client buffer full, will be cleaned up by write pump
		}
	}
}

// closeAllClients closes all client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.projectSubscribers = make(map[string]map[*Client]bool)
}

// removeClient removes a client from the hub.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		for projectID := range client.subscriptions {
			if clients, ok := h.projectSubscribers[projectID]; ok {
				delete(clients, client)
				if len(clients) == 0 {
					delete(h.projectSubscribers, projectID)
				}
			}
		}
	}
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SubscribeToProject subscribes a client to one project's events.
func (h *Hub) SubscribeToProject(client *Client, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.projectSubscribers[projectID]; !ok {
		h.projectSubscribers[projectID] = make(map[*Client]bool)
	}
	h.projectSubscribers[projectID][client] = true
	client.mu.Lock()
	client.subscriptions[projectID] = true
	client.mu.Unlock()

	h.logger.Debug("Client subscribed to project",
		zap.String("client_id", client.ID),
		zap.String("project_id", projectID))
}

// UnsubscribeFromProject removes a client's project subscription.
func (h *Hub) UnsubscribeFromProject(client *Client, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	delete(client.subscriptions, projectID)
	client.mu.Unlock()
	if clients, ok := h.projectSubscribers[projectID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.projectSubscribers, projectID)
		}
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
