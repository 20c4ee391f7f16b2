// internal/handler/websocket_types.go
package handler

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ecr-service/internal/model"
)

// Client is one WebSocket event subscriber
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	DeviceID    string          `json:"device_id,omitempty"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mu         sync.Mutex
	eventTypes map[model.EventType]bool
}

// SetEventTypes limits the client to the given event types; none means all
func (c *Client) SetEventTypes(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventTypes = make(map[model.EventType]bool, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			c.eventTypes[model.EventType(strings.ToUpper(t))] = true
		}
	}
}

// Wants reports whether the event passes the client's filters
func (c *Client) Wants(event *model.DeviceEvent) bool {
	if c.DeviceID != "" && c.DeviceID != event.DeviceID {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.eventTypes) == 0 || c.eventTypes[event.EventType]
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionManager tracks the connected clients
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister removes a client and closes its send channel
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, ok := cm.clients[client.ID]; ok {
		delete(cm.clients, client.ID)
		close(client.Send)
	}
}

// Broadcast queues the payload for every client interested in the event and
// returns how many got it. The read lock keeps Unregister from closing a
// channel mid-send.
func (cm *ConnectionManager) Broadcast(event *model.DeviceEvent, payload []byte) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	delivered := 0
	for _, client := range cm.clients {
		if !client.Wants(event) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

// Count returns the number of connected clients
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.clients)
}
