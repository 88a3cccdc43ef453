package sse

import (
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Event represents a Server-Sent Event scoped to one company channel
type Event struct {
	CompanyID string `json:"company_id"`
	Channel   string `json:"channel"`
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID        string
	UserID    string
	CompanyID string
	// Channels the client asked for; empty means every channel of its company.
	Channels map[string]bool
	Events   chan Event
}

func (c *Client) wants(e Event) bool {
	if c.CompanyID != e.CompanyID {
		return false
	}
	if len(c.Channels) == 0 || e.Channel == CompanyChannel(c.CompanyID) {
		return true
	}
	return c.Channels[e.Channel]
}

// ParseChannels turns "order:1,project:2" into a channel set.
func ParseChannels(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			set[ch] = true
		}
	}
	return set
}

// Channel names
func OrderChannel(id string) string { return "order:" + id }
func ProjectChannel(id string) string { return "project:" + id }
func DeliveryChannel(id string) string { return "delivery:" + id }
func CompanyChannel(id string) string { return "company:" + id }

const EventDashboardUpdated = "dashboard_updated"

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("SSE client registered",
		zap.String("client_id", client.ID),
		zap.String("company_id", client.CompanyID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("SSE client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Deliver sends an event to every local client subscribed to its channel
func (h *Hub) Deliver(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.wants(event) {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("SSE client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// Broadcast publishes payload as event on a company channel
func (h *Hub) Broadcast(companyID, channel, event string, payload interface{}) {
	h.Deliver(NewEvent(companyID, channel, event, payload))
}

// BroadcastDashboardUpdated tells every client of the company to refresh dashboard figures
func (h *Hub) BroadcastDashboardUpdated(companyID string) {
	h.Broadcast(companyID, CompanyChannel(companyID), EventDashboardUpdated, map[string]string{"company_id": companyID})
}

// NewEvent encodes payload into an Event
func NewEvent(companyID, channel, event string, payload interface{}) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return Event{CompanyID: companyID, Channel: channel, EventType: event, Data: string(data)}
}
