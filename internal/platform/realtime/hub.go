// Package realtime pushes change events to the user's open browser tabs over
// WebSockets so every device shows the same calendar and patient list. Each
// connection belongs to one owner and only ever receives that owner's events.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event describes one committed change.
type Event struct {
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Client is a single connection.
type Client struct {
	ID      string
	OwnerID uuid.UUID
	Send    chan []byte
}

const sendBuffer = 64

func NewClient(ownerID uuid.UUID) *Client {
	return &Client{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Send:    make(chan []byte, sendBuffer),
	}
}

// Hub tracks connected clients by owner. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	logger  zerolog.Logger
	now     func() time.Time
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger.With().Str("component", "realtime").Logger(),
		now:     time.Now,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[c.OwnerID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[c.OwnerID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c and closes its Send channel. Calling it twice is a
// no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.OwnerID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.OwnerID)
	}
	close(c.Send)
}

// Publish delivers e to every connection of ownerID. Slow clients whose
// buffer is full miss the event rather than block the caller.
func (h *Hub) Publish(ownerID uuid.UUID, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now().UTC()
	}
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error().Err(err).Str("resource", e.Resource).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[ownerID] {
		select {
		case c.Send <- msg:
		default:
			h.logger.Warn().Str("client", c.ID).Msg("dropping event for slow client")
		}
	}
}

// Notify is the hook domain services call after a successful write.
func (h *Hub) Notify(ownerID uuid.UUID, resource, action, id string, data any) {
	e := Event{Resource: resource, Action: action, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Error().Err(err).Str("resource", resource).Msg("failed to marshal event data")
			return
		}
		e.Data = raw
	}
	h.Publish(ownerID, e)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// OwnerCount returns the number of connections open for ownerID.
func (h *Hub) OwnerCount(ownerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}
