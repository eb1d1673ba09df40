package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event names pushed to subscribed POS terminals.
const (
	EventNewOrder           = "new_order"
	EventOrderStatusUpdated = "order_status_updated"
)

// Event represents a WebSocket message to be broadcast.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// storeEvent is an internal struct for routing events to a store's room.
type storeEvent struct {
	StoreID uuid.UUID
	Event   Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Publishing is fire-and-forget: an event to a store without subscribers is
// simply dropped, and a full broadcast buffer never blocks the caller.
type Hub struct {
	// Registered clients by store ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *storeEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *storeEvent, 256),
	}
}

// Run starts the hub's main loop.
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.storeID] == nil {
				h.rooms[client.storeID] = make(map[*Client]bool)
			}
			h.rooms[client.storeID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.storeID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.storeID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.StoreID]

			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.rooms[event.StoreID], client)
					if len(h.rooms[event.StoreID]) == 0 {
						delete(h.rooms, event.StoreID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToStore sends an event to all clients subscribed to a store.
// Never blocks; if the hub is saturated the event is dropped.
func (h *Hub) BroadcastToStore(storeID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &storeEvent{StoreID: storeID, Event: event}:
	default:
		log.Printf("WARNING: ws hub saturated, dropped %s event for store %s", event.Type, storeID)
	}
}

// Publish marshals payload and broadcasts it under the given event name.
// Marshal failures are logged and swallowed: a broken push must never fail
// the request that triggered it.
func (h *Hub) Publish(storeID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.BroadcastToStore(storeID, Event{Type: eventType, Payload: raw})
}
