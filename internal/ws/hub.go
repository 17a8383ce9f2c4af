// Package ws fans order events out to connected tills and kitchen screens,
// one room per business.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event is the frame sent to clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type businessEvent struct {
	BusinessID uuid.UUID
	Event      Event
}

// Hub tracks connected clients by business and routes events to them.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *businessEvent

	// done is closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *businessEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client's send channel so their write pumps exit. Run must be called
// at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for bid, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, bid)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.businessID] == nil {
				h.rooms[client.businessID] = make(map[*Client]bool)
			}
			h.rooms[client.businessID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			message, err := json.Marshal(ev.Event)
			if err != nil {
				log.Printf("ERROR: ws: marshal %s: %v", ev.Event.Type, err)
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[ev.BusinessID] {
				select {
				case client.send <- message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops client from its room. Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.businessID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.businessID)
	}
}

// join registers client. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client. After shutdown Run has already dropped it.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToBusiness queues event for every client in the business room.
// Events sent after the hub has stopped are dropped.
func (h *Hub) BroadcastToBusiness(businessID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &businessEvent{BusinessID: businessID, Event: event}:
	case <-h.done:
	}
}

// Notify encodes payload and broadcasts it as eventType.
func (h *Hub) Notify(businessID uuid.UUID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: ws: encode %s payload: %v", eventType, err)
		return
	}
	h.BroadcastToBusiness(businessID, Event{Type: eventType, Payload: data})
}

// ClientCount reports how many clients are connected for a business.
func (h *Hub) ClientCount(businessID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[businessID])
}
