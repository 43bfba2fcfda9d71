package websocket

import (
	"albumgrab/types"
	"log"
	"sync"
)

// AllControls is the subscription key that receives every control update
const AllControls = "all"

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run()
	BroadcastControl(msg types.ControlMessage)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
	ClientCount() int
}

// hub maintains the set of active clients and fans control updates out to them
type hub struct {
	// Registered clients mapped by control ID, or AllControls
	clients map[string]map[*Client]bool

	broadcast  chan types.ControlMessage
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() Hub {
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.ControlMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main event loop
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.controlID] == nil {
				h.clients[client.controlID] = make(map[*Client]bool)
			}
			h.clients[client.controlID][client] = true
			h.mu.Unlock()
			log.Printf("[websocket] Client connected for control %s", client.controlID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client.controlID, client)
			h.mu.Unlock()
			log.Printf("[websocket] Client disconnected for control %s", client.controlID)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.deliverLocked(message.ControlID, message)
			h.deliverLocked(AllControls, message)
			h.mu.Unlock()
		}
	}
}

// deliverLocked sends message to every client under key, dropping clients
// whose buffer is full
func (h *hub) deliverLocked(key string, message types.ControlMessage) {
	for client := range h.clients[key] {
		select {
		case client.send <- message:
		default:
			h.removeLocked(key, client)
		}
	}
}

func (h *hub) removeLocked(key string, client *Client) {
	clients, ok := h.clients[key]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, key)
	}
}

// BroadcastControl queues a control update for its subscribers
func (h *hub) BroadcastControl(msg types.ControlMessage) {
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("[websocket] Broadcast channel full, dropping update for control %s", msg.ControlID)
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}
