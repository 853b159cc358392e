package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jeogo/casnos-sub001/internal/metrics"
)

type Client struct {
	ID   string
	Send chan []byte

	rooms map[string]struct{}
}

func NewClient(id string, buffer int) *Client {
	return &Client{ID: id, Send: make(chan []byte, buffer), rooms: map[string]struct{}{}}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	now     func() time.Time
}

type envelope struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.rooms == nil {
		client.rooms = map[string]struct{}{}
	}
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Join(clientID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[clientID]
	if !ok || room == "" {
		return false
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[clientID] = client
	client.rooms[room] = struct{}{}
	return true
}

func (h *Hub) Leave(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		h.leaveLocked(client, room)
	}
}

func (h *Hub) leaveLocked(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) InRoom(clientID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][clientID]
	return ok
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Encode builds the wire frame for an emission, stamping timestamp and
// serverTime into a copy of data.
func (h *Hub) Encode(event string, data map[string]interface{}) ([]byte, error) {
	now := h.now()
	enriched := make(map[string]interface{}, len(data)+2)
	for key, value := range data {
		enriched[key] = value
	}
	enriched["timestamp"] = now.Format("2006-01-02T15:04:05.000Z07:00")
	enriched["serverTime"] = now.UnixMilli()
	return json.Marshal(envelope{Event: event, Data: enriched})
}

func (h *Hub) EmitAll(event string, data map[string]interface{}) {
	payload, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		deliver(client, payload)
	}
}

func (h *Hub) EmitRoom(room, event string, data map[string]interface{}) {
	payload, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[room] {
		deliver(client, payload)
	}
}

func (h *Hub) EmitDevice(deviceID, event string, data map[string]interface{}) {
	h.EmitRoom("device:"+deviceID, event, data)
}

// Send delivers to a single connection. It reports false when the client
// is gone or its buffer is full.
func (h *Hub) Send(clientID, event string, data map[string]interface{}) bool {
	payload, ok := h.encode(event, data)
	if !ok {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	return deliver(client, payload)
}

func (h *Hub) encode(event string, data map[string]interface{}) ([]byte, bool) {
	payload, err := h.Encode(event, data)
	if err != nil {
		log.Printf("encode event=%s: %v", event, err)
		return nil, false
	}
	return payload, true
}

func deliver(client *Client, payload []byte) bool {
	select {
	case client.Send <- payload:
		return true
	default:
		metrics.BroadcastDropped.Inc()
		log.Printf("drop message for client %s", client.ID)
		return false
	}
}
