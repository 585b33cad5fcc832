package ws

import (
	"log"
	"sync"
)

// Hub maintains the set of active clients and relays messages to the
// participants of a trade's room. Delivery is best-effort: the durable
// write path is independent, and a history fetch is the source of truth.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Clients currently joined to each trade's room.
	rooms map[uint]map[*Client]bool

	// Mutex to protect the rooms map
	mutex sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[uint]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("User %d connected", client.UserID)
		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.leaveRoomLocked(client)
				client.closeSend()
			}
			h.mutex.Unlock()
			log.Printf("User %d disconnected", client.UserID)
		}
	}
}

// JoinRoom moves the client into a trade's room, leaving any previous one.
func (h *Hub) JoinRoom(client *Client, roomID uint) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.leaveRoomLocked(client)

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.setActiveRoom(roomID)
}

// LeaveRoom detaches the client from its current room.
func (h *Hub) LeaveRoom(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.leaveRoomLocked(client)
}

func (h *Hub) leaveRoomLocked(client *Client) {
	roomID := client.activeRoom()
	if roomID == 0 {
		return
	}
	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.setActiveRoom(0)
}

// BroadcastToRoom relays a message to every client joined to the room,
// including the sender. Slow clients are dropped rather than blocking the
// relay.
func (h *Hub) BroadcastToRoom(roomID uint, message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.rooms[roomID] {
		if !client.trySend(message) {
			client.closeSend()
			delete(h.clients, client)
			delete(h.rooms[roomID], client)
		}
	}
}

// UsersInRoom returns the distinct user ids currently joined to a room.
func (h *Hub) UsersInRoom(roomID uint) []uint {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var users []uint
	seen := make(map[uint]bool)
	for client := range h.rooms[roomID] {
		if !seen[client.UserID] {
			users = append(users, client.UserID)
			seen[client.UserID] = true
		}
	}
	return users
}
