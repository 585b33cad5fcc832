package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"tradechat_backend/internal/apperr"
	"tradechat_backend/internal/chat"
	"tradechat_backend/internal/negotiation"
	"tradechat_backend/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096 // 4KB
)

// Event names carried over the socket.
const (
	EventJoinRoom              = "join_room"
	EventSendMessage           = "send_message"
	EventReceiveMessage        = "receive_message"
	EventSendStatusRequest     = "send_status_request"
	EventReceiveStatusRequest  = "receive_status_request"
	EventStatusRequestResponse = "status_request_response"
	EventError                 = "error"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// User ID derived from authentication
	UserID uint

	// Chat and negotiation collaborators; the socket layer is a thin
	// relay and never duplicates their logic.
	Chat   *chat.Service
	Engine *negotiation.Engine

	// Active Room Tracking
	activeRoomID uint
	// closed marks Send as shut down by the hub; guarded by mu so a live
	// ReadPump never sends on a closed channel.
	closed bool
	mu     sync.Mutex
}

func (c *Client) activeRoom() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoomID
}

func (c *Client) setActiveRoom(roomID uint) {
	c.mu.Lock()
	c.activeRoomID = roomID
	c.mu.Unlock()
}

// closeSend shuts down the outbound channel exactly once. Only the hub
// calls it; every write goes through trySend so late writers drop instead
// of panicking.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// trySend queues an outbound frame without blocking. It reports false when
// the client is shut down or its buffer is full.
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// Event is the wire shape of every socket frame, inbound and outbound.
type Event struct {
	Type      string     `json:"type"`
	Room      uint       `json:"room,omitempty"`
	User      uint       `json:"user,omitempty"`
	Message   *string    `json:"message,omitempty"`
	Image     string     `json:"image,omitempty"`
	MessageID uint       `json:"messageId,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`

	RequestedStatus string `json:"requestedStatus,omitempty"`
	RegionCode      string `json:"regionCode,omitempty"`
	AddressDetail   string `json:"addressDetail,omitempty"`
	Amount          *int64 `json:"amount,omitempty"`
	Approved        *bool  `json:"approved,omitempty"`
	NewStatus       string `json:"newStatus,omitempty"`

	Payload *negotiation.Payload `json:"payload,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		c.handleEvent(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued chat messages to the current websocket message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleEvent(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Printf("Error unmarshalling event: %v", err)
		return
	}

	switch ev.Type {
	case EventJoinRoom:
		c.handleJoinRoom(&ev)
	case EventSendMessage:
		c.handleSendMessage(&ev)
	case EventSendStatusRequest:
		c.handleStatusRequest(&ev)
	case EventStatusRequestResponse:
		c.handleStatusResponse(&ev)
	}
}

func (c *Client) handleJoinRoom(ev *Event) {
	if _, err := c.Chat.GetChatRoomDetail(ev.Room, c.UserID); err != nil {
		c.sendError(err)
		return
	}
	c.Hub.JoinRoom(c, ev.Room)
	log.Printf("User %d joined room %d", c.UserID, ev.Room)
}

// handleSendMessage persists the message, then broadcasts it to the room
// whether or not the durable write succeeded. A failed write broadcasts
// with messageId 0; the history fetch is the reconciliation path.
func (c *Client) handleSendMessage(ev *Event) {
	out := Event{
		Type:    EventReceiveMessage,
		Room:    ev.Room,
		User:    c.UserID,
		Message: ev.Message,
		Image:   ev.Image,
	}

	msg, err := c.Chat.SendChatMessage(ev.Room, c.UserID, ev.Message, models.MessageTypeNormal, ev.Image)
	if err != nil {
		// Authorization failures stop the relay; storage failures do not.
		if !apperr.IsKind(err, apperr.KindStorage) {
			c.sendError(err)
			return
		}
		log.Printf("Error saving message for trade %d: %v", ev.Room, err)
		now := time.Now()
		out.CreatedAt = &now
	} else {
		out.MessageID = msg.ID
		out.CreatedAt = &msg.CreatedAt
	}

	c.broadcast(ev.Room, &out)
}

func (c *Client) handleStatusRequest(ev *Event) {
	var extra *negotiation.RequestExtra
	if ev.RegionCode != "" || ev.AddressDetail != "" || ev.Amount != nil {
		extra = &negotiation.RequestExtra{
			RegionCode:    ev.RegionCode,
			AddressDetail: ev.AddressDetail,
			Amount:        ev.Amount,
		}
	}

	msg, payload, err := c.Engine.CreateStatusChangeRequest(
		ev.Room, c.UserID, models.TradeStatus(ev.RequestedStatus), extra)
	if err != nil {
		c.sendError(err)
		return
	}

	c.broadcast(ev.Room, &Event{
		Type:      EventReceiveStatusRequest,
		Room:      ev.Room,
		User:      c.UserID,
		MessageID: msg.ID,
		CreatedAt: &msg.CreatedAt,
		Payload:   payload,
	})
}

func (c *Client) handleStatusResponse(ev *Event) {
	if ev.Approved == nil {
		c.sendError(apperr.Validation("approved flag is required"))
		return
	}

	out := Event{
		Type:      EventStatusRequestResponse,
		Room:      ev.Room,
		User:      c.UserID,
		MessageID: ev.MessageID,
		Approved:  ev.Approved,
	}

	if *ev.Approved {
		newStatus, payload, err := c.Engine.ApproveStatusChangeRequest(ev.Room, ev.MessageID, c.UserID)
		if err != nil {
			c.sendError(err)
			return
		}
		out.NewStatus = string(newStatus)
		out.Payload = payload
	} else {
		payload, err := c.Engine.RejectStatusChangeRequest(ev.Room, ev.MessageID, c.UserID)
		if err != nil {
			c.sendError(err)
			return
		}
		out.Payload = payload
	}

	c.broadcast(ev.Room, &out)
}

func (c *Client) broadcast(roomID uint, ev *Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshalling event: %v", err)
		return
	}
	c.Hub.BroadcastToRoom(roomID, raw)
}

func (c *Client) sendError(err error) {
	ae := apperr.From(err)
	msg := ae.Message
	if ae.Kind == apperr.KindStorage {
		log.Printf("storage failure on socket for user %d: %v", c.UserID, ae)
		msg = "Internal Server Error"
	}
	raw, _ := json.Marshal(Event{Type: EventError, Error: msg})
	c.trySend(raw)
}
