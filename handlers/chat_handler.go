package handlers

import (
	"log"

	"tradechat_backend/internal/apperr"
	"tradechat_backend/internal/chat"
	"tradechat_backend/internal/negotiation"
	"tradechat_backend/internal/ws"
	"tradechat_backend/models"
	"tradechat_backend/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	Hub    *ws.Hub
	Chat   *chat.Service
	Engine *negotiation.Engine
}

func NewChatHandler(hub *ws.Hub, chatSvc *chat.Service, engine *negotiation.Engine) *ChatHandler {
	return &ChatHandler{
		Hub:    hub,
		Chat:   chatSvc,
		Engine: engine,
	}
}

func currentUserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("user_id").(uint); ok {
		return id
	}
	return 0
}

// WebSocketUpgradeMiddleware ensures the client is upgrading to WebSocket
// and authenticates the connection from its token query parameter.
func (h *ChatHandler) WebSocketUpgradeMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID, err := utils.ParseToken(c.Query("token"))
	if err != nil || userID == 0 {
		return fiber.ErrUnauthorized
	}
	c.Locals("user_id", userID)
	c.Locals("allowed", true)
	return c.Next()
}

// WebSocketHandler returns the websocket handler function
func (h *ChatHandler) WebSocketHandler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, ok := c.Locals("user_id").(uint)
		if !ok || userID == 0 {
			log.Println("Invalid or missing User ID in WebSocket connection")
			c.Close()
			return
		}

		client := &ws.Client{
			Hub:    h.Hub,
			Conn:   c,
			Send:   make(chan []byte, 256),
			UserID: userID,
			Chat:   h.Chat,
			Engine: h.Engine,
		}

		client.Hub.Register <- client

		go client.WritePump()
		client.ReadPump()
	})
}

// CreateChatRoomRequest defines payload for opening a room against a listing
type CreateChatRoomRequest struct {
	ListingID uint `json:"listingId"`
}

// CreateChatRoom - POST /api/chat/rooms
// Returns the existing open room for (listing, caller) or creates one.
func (h *ChatHandler) CreateChatRoom(c *fiber.Ctx) error {
	var req CreateChatRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid input")
	}
	if req.ListingID == 0 {
		return apperr.Validation("listingId is required")
	}

	trade, created, err := h.Chat.GetOrCreateChatRoom(req.ListingID, currentUserID(c))
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	message := "Chat room found"
	if created {
		status = fiber.StatusCreated
		message = "Chat room created"
	}
	return c.Status(status).JSON(models.SuccessResponse(message, trade))
}

// GetMyChatRooms - GET /api/chat/rooms
func (h *ChatHandler) GetMyChatRooms(c *fiber.Ctx) error {
	rooms, err := h.Chat.GetUserChatRooms(currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse("Chat rooms fetched", rooms))
}

// GetChatRoomDetail - GET /api/chat/rooms/:tradeId
func (h *ChatHandler) GetChatRoomDetail(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}

	trade, err := h.Chat.GetChatRoomDetail(uint(tradeID), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse("Chat room fetched", trade))
}

// GetChatMessages - GET /api/chat/rooms/:tradeId/messages?limit&beforeId
func (h *ChatHandler) GetChatMessages(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}

	limit := c.QueryInt("limit", chat.DefaultPageSize)
	beforeID := c.QueryInt("beforeId", 0)
	if beforeID < 0 {
		return apperr.Validation("beforeId must be non-negative")
	}

	page, err := h.Chat.GetChatMessages(uint(tradeID), currentUserID(c), limit, uint(beforeID))
	if err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse("Messages fetched", page))
}

// SendMessageRequest defines payload for a chat message
type SendMessageRequest struct {
	Content     *string            `json:"content"`
	MessageType models.MessageType `json:"messageType"`
	ImageURL    string             `json:"imageUrl"`
}

// SendMessage - POST /api/chat/rooms/:tradeId/messages
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid input")
	}

	message, err := h.Chat.SendChatMessage(uint(tradeID), currentUserID(c), req.Content, req.MessageType, req.ImageURL)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse("Message sent", message))
}

// StatusRequestPayload defines payload for a status-change request
type StatusRequestPayload struct {
	RequestedStatus models.TradeStatus `json:"requestedStatus"`
	RegionCode      string             `json:"regionCode"`
	AddressDetail   string             `json:"addressDetail"`
	Amount          *int64             `json:"amount"`
}

// CreateStatusRequest - POST /api/chat/rooms/:tradeId/status-requests
func (h *ChatHandler) CreateStatusRequest(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}

	var req StatusRequestPayload
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid input")
	}
	if req.RequestedStatus == "" {
		return apperr.Validation("requestedStatus is required")
	}

	var extra *negotiation.RequestExtra
	if req.RegionCode != "" || req.AddressDetail != "" || req.Amount != nil {
		extra = &negotiation.RequestExtra{
			RegionCode:    req.RegionCode,
			AddressDetail: req.AddressDetail,
			Amount:        req.Amount,
		}
	}

	message, payload, err := h.Engine.CreateStatusChangeRequest(uint(tradeID), currentUserID(c), req.RequestedStatus, extra)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse("Status change requested", fiber.Map{
		"message": message,
		"payload": payload,
	}))
}

// ApproveStatusRequest - POST /api/chat/rooms/:tradeId/status-requests/:messageId/approve
func (h *ChatHandler) ApproveStatusRequest(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}
	messageID, err := c.ParamsInt("messageId")
	if err != nil {
		return apperr.Validation("invalid message ID")
	}

	newStatus, payload, err := h.Engine.ApproveStatusChangeRequest(uint(tradeID), uint(messageID), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse("Status change approved", fiber.Map{
		"newStatus": newStatus,
		"payload":   payload,
	}))
}

// RejectStatusRequest - POST /api/chat/rooms/:tradeId/status-requests/:messageId/reject
func (h *ChatHandler) RejectStatusRequest(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}
	messageID, err := c.ParamsInt("messageId")
	if err != nil {
		return apperr.Validation("invalid message ID")
	}

	payload, err := h.Engine.RejectStatusChangeRequest(uint(tradeID), uint(messageID), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse("Status change rejected", fiber.Map{
		"payload": payload,
	}))
}

// UpdateStatusRequest defines payload for the direct status write
type UpdateStatusRequest struct {
	Status models.TradeStatus `json:"status"`
}

// UpdateTradeStatus - PATCH /api/chat/rooms/:tradeId/status
// Legacy direct write bypassing the approval protocol.
func (h *ChatHandler) UpdateTradeStatus(c *fiber.Ctx) error {
	tradeID, err := c.ParamsInt("tradeId")
	if err != nil {
		return apperr.Validation("invalid room ID")
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid input")
	}

	trade, err := h.Engine.UpdateTradeStatus(uint(tradeID), currentUserID(c), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse("Trade status updated", trade))
}
