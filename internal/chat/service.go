// Package chat owns room lifecycle, history pagination and the membership
// gate shared by every chat and negotiation operation.
package chat

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"tradechat_backend/internal/apperr"
	"tradechat_backend/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RoomSummary is one row of a user's chat room list.
type RoomSummary struct {
	ID              uint               `json:"id"`
	ListingID       uint               `json:"listing_id"`
	ListingTitle    string             `json:"listing_title"`
	ListingImageURL string             `json:"listing_image_url,omitempty"`
	ListingPrice    int64              `json:"listing_price"`
	OtherUserID     uint               `json:"other_user_id"`
	OtherUserName   string             `json:"other_user_name"`
	LastMessage     *string            `json:"last_message"`
	LastMessageTime time.Time          `json:"last_message_time"`
	Status          models.TradeStatus `json:"status"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// MessageView is one message formatted for history responses.
type MessageView struct {
	ID          uint               `json:"id"`
	SenderID    uint               `json:"sender_id"`
	SenderName  string             `json:"sender_name"`
	Content     *string            `json:"content"`
	MessageType models.MessageType `json:"message_type"`
	ImageURL    string             `json:"image_url,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// MessagePage is a backward-scroll page in chronological order.
type MessagePage struct {
	Messages []MessageView `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// GetOrCreateChatRoom returns the open trade for (listing, buyer), creating
// it in PENDING with the seller derived from the listing's owner. The
// existence check and the insert share one transaction so concurrent
// duplicate calls cannot create two open trades.
func (s *Service) GetOrCreateChatRoom(listingID, buyerID uint) (*models.Trade, bool, error) {
	var trade models.Trade
	created := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		err := tx.First(&listing, listingID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("listing not found")
		}
		if err != nil {
			return apperr.Storage("loading listing", err)
		}

		if listing.SellerID == buyerID {
			return apperr.Validation("you cannot open a chat room on your own listing")
		}

		err = tx.Where("listing_id = ? AND buyer_id = ? AND is_closed = ?", listingID, buyerID, false).
			First(&trade).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Storage("looking up chat room", err)
		}

		trade = models.Trade{
			ListingID: listingID,
			BuyerID:   buyerID,
			SellerID:  listing.SellerID,
			Status:    models.TradeStatusPending,
			IsClosed:  false,
		}
		if err := tx.Create(&trade).Error; err != nil {
			return apperr.Storage("creating chat room", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.db.Preload("Listing.Images").Preload("Buyer").Preload("Seller").
		First(&trade, trade.ID).Error; err != nil {
		return nil, false, apperr.Storage("loading chat room", err)
	}
	return &trade, created, nil
}

// GetUserChatRooms lists the user's open trades, most recently active
// first, each annotated with the counterpart and the latest message.
func (s *Service) GetUserChatRooms(userID uint) ([]RoomSummary, error) {
	var trades []models.Trade
	err := s.db.Preload("Listing.Images").Preload("Buyer").Preload("Seller").
		Where("(buyer_id = ? OR seller_id = ?) AND is_closed = ?", userID, userID, false).
		Order("updated_at DESC").
		Find(&trades).Error
	if err != nil {
		return nil, apperr.Storage("listing chat rooms", err)
	}

	summaries := make([]RoomSummary, 0, len(trades))
	for i := range trades {
		trade := &trades[i]

		other := trade.Seller
		if trade.SellerID == userID {
			other = trade.Buyer
		}

		summary := RoomSummary{
			ID:              trade.ID,
			ListingID:       trade.ListingID,
			ListingTitle:    trade.Listing.Title,
			ListingImageURL: trade.Listing.FirstImageURL(),
			ListingPrice:    trade.Listing.Price,
			OtherUserID:     other.ID,
			OtherUserName:   other.Username,
			LastMessageTime: trade.UpdatedAt,
			Status:          trade.Status,
			UpdatedAt:       trade.UpdatedAt,
		}

		var last models.Message
		err := s.db.Where("trade_id = ?", trade.ID).Order("id DESC").First(&last).Error
		if err == nil {
			summary.LastMessage = last.Content
			summary.LastMessageTime = last.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Storage("loading last message", err)
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetChatRoomDetail is the authorization gate reused by every operation:
// it fails Forbidden unless userID is the buyer or the seller.
func (s *Service) GetChatRoomDetail(tradeID, userID uint) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.Preload("Listing.Images").Preload("Buyer").Preload("Seller").
		First(&trade, tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("chat room not found")
	}
	if err != nil {
		return nil, apperr.Storage("loading chat room", err)
	}
	if !trade.Participant(userID) {
		return nil, apperr.Forbidden("you are not a participant of this chat room")
	}
	return &trade, nil
}

// GetChatMessages scrolls backward through a trade's timeline. It fetches
// limit+1 rows descending by id (optionally below beforeID), uses the extra
// row only to compute HasMore, then returns the page ascending for display.
func (s *Service) GetChatMessages(tradeID, userID uint, limit int, beforeID uint) (*MessagePage, error) {
	if _, err := s.GetChatRoomDetail(tradeID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	query := s.db.Preload("Sender").Preload("Image").
		Where("trade_id = ?", tradeID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var messages []models.Message
	if err := query.Order("id DESC").Limit(limit + 1).Find(&messages).Error; err != nil {
		return nil, apperr.Storage("loading messages", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Oldest first for chronological display.
	views := make([]MessageView, len(messages))
	for i := range messages {
		msg := &messages[len(messages)-1-i]
		view := MessageView{
			ID:          msg.ID,
			SenderID:    msg.SenderID,
			SenderName:  msg.Sender.Username,
			Content:     msg.Content,
			MessageType: msg.MessageType,
			CreatedAt:   msg.CreatedAt,
		}
		if msg.Image != nil {
			view.ImageURL = msg.Image.URL
		}
		views[i] = view
	}

	return &MessagePage{Messages: views, HasMore: hasMore}, nil
}

// SendChatMessage appends a message (plus optional image row) and touches
// the trade's recency, all in one transaction.
func (s *Service) SendChatMessage(tradeID, senderID uint, content *string, msgType models.MessageType, imageURL string) (*models.Message, error) {
	if msgType == "" {
		msgType = models.MessageTypeNormal
	}
	if (content == nil || *content == "") && imageURL == "" {
		return nil, apperr.Validation("message content or image is required")
	}

	var message models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var trade models.Trade
		err := tx.First(&trade, tradeID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("chat room not found")
		}
		if err != nil {
			return apperr.Storage("loading chat room", err)
		}
		if !trade.Participant(senderID) {
			return apperr.Forbidden("you are not a participant of this chat room")
		}

		message = models.Message{
			TradeID:     tradeID,
			SenderID:    senderID,
			Content:     content,
			MessageType: msgType,
		}
		if err := tx.Create(&message).Error; err != nil {
			return apperr.Storage("creating message", err)
		}

		if imageURL != "" {
			image := models.MessageImage{MessageID: message.ID, URL: imageURL}
			if err := tx.Create(&image).Error; err != nil {
				return apperr.Storage("creating message image", err)
			}
			message.Image = &image
		}

		if err := tx.Model(&models.Trade{}).Where("id = ?", tradeID).
			Update("updated_at", time.Now()).Error; err != nil {
			return apperr.Storage("touching trade", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &message, nil
}
