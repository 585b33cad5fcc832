package handlers

import (
	"errors"
	"sort"
	"time"

	"tradechat_backend/internal/apperr"
	"tradechat_backend/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TradeHandler struct {
	DB *gorm.DB
}

func NewTradeHandler(db *gorm.DB) *TradeHandler {
	return &TradeHandler{DB: db}
}

// TradeHistoryItem is one row of a user's trade history; the review
// subsystem binds to TradeRecordID.
type TradeHistoryItem struct {
	ID            uint               `json:"id"`
	Type          string             `json:"type"` // buy, sell
	ListingID     uint               `json:"listing_id"`
	ListingTitle  string             `json:"listing_title"`
	Price         int64              `json:"price"`
	ImageURL      string             `json:"image_url,omitempty"`
	PartnerID     uint               `json:"partner_id"`
	PartnerName   string             `json:"partner_name"`
	Status        models.TradeStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at"`
	TradeRecordID *uint              `json:"trade_record_id"`
}

// GetMyTrades - GET /api/trades
// Merges the user's buy-side and sell-side trades, newest first.
func (h *TradeHandler) GetMyTrades(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var trades []models.Trade
	err := h.DB.Preload("Listing.Images").Preload("Buyer").Preload("Seller").
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&trades).Error
	if err != nil {
		return apperr.Storage("listing trades", err)
	}

	items := make([]TradeHistoryItem, 0, len(trades))
	var buyCount, sellCount int

	for i := range trades {
		trade := &trades[i]

		item := TradeHistoryItem{
			ID:           trade.ID,
			ListingID:    trade.ListingID,
			ListingTitle: trade.Listing.Title,
			Price:        trade.Listing.Price,
			ImageURL:     trade.Listing.FirstImageURL(),
			Status:       trade.Status,
			CreatedAt:    trade.CreatedAt,
		}
		if trade.BuyerID == userID {
			item.Type = "buy"
			item.PartnerID = trade.SellerID
			item.PartnerName = trade.Seller.Username
			buyCount++
		} else {
			item.Type = "sell"
			item.PartnerID = trade.BuyerID
			item.PartnerName = trade.Buyer.Username
			sellCount++
		}

		// Latest record carries the agreed logistics; reviews bind to it.
		var record models.TradeRecord
		err := h.DB.Where("trade_id = ?", trade.ID).
			Order("created_at DESC").First(&record).Error
		if err == nil {
			item.TradeRecordID = &record.ID
			item.CompletedAt = &record.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Storage("loading trade record", err)
		}

		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return c.JSON(models.SuccessResponse("Trades fetched", fiber.Map{
		"trades":     items,
		"buyCount":   buyCount,
		"sellCount":  sellCount,
		"totalCount": buyCount + sellCount,
	}))
}

// GetMyTradeCount - GET /api/trades/count
func (h *TradeHandler) GetMyTradeCount(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var buyCount, sellCount int64
	if err := h.DB.Model(&models.Trade{}).Where("buyer_id = ?", userID).
		Count(&buyCount).Error; err != nil {
		return apperr.Storage("counting buy trades", err)
	}
	if err := h.DB.Model(&models.Trade{}).Where("seller_id = ?", userID).
		Count(&sellCount).Error; err != nil {
		return apperr.Storage("counting sell trades", err)
	}

	return c.JSON(models.SuccessResponse("Trade counts fetched", fiber.Map{
		"buyCount":   buyCount,
		"sellCount":  sellCount,
		"totalCount": buyCount + sellCount,
	}))
}
