package models

import (
	"time"
)

// TradeStatus is the lifecycle state of a trade negotiation.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusInPerson  TradeStatus = "IN_PERSON"
	TradeStatusShipping  TradeStatus = "SHIPPING"
	TradeStatusCompleted TradeStatus = "COMPLETED"
	TradeStatusCanceled  TradeStatus = "CANCELED"
)

// ValidTradeStatus reports whether s is one of the known lifecycle states.
func ValidTradeStatus(s TradeStatus) bool {
	switch s {
	case TradeStatusPending, TradeStatusInPerson, TradeStatusShipping,
		TradeStatusCompleted, TradeStatusCanceled:
		return true
	}
	return false
}

// Trade is the chat room between exactly one buyer and one seller over one
// listing. Status is mutated only by the negotiation engine; rows are never
// hard-deleted, a trade is retired by setting IsClosed.
type Trade struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	ListingID uint        `gorm:"index;not null" json:"listing_id"`
	BuyerID   uint        `gorm:"index;not null" json:"buyer_id"`
	SellerID  uint        `gorm:"index;not null" json:"seller_id"`
	Status    TradeStatus `gorm:"size:20;default:'PENDING'" json:"status"`
	IsClosed  bool        `gorm:"default:false" json:"is_closed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relasi
	Listing Listing `gorm:"foreignKey:ListingID" json:"listing"`
	Buyer   User    `gorm:"foreignKey:BuyerID" json:"buyer"`
	Seller  User    `gorm:"foreignKey:SellerID" json:"seller"`
}

// Participant reports whether userID is the buyer or the seller.
func (t *Trade) Participant(userID uint) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// Counterpart returns the other party's user id.
func (t *Trade) Counterpart(userID uint) uint {
	if t.BuyerID == userID {
		return t.SellerID
	}
	return t.BuyerID
}
