package models

import (
	"time"

	"gorm.io/gorm"
)

// Listing is owned by the listing subsystem; the chat core reads ownership
// and price when opening a room and title/image for room summaries.
type Listing struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	SellerID    uint   `gorm:"index;not null" json:"seller_id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Price       int64  `gorm:"not null" json:"price"`
	Status      string `gorm:"default:'available';size:20" json:"status"` // available, sold

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	// Relations
	Seller User           `gorm:"foreignKey:SellerID" json:"seller"`
	Images []ListingImage `gorm:"foreignKey:ListingID" json:"images"`
}

// ListingImage is an ordered listing photo; the first one illustrates room
// summaries and trade history rows.
type ListingImage struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ListingID uint   `gorm:"index;not null" json:"listing_id"`
	URL       string `gorm:"not null" json:"url"`
	Order     int    `gorm:"column:img_order;default:0" json:"order"`
}

// FirstImageURL returns the lowest-ordered image url, or empty.
func (l *Listing) FirstImageURL() string {
	if len(l.Images) == 0 {
		return ""
	}
	first := l.Images[0]
	for _, img := range l.Images[1:] {
		if img.Order < first.Order {
			first = img
		}
	}
	return first.URL
}
