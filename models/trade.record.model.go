package models

import (
	"time"
)

// TradeRecord snapshots the agreed logistics of a trade at the moment an
// in-person/shipping request is approved. A trade may accumulate several
// records across renegotiation; reviews bind to a specific record id.
type TradeRecord struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TradeID       uint   `gorm:"index;not null" json:"trade_id"`
	RegionID      *uint  `gorm:"index" json:"region_id"`
	Amount        int64  `gorm:"not null" json:"amount"`
	AddressDetail string `gorm:"type:text" json:"address_detail"`

	CreatedAt time.Time `json:"created_at"`

	Trade  Trade   `gorm:"foreignKey:TradeID" json:"-"`
	Region *Region `gorm:"foreignKey:RegionID" json:"region,omitempty"`
}
