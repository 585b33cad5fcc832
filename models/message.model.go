package models

import (
	"time"
)

// MessageType tags a message in a trade's timeline. NORMAL messages carry
// free-form content; the status-typed messages carry a serialized
// negotiation payload as their content.
type MessageType string

const (
	MessageTypeNormal    MessageType = "NORMAL"
	MessageTypePending   MessageType = "PENDING"
	MessageTypeInPerson  MessageType = "IN_PERSON"
	MessageTypeShipping  MessageType = "SHIPPING"
	MessageTypeCompleted MessageType = "COMPLETED"
	MessageTypeCanceled  MessageType = "CANCELED"
)

// MessageTypeForStatus maps a requested trade status to the message type
// tagging its request message.
func MessageTypeForStatus(s TradeStatus) MessageType {
	switch s {
	case TradeStatusInPerson:
		return MessageTypeInPerson
	case TradeStatusShipping:
		return MessageTypeShipping
	case TradeStatusCompleted:
		return MessageTypeCompleted
	case TradeStatusCanceled:
		return MessageTypeCanceled
	default:
		return MessageTypePending
	}
}

// Message is an append-only event in a trade's timeline. The auto-increment
// id doubles as the pagination cursor; ids are monotonic and never reused.
// The one sanctioned mutation is the negotiation engine rewriting a request
// message's embedded approval state.
type Message struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	TradeID     uint        `gorm:"index;not null" json:"trade_id"`
	SenderID    uint        `gorm:"index;not null" json:"sender_id"`
	Content     *string     `gorm:"type:text" json:"content"` // NULL for pure image messages
	MessageType MessageType `gorm:"size:20;default:'NORMAL'" json:"message_type"`

	CreatedAt time.Time `json:"created_at"`

	// Relasi
	Sender User          `gorm:"foreignKey:SenderID" json:"sender"`
	Image  *MessageImage `gorm:"foreignKey:MessageID" json:"image,omitempty"`
}

// MessageImage is the attached image reference of an image message.
type MessageImage struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MessageID uint   `gorm:"index;not null" json:"message_id"`
	URL       string `gorm:"not null" json:"url"`
}
