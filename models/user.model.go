package models

import (
	"time"

	"gorm.io/gorm"
)

// User is supplied by the external auth subsystem; the chat core only reads
// the identifier and display fields.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Informasi Login
	Username string `gorm:"unique;not null;size:50" json:"username"`
	Email    string `gorm:"unique;not null;size:100" json:"email"`
	Password string `gorm:"not null" json:"-"`

	// Profil
	ImageURL string `json:"image_url"`

	// System Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
