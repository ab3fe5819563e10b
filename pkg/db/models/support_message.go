package models

import (
	"time"

	"github.com/google/uuid"
)

// SupportMessage stores one entry of a support conversation feed.
type SupportMessage struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ConversationID string     `gorm:"type:text;not null;index" json:"conversation_id"`
	SenderName     string     `gorm:"type:text;not null" json:"sender_name"`
	SenderEmail    *string    `gorm:"type:text" json:"sender_email,omitempty"`
	SenderUserID   *string    `gorm:"type:text" json:"sender_user_id,omitempty"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	IsStaff        bool       `gorm:"not null;default:false" json:"is_staff"`
	ReadAt         *time.Time `gorm:"type:timestamptz" json:"read_at,omitempty"`
	CreatedAt      time.Time  `gorm:"type:timestamptz;default:now();index" json:"created_at"`
}

// TableName keeps the table name stable regardless of gorm pluralization.
func (SupportMessage) TableName() string {
	return "support_messages"
}
