package models

import "time"

// Conversation tracks per-conversation state that outlives single messages:
// who opened it and whether its notifications are muted.
type Conversation struct {
	ID                 string    `gorm:"type:text;primaryKey" json:"id"`
	CustomerName       string    `gorm:"type:text" json:"customer_name"`
	CustomerEmail      *string   `gorm:"type:text" json:"customer_email,omitempty"`
	NotificationsMuted bool      `gorm:"not null;default:false" json:"notifications_muted"`
	CreatedAt          time.Time `gorm:"type:timestamptz;default:now()" json:"created_at"`
	UpdatedAt          time.Time `gorm:"type:timestamptz;default:now()" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}
