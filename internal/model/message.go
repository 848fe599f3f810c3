package model

import (
	"time"
)

// Message 持久化后不可变
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   uint      `gorm:"index:idx_conversation,priority:1;not null" json:"sender_id"`
	ReceiverID uint      `gorm:"index:idx_conversation,priority:2;index;not null" json:"receiver_id"`
	Text       string    `gorm:"type:text" json:"text,omitempty"`
	Image      string    `gorm:"type:varchar(1024)" json:"image,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Payload is the content of a message before the store assigns it an id.
type Payload struct {
	Text  string
	Image string
}
