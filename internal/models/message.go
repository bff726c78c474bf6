package models

import (
	"time"
)

// Message is an append-only chat message. The ID is assigned by the
// gateway at ingress so replayed stream events upsert instead of
// duplicating rows, and CreatedAt carries the ingress timestamp rather
// than the persistence time.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	ConversationID string    `json:"conversationId" gorm:"index:idx_messages_conv_created;type:uuid;not null"`
	SenderID       string    `json:"senderId"`
	SenderType     string    `json:"senderType"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index:idx_messages_conv_created"`
}
