package models

import (
	"time"
)

// ConversationGroup is a 1:1 buyer/seller thread. Membership is immutable
// after creation and recorded through Participant rows.
type ConversationGroup struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	IsGroup   bool      `json:"isGroup" gorm:"default:false"`
	CreatorID string    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant binds a ConversationGroup to either a buyer or a seller
// identity. Exactly one of UserID / SellerID is set, never both.
type Participant struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	ConversationID string  `json:"conversationId" gorm:"index;type:uuid"`
	UserID         *string `json:"userId,omitempty" gorm:"index"`
	SellerID       *string `json:"sellerId,omitempty" gorm:"index"`
}
