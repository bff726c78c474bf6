package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"eshop-marketplace/chatting-service/internal/models"
)

// ConversationRepository manages conversation groups and their participants.
// Direct buyer/seller conversations hold exactly two participants, one with
// UserID set and one with SellerID set.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindDirect looks up the direct conversation between a user and a seller.
// Returns nil when none exists.
func (r *ConversationRepository) FindDirect(ctx context.Context, userID, sellerID string) (*models.ConversationGroup, error) {
	var conv models.ConversationGroup
	err := r.db.WithContext(ctx).
		Joins("JOIN participants up ON up.conversation_id = conversation_groups.id AND up.user_id = ?", userID).
		Joins("JOIN participants sp ON sp.conversation_id = conversation_groups.id AND sp.seller_id = ?", sellerID).
		Where("conversation_groups.is_group = ?", false).
		First(&conv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return &conv, nil
}

// Create inserts a direct conversation with both participants in one
// transaction.
func (r *ConversationRepository) Create(ctx context.Context, userID, sellerID, creatorID string) (*models.ConversationGroup, error) {
	conv := models.ConversationGroup{
		ID:        uuid.NewString(),
		IsGroup:   false,
		CreatorID: creatorID,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		participants := []models.Participant{
			{ConversationID: conv.ID, UserID: &userID},
			{ConversationID: conv.ID, SellerID: &sellerID},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// ListByUser returns the conversations a user participates in, most recently
// updated first, along with the seller on the other side of each.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID string) ([]ConversationWithCounterpart, error) {
	return r.listByParticipant(ctx, "up.user_id = ?", userID, "seller_id")
}

// ListBySeller is the seller-side counterpart of ListByUser.
func (r *ConversationRepository) ListBySeller(ctx context.Context, sellerID string) ([]ConversationWithCounterpart, error) {
	return r.listByParticipant(ctx, "up.seller_id = ?", sellerID, "user_id")
}

// ConversationWithCounterpart pairs a conversation with the ID of the
// participant opposite the caller.
type ConversationWithCounterpart struct {
	Conversation   models.ConversationGroup
	CounterpartID  string
}

func (r *ConversationRepository) listByParticipant(ctx context.Context, ownCond, ownID, counterpartColumn string) ([]ConversationWithCounterpart, error) {
	type row struct {
		models.ConversationGroup
		CounterpartID string
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.ConversationGroup{}).
		Select("conversation_groups.*, cp."+counterpartColumn+" AS counterpart_id").
		Joins("JOIN participants up ON up.conversation_id = conversation_groups.id AND "+ownCond, ownID).
		Joins("JOIN participants cp ON cp.conversation_id = conversation_groups.id AND cp."+counterpartColumn+" IS NOT NULL").
		Order("conversation_groups.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	out := make([]ConversationWithCounterpart, 0, len(rows))
	for _, rw := range rows {
		out = append(out, ConversationWithCounterpart{
			Conversation:  rw.ConversationGroup,
			CounterpartID: rw.CounterpartID,
		})
	}
	return out, nil
}

// HasParticipant reports whether the given participant belongs to the
// conversation. Used for access checks on history reads.
func (r *ConversationRepository) HasParticipant(ctx context.Context, conversationID, column, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("conversation_id = ? AND "+column+" = ?", conversationID, id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return count > 0, nil
}

// Counterpart returns the participant ID opposite the given column in a
// direct conversation.
func (r *ConversationRepository) Counterpart(ctx context.Context, conversationID, counterpartColumn string) (string, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND "+counterpartColumn+" IS NOT NULL", conversationID).
		First(&p).Error
	if err != nil {
		return "", fmt.Errorf("find counterpart: %w", err)
	}
	if counterpartColumn == "user_id" && p.UserID != nil {
		return *p.UserID, nil
	}
	if counterpartColumn == "seller_id" && p.SellerID != nil {
		return *p.SellerID, nil
	}
	return "", gorm.ErrRecordNotFound
}
