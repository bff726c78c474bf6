package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eshop-marketplace/chatting-service/internal/models"
)

// MessageRepository persists and queries chat messages.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveBatch inserts a batch of messages in one statement. Message IDs are
// assigned at the gateway, so conflicting rows are replays of an earlier
// partially-applied flush and are skipped rather than duplicated.
func (r *MessageRepository) SaveBatch(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&msgs).Error
	if err != nil {
		return fmt.Errorf("save message batch: %w", err)
	}

	// Bump conversation recency so listings sort by latest activity.
	seen := make(map[string]struct{}, len(msgs))
	convIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.ConversationID]; ok {
			continue
		}
		seen[m.ConversationID] = struct{}{}
		convIDs = append(convIDs, m.ConversationID)
	}
	err = r.db.WithContext(ctx).
		Model(&models.ConversationGroup{}).
		Where("id IN ?", convIDs).
		Update("updated_at", gorm.Expr("NOW()")).Error
	if err != nil {
		return fmt.Errorf("touch conversations: %w", err)
	}
	return nil
}

// ListByConversationPaginated returns one page of messages, newest first,
// and whether older messages remain beyond this page.
func (r *MessageRepository) ListByConversationPaginated(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error) {
	if page < 1 {
		page = 1
	}
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize + 1).
		Find(&msgs).Error
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	hasMore := len(msgs) > pageSize
	if hasMore {
		msgs = msgs[:pageSize]
	}
	return msgs, hasMore, nil
}

// LastMessage returns the most recent message of a conversation, or nil
// when the conversation has none.
func (r *MessageRepository) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("last message: %w", err)
	}
	return &msg, nil
}
