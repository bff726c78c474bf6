// Package service implements the REST-facing conversation operations:
// starting conversations, listing them per participant, and reading
// paginated history.
package service

import (
	"context"
	"time"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/presence"
	"eshop-marketplace/chatting-service/internal/chat/repository"
	"eshop-marketplace/chatting-service/internal/chat/unseen"
	"eshop-marketplace/chatting-service/internal/models"
	apperrors "eshop-marketplace/chatting-service/pkg/errors"
	"eshop-marketplace/chatting-service/pkg/logger"
)

// ConversationStore is the subset of repository.ConversationRepository the
// service depends on.
type ConversationStore interface {
	FindDirect(ctx context.Context, userID, sellerID string) (*models.ConversationGroup, error)
	Create(ctx context.Context, userID, sellerID, creatorID string) (*models.ConversationGroup, error)
	ListByUser(ctx context.Context, userID string) ([]repository.ConversationWithCounterpart, error)
	ListBySeller(ctx context.Context, sellerID string) ([]repository.ConversationWithCounterpart, error)
	HasParticipant(ctx context.Context, conversationID, column, id string) (bool, error)
	Counterpart(ctx context.Context, conversationID, counterpartColumn string) (string, error)
}

// MessageStore is the subset of repository.MessageRepository the service
// depends on.
type MessageStore interface {
	ListByConversationPaginated(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error)
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)
}

// ChatService wires conversation metadata, message history, presence and
// unread counts into the shapes the REST API serves.
type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	presence      presence.Store
	unseen        unseen.Store
	directory     ProfileDirectory
	pageSize      int
	logger        *logger.Logger
}

func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	pres presence.Store,
	counts unseen.Store,
	directory ProfileDirectory,
	pageSize int,
	log *logger.Logger,
) *ChatService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		presence:      pres,
		unseen:        counts,
		directory:     directory,
		pageSize:      pageSize,
		logger:        log.WithComponent("chat.service"),
	}
}

// ConversationSummary is one row of a participant's conversation list.
type ConversationSummary struct {
	ConversationID string         `json:"conversationId"`
	Counterpart    ProfileSummary `json:"counterpart"`
	Online         bool           `json:"online"`
	UnseenCount    int64          `json:"unseenCount"`
	LastMessage    *MessageView   `json:"lastMessage,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// MessageView is the REST representation of a stored message.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderType     string    `json:"senderType"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toMessageView(m models.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderType:     m.SenderType,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

// CounterpartView decorates a profile with live presence for history reads.
type CounterpartView struct {
	ProfileSummary
	Online bool `json:"online"`
}

// MessagePage is one page of conversation history, newest first.
type MessagePage struct {
	Messages    []MessageView    `json:"messages"`
	Page        int              `json:"page"`
	HasMore     bool             `json:"hasMore"`
	Counterpart *CounterpartView `json:"counterpart,omitempty"`
}

// StartConversation returns the direct conversation between a user and a
// seller, creating it when none exists. Calling it twice with the same pair
// yields the same conversation.
func (s *ChatService) StartConversation(ctx context.Context, userID, sellerID string, creator identity.Identity) (*models.ConversationGroup, bool, error) {
	if userID == "" || sellerID == "" {
		return nil, false, apperrors.NewBadRequestError("VALIDATION_ERROR", "userId and sellerId are required")
	}
	existing, err := s.conversations.FindDirect(ctx, userID, sellerID)
	if err != nil {
		return nil, false, apperrors.NewInternalServerError("DATABASE_ERROR", err.Error())
	}
	if existing != nil {
		return existing, false, nil
	}
	conv, err := s.conversations.Create(ctx, userID, sellerID, creator.String())
	if err != nil {
		// A concurrent request may have created the pair between our
		// lookup and insert.
		if again, lookupErr := s.conversations.FindDirect(ctx, userID, sellerID); lookupErr == nil && again != nil {
			return again, false, nil
		}
		return nil, false, apperrors.NewInternalServerError("DATABASE_ERROR", err.Error())
	}
	return conv, true, nil
}

// ListConversations returns the caller's conversations, most recently
// active first, decorated with counterpart profile, live presence and the
// caller's unread count.
func (s *ChatService) ListConversations(ctx context.Context, caller identity.Identity) ([]ConversationSummary, error) {
	var (
		rows []repository.ConversationWithCounterpart
		err  error
	)
	switch caller.Role {
	case identity.RoleSeller:
		rows, err = s.conversations.ListBySeller(ctx, caller.ID)
	default:
		rows, err = s.conversations.ListByUser(ctx, caller.ID)
	}
	if err != nil {
		return nil, apperrors.NewInternalServerError("DATABASE_ERROR", err.Error())
	}

	counterpartRole := identity.Opposite(caller.Role)
	out := make([]ConversationSummary, 0, len(rows))
	for _, row := range rows {
		summary := ConversationSummary{
			ConversationID: row.Conversation.ID,
			UpdatedAt:      row.Conversation.UpdatedAt,
		}

		profile, err := s.directory.Lookup(ctx, counterpartRole, row.CounterpartID)
		if err != nil {
			s.logger.Warn("profile lookup failed", "error", err,
				"role", counterpartRole, "id", row.CounterpartID)
			profile = ProfileSummary{ID: row.CounterpartID, Name: row.CounterpartID}
		}
		summary.Counterpart = profile

		online, err := s.presence.IsPresent(ctx, identity.Identity{Role: counterpartRole, ID: row.CounterpartID})
		if err != nil {
			s.logger.Warn("presence lookup failed", "error", err, "conversationId", row.Conversation.ID)
		}
		summary.Online = online

		count, err := s.unseen.Get(ctx, caller.Role, row.Conversation.ID)
		if err != nil {
			s.logger.Warn("unseen count lookup failed", "error", err, "conversationId", row.Conversation.ID)
		}
		summary.UnseenCount = count

		last, err := s.messages.LastMessage(ctx, row.Conversation.ID)
		if err != nil {
			s.logger.Warn("last message lookup failed", "error", err, "conversationId", row.Conversation.ID)
		}
		if last != nil {
			v := toMessageView(*last)
			summary.LastMessage = &v
		}

		out = append(out, summary)
	}
	return out, nil
}

// FetchMessages returns one page of history for a conversation the caller
// participates in. Opening a page counts as reading, so the caller's unread
// count for the conversation is cleared as a side effect.
func (s *ChatService) FetchMessages(ctx context.Context, caller identity.Identity, conversationID string, page int) (*MessagePage, error) {
	if conversationID == "" {
		return nil, apperrors.NewBadRequestError("VALIDATION_ERROR", "conversationId is required")
	}
	if page < 1 {
		page = 1
	}

	column := "user_id"
	if caller.Role == identity.RoleSeller {
		column = "seller_id"
	}
	member, err := s.conversations.HasParticipant(ctx, conversationID, column, caller.ID)
	if err != nil {
		return nil, apperrors.NewInternalServerError("DATABASE_ERROR", err.Error())
	}
	if !member {
		return nil, apperrors.NewForbiddenError("NOT_PARTICIPANT", "not a participant of this conversation")
	}

	msgs, hasMore, err := s.messages.ListByConversationPaginated(ctx, conversationID, page, s.pageSize)
	if err != nil {
		return nil, apperrors.NewInternalServerError("DATABASE_ERROR", err.Error())
	}

	if err := s.unseen.Clear(ctx, caller.Role, conversationID); err != nil {
		// History still serves; the count self-corrects on the next read.
		s.logger.Warn("unseen count clear failed", "error", err, "conversationId", conversationID)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toMessageView(m))
	}
	return &MessagePage{
		Messages:    views,
		Page:        page,
		HasMore:     hasMore,
		Counterpart: s.counterpartView(ctx, caller, conversationID),
	}, nil
}

// counterpartView resolves the other participant of a direct conversation.
// Best effort: history still serves when the profile backend is down.
func (s *ChatService) counterpartView(ctx context.Context, caller identity.Identity, conversationID string) *CounterpartView {
	counterCol := "seller_id"
	if caller.Role == identity.RoleSeller {
		counterCol = "user_id"
	}
	counterpartID, err := s.conversations.Counterpart(ctx, conversationID, counterCol)
	if err != nil {
		s.logger.Warn("counterpart lookup failed", "error", err, "conversationId", conversationID)
		return nil
	}

	role := identity.Opposite(caller.Role)
	profile, err := s.directory.Lookup(ctx, role, counterpartID)
	if err != nil {
		s.logger.Warn("profile lookup failed", "error", err, "role", role, "id", counterpartID)
		profile = ProfileSummary{ID: counterpartID, Name: counterpartID}
	}
	online, err := s.presence.IsPresent(ctx, identity.Identity{Role: role, ID: counterpartID})
	if err != nil {
		s.logger.Warn("presence lookup failed", "error", err, "conversationId", conversationID)
	}
	return &CounterpartView{ProfileSummary: profile, Online: online}
}
