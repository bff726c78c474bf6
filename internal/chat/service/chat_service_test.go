package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/repository"
	"eshop-marketplace/chatting-service/internal/models"
	"eshop-marketplace/chatting-service/pkg/cache"
	apperrors "eshop-marketplace/chatting-service/pkg/errors"
	"eshop-marketplace/chatting-service/pkg/logger"
)

type fakeConversations struct {
	direct       *models.ConversationGroup
	created      *models.ConversationGroup
	createErr    error
	participants map[string]bool
	counterpart  string
	rows         []repository.ConversationWithCounterpart
}

func (f *fakeConversations) FindDirect(context.Context, string, string) (*models.ConversationGroup, error) {
	return f.direct, nil
}

func (f *fakeConversations) Create(_ context.Context, userID, sellerID, creatorID string) (*models.ConversationGroup, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &models.ConversationGroup{ID: "conv-new", CreatorID: creatorID}
	return f.created, nil
}

func (f *fakeConversations) ListByUser(context.Context, string) ([]repository.ConversationWithCounterpart, error) {
	return f.rows, nil
}

func (f *fakeConversations) ListBySeller(context.Context, string) ([]repository.ConversationWithCounterpart, error) {
	return f.rows, nil
}

func (f *fakeConversations) HasParticipant(_ context.Context, conversationID, column, id string) (bool, error) {
	return f.participants[conversationID+"/"+column+"/"+id], nil
}

func (f *fakeConversations) Counterpart(_ context.Context, conversationID, counterpartColumn string) (string, error) {
	if f.counterpart == "" {
		return "", errors.New("no counterpart")
	}
	return f.counterpart, nil
}

type fakeMessages struct {
	page    []models.Message
	hasMore bool
	last    *models.Message
}

func (f *fakeMessages) ListByConversationPaginated(_ context.Context, _ string, page, pageSize int) ([]models.Message, bool, error) {
	return f.page, f.hasMore, nil
}

func (f *fakeMessages) LastMessage(context.Context, string) (*models.Message, error) {
	return f.last, nil
}

type fakePresence struct{ online map[string]bool }

func (f *fakePresence) SetPresence(context.Context, identity.Identity) error   { return nil }
func (f *fakePresence) ClearPresence(context.Context, identity.Identity) error { return nil }
func (f *fakePresence) IsPresent(_ context.Context, id identity.Identity) (bool, error) {
	return f.online[id.String()], nil
}

type fakeUnseen struct {
	counts  map[string]int64
	cleared []string
}

func (f *fakeUnseen) Increment(_ context.Context, role identity.Role, conv string) (int64, error) {
	return 0, nil
}

func (f *fakeUnseen) Get(_ context.Context, role identity.Role, conv string) (int64, error) {
	return f.counts[string(role)+":"+conv], nil
}

func (f *fakeUnseen) Clear(_ context.Context, role identity.Role, conv string) error {
	f.cleared = append(f.cleared, string(role)+":"+conv)
	return nil
}

func newTestService(convs *fakeConversations, msgs *fakeMessages, pres *fakePresence, counts *fakeUnseen) *ChatService {
	return NewChatService(convs, msgs, pres, counts, NoopDirectory{}, 10,
		logger.New(logger.Config{Level: "error"}))
}

func TestStartConversationCreatesOnce(t *testing.T) {
	convs := &fakeConversations{}
	svc := newTestService(convs, &fakeMessages{}, &fakePresence{}, &fakeUnseen{})
	caller := identity.Identity{Role: identity.RoleUser, ID: "u1"}

	conv, created, err := svc.StartConversation(context.Background(), "u1", "s1", caller)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "conv-new", conv.ID)
	assert.Equal(t, "user_u1", conv.CreatorID)
}

func TestStartConversationReturnsExisting(t *testing.T) {
	convs := &fakeConversations{direct: &models.ConversationGroup{ID: "conv-1"}}
	svc := newTestService(convs, &fakeMessages{}, &fakePresence{}, &fakeUnseen{})

	conv, created, err := svc.StartConversation(context.Background(), "u1", "s1",
		identity.Identity{Role: identity.RoleUser, ID: "u1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Nil(t, convs.created)
}

func TestStartConversationValidates(t *testing.T) {
	svc := newTestService(&fakeConversations{}, &fakeMessages{}, &fakePresence{}, &fakeUnseen{})

	_, _, err := svc.StartConversation(context.Background(), "", "s1",
		identity.Identity{Role: identity.RoleUser, ID: "u1"})
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.GetStatusCode(err))
}

func TestListConversationsDecorates(t *testing.T) {
	now := time.Now().UTC()
	convs := &fakeConversations{
		rows: []repository.ConversationWithCounterpart{
			{
				Conversation:  models.ConversationGroup{ID: "conv-1", UpdatedAt: now},
				CounterpartID: "s1",
			},
		},
	}
	msgs := &fakeMessages{last: &models.Message{ID: "m9", ConversationID: "conv-1", Content: "latest"}}
	pres := &fakePresence{online: map[string]bool{"seller_s1": true}}
	counts := &fakeUnseen{counts: map[string]int64{"user:conv-1": 3}}
	svc := newTestService(convs, msgs, pres, counts)

	out, err := svc.ListConversations(context.Background(), identity.Identity{Role: identity.RoleUser, ID: "u1"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "conv-1", out[0].ConversationID)
	assert.Equal(t, "s1", out[0].Counterpart.ID)
	assert.True(t, out[0].Online)
	assert.Equal(t, int64(3), out[0].UnseenCount)
	require.NotNil(t, out[0].LastMessage)
	assert.Equal(t, "latest", out[0].LastMessage.Content)
}

func TestFetchMessagesEnforcesMembership(t *testing.T) {
	convs := &fakeConversations{participants: map[string]bool{}}
	svc := newTestService(convs, &fakeMessages{}, &fakePresence{}, &fakeUnseen{})

	_, err := svc.FetchMessages(context.Background(),
		identity.Identity{Role: identity.RoleUser, ID: "u1"}, "conv-1", 1)
	require.Error(t, err)
	assert.Equal(t, 403, apperrors.GetStatusCode(err))
}

func TestFetchMessagesClearsUnseen(t *testing.T) {
	convs := &fakeConversations{
		participants: map[string]bool{"conv-1/seller_id/s1": true},
		counterpart:  "u1",
	}
	msgs := &fakeMessages{
		page:    []models.Message{{ID: "m2"}, {ID: "m1"}},
		hasMore: true,
	}
	counts := &fakeUnseen{}
	svc := newTestService(convs, msgs, &fakePresence{}, counts)

	page, err := svc.FetchMessages(context.Background(),
		identity.Identity{Role: identity.RoleSeller, ID: "s1"}, "conv-1", 1)
	require.NoError(t, err)

	assert.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, 1, page.Page)
	// Opening history marks the conversation read for the caller's side.
	assert.Equal(t, []string{"seller:conv-1"}, counts.cleared)
	require.NotNil(t, page.Counterpart)
	assert.Equal(t, "u1", page.Counterpart.ID)
}

func TestCachedDirectoryAvoidsRepeatLookups(t *testing.T) {
	calls := 0
	inner := lookupFunc(func(_ context.Context, _ identity.Role, id string) (ProfileSummary, error) {
		calls++
		return ProfileSummary{ID: id, Name: "Shop " + id}, nil
	})
	dir := NewCachedDirectory(inner, newTestCache())

	for i := 0; i < 3; i++ {
		p, err := dir.Lookup(context.Background(), identity.RoleSeller, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Shop s1", p.Name)
	}
	assert.Equal(t, 1, calls)
}

func TestCachedDirectoryPropagatesErrors(t *testing.T) {
	inner := lookupFunc(func(context.Context, identity.Role, string) (ProfileSummary, error) {
		return ProfileSummary{}, errors.New("upstream down")
	})
	dir := NewCachedDirectory(inner, newTestCache())

	_, err := dir.Lookup(context.Background(), identity.RoleSeller, "s1")
	assert.Error(t, err)
}

type lookupFunc func(ctx context.Context, role identity.Role, id string) (ProfileSummary, error)

func (f lookupFunc) Lookup(ctx context.Context, role identity.Role, id string) (ProfileSummary, error) {
	return f(ctx, role, id)
}

func newTestCache() *cache.Cache {
	return cache.NewCacheWithOptions(time.Minute, time.Minute, 100)
}
