package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/service"
	"eshop-marketplace/chatting-service/internal/models"
	"eshop-marketplace/chatting-service/pkg/errors"
	"eshop-marketplace/chatting-service/pkg/jwt"
)

type fakeChat struct {
	conv       *models.ConversationGroup
	created    bool
	summaries  []service.ConversationSummary
	page       *service.MessagePage
	err        error
	lastCaller identity.Identity
	lastConv   string
	lastPage   int
}

func (f *fakeChat) StartConversation(_ context.Context, userID, sellerID string, creator identity.Identity) (*models.ConversationGroup, bool, error) {
	f.lastCaller = creator
	if f.err != nil {
		return nil, false, f.err
	}
	return f.conv, f.created, nil
}

func (f *fakeChat) ListConversations(_ context.Context, caller identity.Identity) ([]service.ConversationSummary, error) {
	f.lastCaller = caller
	return f.summaries, f.err
}

func (f *fakeChat) FetchMessages(_ context.Context, caller identity.Identity, conversationID string, page int) (*service.MessagePage, error) {
	f.lastCaller = caller
	f.lastConv = conversationID
	f.lastPage = page
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

// testAuth stands in for the JWT middleware and stamps validated claims
// into the context.
func testAuth(subjectID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("claims", &jwt.Claims{SubjectID: subjectID, Role: jwt.Role(role)})
		c.Set("subjectId", subjectID)
		c.Set("role", role)
		c.Next()
	}
}

func newTestEngine(chat *fakeChat, auth gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(errors.ErrorHandler())
	NewChatController(chat).RegisterRoutes(engine, auth)
	return engine
}

func TestStartConversationCreated(t *testing.T) {
	chat := &fakeChat{conv: &models.ConversationGroup{ID: "conv-1"}, created: true}
	engine := newTestEngine(chat, testAuth("u1", "user"))

	req, _ := http.NewRequest(http.MethodPost, "/api/conversations",
		strings.NewReader(`{"userId":"u1","sellerId":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "conv-1")
	assert.Equal(t, identity.Identity{Role: identity.RoleUser, ID: "u1"}, chat.lastCaller)
}

func TestStartConversationExistingReturns200(t *testing.T) {
	chat := &fakeChat{conv: &models.ConversationGroup{ID: "conv-1"}, created: false}
	engine := newTestEngine(chat, testAuth("u1", "user"))

	req, _ := http.NewRequest(http.MethodPost, "/api/conversations",
		strings.NewReader(`{"userId":"u1","sellerId":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartConversationRejectsOtherParticipants(t *testing.T) {
	chat := &fakeChat{conv: &models.ConversationGroup{ID: "conv-1"}}
	engine := newTestEngine(chat, testAuth("u2", "user"))

	// u2 tries to open a conversation on behalf of u1.
	req, _ := http.NewRequest(http.MethodPost, "/api/conversations",
		strings.NewReader(`{"userId":"u1","sellerId":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStartConversationValidatesBody(t *testing.T) {
	engine := newTestEngine(&fakeChat{}, testAuth("u1", "user"))

	req, _ := http.NewRequest(http.MethodPost, "/api/conversations", strings.NewReader(`{"userId":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestListConversations(t *testing.T) {
	chat := &fakeChat{summaries: []service.ConversationSummary{
		{ConversationID: "conv-1", UnseenCount: 2},
	}}
	engine := newTestEngine(chat, testAuth("s1", "seller"))

	req, _ := http.NewRequest(http.MethodGet, "/api/conversations/seller", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "conv-1")
	assert.Equal(t, identity.Identity{Role: identity.RoleSeller, ID: "s1"}, chat.lastCaller)
}

func TestListConversationsRoleScoped(t *testing.T) {
	engine := newTestEngine(&fakeChat{}, testAuth("u1", "user"))

	// A buyer token cannot hit the seller listing.
	req, _ := http.NewRequest(http.MethodGet, "/api/conversations/seller", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_ROLE")
}

func TestGetMessagesDefaultsPage(t *testing.T) {
	chat := &fakeChat{page: &service.MessagePage{Page: 1, HasMore: false}}
	engine := newTestEngine(chat, testAuth("u1", "user"))

	req, _ := http.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "conv-1", chat.lastConv)
	assert.Equal(t, 1, chat.lastPage)
}

func TestGetMessagesParsesPage(t *testing.T) {
	chat := &fakeChat{page: &service.MessagePage{Page: 3, HasMore: true}}
	engine := newTestEngine(chat, testAuth("u1", "user"))

	req, _ := http.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages?page=3", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, chat.lastPage)
	assert.Contains(t, w.Body.String(), `"hasMore":true`)
}

func TestGetMessagesRejectsBadPage(t *testing.T) {
	engine := newTestEngine(&fakeChat{}, testAuth("u1", "user"))

	for _, page := range []string{"0", "-1", "abc"} {
		req, _ := http.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages?page="+page, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "page=%s", page)
	}
}

func TestGetMessagesForbiddenPropagates(t *testing.T) {
	chat := &fakeChat{err: errors.NewForbiddenError("NOT_PARTICIPANT", "not a participant of this conversation")}
	engine := newTestEngine(chat, testAuth("u1", "user"))

	req, _ := http.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_PARTICIPANT")
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	engine := newTestEngine(&fakeChat{}, func(c *gin.Context) { c.Next() })

	req, _ := http.NewRequest(http.MethodGet, "/api/conversations/user", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
