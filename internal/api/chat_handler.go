// Package api exposes the REST surface of the chatting service:
// conversation creation, per-participant listings, and paginated history.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/service"
	"eshop-marketplace/chatting-service/internal/models"
	apperrors "eshop-marketplace/chatting-service/pkg/errors"
	"eshop-marketplace/chatting-service/pkg/jwt"
	"eshop-marketplace/chatting-service/pkg/middleware"
)

// ChatOperations is the service surface the controller needs.
type ChatOperations interface {
	StartConversation(ctx context.Context, userID, sellerID string, creator identity.Identity) (*models.ConversationGroup, bool, error)
	ListConversations(ctx context.Context, caller identity.Identity) ([]service.ConversationSummary, error)
	FetchMessages(ctx context.Context, caller identity.Identity, conversationID string, page int) (*service.MessagePage, error)
}

// ChatController handles the conversation REST endpoints.
type ChatController struct {
	chat ChatOperations
}

func NewChatController(chat ChatOperations) *ChatController {
	return &ChatController{chat: chat}
}

// RegisterRoutes registers the conversation routes. The auth middleware is
// supplied by the router so tests can swap it out.
func (c *ChatController) RegisterRoutes(router gin.IRouter, auth gin.HandlerFunc) {
	group := router.Group("/api/conversations")
	group.Use(auth)
	{
		group.POST("", c.StartConversation)
		group.GET("/user", middleware.RequireRole(jwt.RoleUser), c.ListConversations)
		group.GET("/seller", middleware.RequireRole(jwt.RoleSeller), c.ListConversations)
		group.GET("/:conversationId/messages", c.GetMessages)
	}
}

type startConversationRequest struct {
	UserID   string `json:"userId" binding:"required"`
	SellerID string `json:"sellerId" binding:"required"`
}

// StartConversation opens the direct conversation between a user and a
// seller, creating it on first contact. Repeat calls return the existing
// conversation with a 200 instead of a 201.
func (c *ChatController) StartConversation(ctx *gin.Context) {
	var req startConversationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(apperrors.NewBadRequestError("VALIDATION_ERROR", "userId and sellerId are required"))
		return
	}
	caller, ok := callerIdentity(ctx)
	if !ok {
		return
	}
	// The caller must be one of the two participants.
	if (caller.Role == identity.RoleUser && caller.ID != req.UserID) ||
		(caller.Role == identity.RoleSeller && caller.ID != req.SellerID) {
		ctx.Error(apperrors.NewForbiddenError("NOT_PARTICIPANT", "cannot open a conversation for another participant"))
		return
	}

	conv, created, err := c.chat.StartConversation(ctx.Request.Context(), req.UserID, req.SellerID, caller)
	if err != nil {
		ctx.Error(err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ctx.JSON(status, gin.H{"conversation": conv, "isNew": created})
}

// ListConversations returns the caller's conversations with counterpart
// profile, presence and unread counts.
func (c *ChatController) ListConversations(ctx *gin.Context) {
	caller, ok := callerIdentity(ctx)
	if !ok {
		return
	}
	summaries, err := c.chat.ListConversations(ctx.Request.Context(), caller)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetMessages returns one page of history, newest first. Reading a page
// clears the caller's unread count for the conversation.
func (c *ChatController) GetMessages(ctx *gin.Context) {
	caller, ok := callerIdentity(ctx)
	if !ok {
		return
	}
	page := 1
	if raw := ctx.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			ctx.Error(apperrors.NewBadRequestError("VALIDATION_ERROR", "page must be a positive integer"))
			return
		}
		page = parsed
	}

	result, err := c.chat.FetchMessages(ctx.Request.Context(), caller, ctx.Param("conversationId"), page)
	if err != nil {
		ctx.Error(err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// callerIdentity resolves the authenticated identity from the claims the
// JWT middleware validated. Tokens that carry neither side of the
// marketplace (admin included) are not conversation participants.
func callerIdentity(ctx *gin.Context) (identity.Identity, bool) {
	claims, ok := middleware.GetClaims(ctx)
	if !ok || claims.SubjectID == "" {
		ctx.Error(apperrors.NewUnauthorizedError("UNAUTHORIZED", "authenticated user or seller required"))
		return identity.Identity{}, false
	}
	role, err := identity.ParseRole(string(claims.Role))
	if err != nil {
		ctx.Error(apperrors.NewUnauthorizedError("UNAUTHORIZED", "authenticated user or seller required"))
		return identity.Identity{}, false
	}
	return identity.Identity{Role: role, ID: claims.SubjectID}, true
}
