package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/history"
	"github.com/jishnu70/Chat-app-backend/internal/middleware"
	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
)

// ChatHandler serves the conversation list and direct chat history.
type ChatHandler struct {
	aggregator  *history.Aggregator
	userRepo    repositories.UserRepository
	messageRepo repositories.MessageRepository
	logger      *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(aggregator *history.Aggregator, userRepo repositories.UserRepository, messageRepo repositories.MessageRepository, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		aggregator:  aggregator,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		logger:      logger,
	}
}

// ListChats handles GET /chats. Direct chats come before groups unless
// ?order=recent asks for a single list ordered by last activity.
func (h *ChatHandler) ListChats(c *gin.Context) {
	order := c.Query("order")
	if order != "" && order != "recent" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order"})
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chats, err := h.aggregator.ListChats(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list chats", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	if order == "recent" {
		chats = history.MergeByRecency(chats)
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChatMessages handles GET /chats/:user_id/messages, the catch-up path for
// direct messages sent while the caller was offline.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	otherID, ok := pathID(c, "user_id", "user id")
	if !ok {
		return
	}
	before, limit, ok := pageParams(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	exists, err := h.userRepo.Exists(ctx, otherID)
	if err != nil {
		h.logger.Error("check user", zap.Int("user_id", otherID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	msgs, err := h.messageRepo.ListConversation(ctx, c.GetInt(middleware.UserIDKey), otherID, before, limit)
	if err != nil {
		h.logger.Error("list conversation", zap.Int("other_id", otherID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
