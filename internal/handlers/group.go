package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/middleware"
	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
	"github.com/jishnu70/Chat-app-backend/internal/telemetry"
	"github.com/jishnu70/Chat-app-backend/internal/ws"
)

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groupRepo   repositories.GroupRepository
	messageRepo repositories.MessageRepository
	router      *ws.Router
	audit       *telemetry.AuditEmitter
	logger      *zap.Logger
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, messageRepo repositories.MessageRepository, router *ws.Router, audit *telemetry.AuditEmitter, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		router:      router,
		audit:       audit,
		logger:      logger,
	}
}

// CreateGroup handles POST /groups. The caller becomes the only member.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	var req struct {
		Name string `json:"name" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, name)
	if err != nil {
		h.logger.Error("create group", zap.Int("user_id", userID), zap.Error(err))
		emitAudit(c, h.audit, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	emitAudit(c, h.audit, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID})
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)
	groups, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// AddMember handles POST /groups/:group_id/members. Only the creator may add.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID, ok := pathID(c, "group_id", "group id")
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	group, err := h.groupRepo.GetGroup(ctx, groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		h.logger.Error("load group", zap.Int("group_id", groupID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}
	if group.CreatorID != c.GetInt(middleware.UserIDKey) {
		emitAudit(c, h.audit, "ERROR", "not allowed to add members")
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group creator can add members"})
		return
	}

	member, err := h.groupRepo.AddMember(ctx, groupID, req.UserID)
	switch {
	case errors.Is(err, repositories.ErrAlreadyMember):
		c.JSON(http.StatusConflict, gin.H{"error": "user already in group"})
		return
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	case err != nil:
		h.logger.Error("add member", zap.Int("group_id", groupID), zap.Int("member_id", req.UserID), zap.Error(err))
		emitAudit(c, h.audit, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add member"})
		return
	}

	emitAudit(c, h.audit, "INFO", "Group member added")
	c.JSON(http.StatusCreated, member)
}

// GetGroupMessages returns a page of group history, oldest first.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := h.requireMember(c)
	if !ok {
		return
	}
	before, limit, ok := pageParams(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListGroupMessages(c.Request.Context(), groupID, before, limit)
	if err != nil {
		h.logger.Error("list group messages", zap.Int("group_id", groupID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostGroupMessage persists a group message and fans it out to live members
// through the same ordered path as websocket sends.
func (h *GroupHandler) PostGroupMessage(c *gin.Context) {
	groupID, ok := h.requireMember(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	frame, err := ws.DecodeFrame(raw)
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": ws.ErrInvalidPayload.Error()})
		return
	}

	newMsg := frame.NewMessage(c.GetInt(middleware.UserIDKey), nil, &groupID)
	msg, _, err := h.router.Publish(c.Request.Context(), groupID, func(ctx context.Context) (models.Message, error) {
		return h.messageRepo.CreateMessage(ctx, newMsg)
	})
	if err != nil {
		h.logger.Error("publish group message", zap.Int("group_id", groupID), zap.Error(err))
		emitAudit(c, h.audit, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// requireMember parses :group_id and answers 404 or 403 unless the caller
// belongs to an existing group.
func (h *GroupHandler) requireMember(c *gin.Context) (int, bool) {
	groupID, ok := pathID(c, "group_id", "group id")
	if !ok {
		return 0, false
	}

	ctx := c.Request.Context()
	if _, err := h.groupRepo.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return 0, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return 0, false
	}

	member, err := h.groupRepo.IsMember(ctx, groupID, c.GetInt(middleware.UserIDKey))
	if err != nil {
		emitAudit(c, h.audit, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return 0, false
	}
	if !member {
		emitAudit(c, h.audit, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return 0, false
	}
	return groupID, true
}
