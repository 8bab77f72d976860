package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/middleware"
	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
	"github.com/jishnu70/Chat-app-backend/internal/telemetry"
)

// UserHandler serves registration and profile endpoints.
type UserHandler struct {
	users  repositories.UserRepository
	audit  *telemetry.AuditEmitter
	logger *zap.Logger
}

func NewUserHandler(users repositories.UserRepository, audit *telemetry.AuditEmitter, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, audit: audit, logger: logger}
}

var validate = validator.New()

type registerRequest struct {
	Email       string  `json:"email" binding:"required"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	PublicKey   *string `json:"public_key" binding:"omitempty,max=4096"`
}

// Register handles POST /users. The caller must present a verified
// credential whose subject is not yet registered.
func (h *UserHandler) Register(c *gin.Context) {
	subject, ok := middleware.SubjectFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Var(req.Email, "required,email"); err != nil {
		emitAudit(c, h.audit, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.users.GetByExternalUID(ctx, subject.UID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "user already registered"})
		return
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		h.logger.Error("lookup user", zap.String("uid", subject.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	taken, err := h.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		h.logger.Error("check email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	user, err := h.users.Create(ctx, models.User{
		ExternalUID: subject.UID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		PublicKey:   req.PublicKey,
	})
	if errors.Is(err, repositories.ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "user already registered"})
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		emitAudit(c, h.audit, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	c.Set(middleware.UserIDKey, user.ID)
	emitAudit(c, h.audit, "INFO", "User registered")
	c.JSON(http.StatusCreated, user)
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.GetInt(middleware.UserIDKey))
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}
