package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/identity"
)

const (
	UserIDKey  = "userID"
	SubjectKey = "subject"
)

// UserResolver maps a verified subject to an internal user id.
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, subject identity.Subject) (int, error)
}

// VerifyCredential validates the bearer token and stores the verified
// subject under SubjectKey. It does not touch the user store.
func VerifyCredential(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := verify(c, verifier); ok {
			c.Next()
		}
	}
}

// Authenticate validates the bearer token, resolves the caller to an internal
// user and stores the id under UserIDKey.
func Authenticate(verifier identity.Verifier, resolver UserResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := verify(c, verifier)
		if !ok {
			return
		}

		userID, err := resolver.ResolveOrCreate(c.Request.Context(), subject)
		if err != nil {
			logger.Error("resolve caller", zap.String("uid", subject.UID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func verify(c *gin.Context, verifier identity.Verifier) (identity.Subject, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return identity.Subject{}, false
	}

	token, err := identity.BearerToken(header)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
		return identity.Subject{}, false
	}

	subject, err := verifier.Verify(c.Request.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, identity.ErrInvalidToken) {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "invalid token"})
		return identity.Subject{}, false
	}

	c.Set(SubjectKey, subject)
	return subject, true
}

// SubjectFrom returns the subject stored by VerifyCredential or Authenticate.
func SubjectFrom(c *gin.Context) (identity.Subject, bool) {
	val, ok := c.Get(SubjectKey)
	if !ok {
		return identity.Subject{}, false
	}
	subject, ok := val.(identity.Subject)
	return subject, ok
}
