package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/identity"
	"github.com/jishnu70/Chat-app-backend/internal/mocks"
)

func setupRouter(t *testing.T) (*gin.Engine, *identity.JWTVerifier, *mocks.UserRepositoryMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	verifier := identity.NewJWTVerifier("secret", "")
	users := new(mocks.UserRepositoryMock)

	r := gin.New()
	r.GET("/me", Authenticate(verifier, identity.NewResolver(users), zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt(UserIDKey)})
	})
	r.GET("/subject", VerifyCredential(verifier), func(c *gin.Context) {
		subject, ok := SubjectFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"uid": subject.UID})
	})
	return r, verifier, users
}

func do(r *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateSetsUserID(t *testing.T) {
	r, verifier, users := setupRouter(t)
	token, err := verifier.Sign(identity.Subject{UID: "uid-1", Email: "a@example.com"}, time.Minute)
	require.NoError(t, err)
	users.On("UpsertByExternalUID", mock.Anything, "uid-1", "a@example.com", (*string)(nil)).Return(17, nil).Once()

	rec := do(r, "/me", "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":17}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestAuthenticateRejects(t *testing.T) {
	r, _, users := setupRouter(t)
	forged, err := identity.NewJWTVerifier("other", "").Sign(identity.Subject{UID: "uid-1"}, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		wantError     string
	}{
		{name: "missing", authorization: "", wantError: "missing authorization"},
		{name: "malformed", authorization: "Basic abc", wantError: "invalid authorization header"},
		{name: "forged", authorization: "Bearer " + forged, wantError: "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, "/me", tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantError+`"}`, rec.Body.String())
		})
	}
	users.AssertNotCalled(t, "UpsertByExternalUID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticateResolveFailure(t *testing.T) {
	r, verifier, users := setupRouter(t)
	token, err := verifier.Sign(identity.Subject{UID: "uid-1"}, time.Minute)
	require.NoError(t, err)
	users.On("UpsertByExternalUID", mock.Anything, "uid-1", "", (*string)(nil)).Return(0, errors.New("db down"))

	rec := do(r, "/me", "Bearer "+token)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerifyCredentialDoesNotResolve(t *testing.T) {
	r, verifier, users := setupRouter(t)
	token, err := verifier.Sign(identity.Subject{UID: "uid-9"}, time.Minute)
	require.NoError(t, err)

	rec := do(r, "/subject", "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uid":"uid-9"}`, rec.Body.String())
	users.AssertNotCalled(t, "UpsertByExternalUID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
