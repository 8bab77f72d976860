package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/identity"
	"github.com/jishnu70/Chat-app-backend/internal/middleware"
	"github.com/jishnu70/Chat-app-backend/internal/mocks"
	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
)

func setupUserRouter(users *mocks.UserRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewUserHandler(users, nil, zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.SubjectKey, identity.Subject{UID: "uid-1"})
		c.Set(middleware.UserIDKey, 1)
		c.Next()
	})
	r.POST("/users", handler.Register)
	r.GET("/users/me", handler.Me)
	return r
}

func TestRegisterCreatesUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupUserRouter(users)

	users.On("GetByExternalUID", mock.Anything, "uid-1").Return(nil, repositories.ErrUserNotFound).Once()
	users.On("ExistsByEmail", mock.Anything, "ann@example.com").Return(false, nil).Once()
	users.On("Create", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.ExternalUID == "uid-1" && u.Email == "ann@example.com" && u.DisplayName != nil && *u.DisplayName == "Ann"
	})).Return(models.User{ID: 3, ExternalUID: "uid-1", Email: "ann@example.com"}, nil).Once()

	rec := serve(router, http.MethodPost, "/users", `{"email":" Ann@Example.com ","display_name":"Ann"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	users.AssertExpectations(t)
}

func TestRegisterConflicts(t *testing.T) {
	t.Run("subject already registered", func(t *testing.T) {
		users := new(mocks.UserRepositoryMock)
		users.On("GetByExternalUID", mock.Anything, "uid-1").Return(models.User{ID: 3}, nil).Once()

		rec := serve(setupUserRouter(users), http.MethodPost, "/users", `{"email":"ann@example.com"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("email taken", func(t *testing.T) {
		users := new(mocks.UserRepositoryMock)
		users.On("GetByExternalUID", mock.Anything, "uid-1").Return(nil, repositories.ErrUserNotFound).Once()
		users.On("ExistsByEmail", mock.Anything, "ann@example.com").Return(true, nil).Once()

		rec := serve(setupUserRouter(users), http.MethodPost, "/users", `{"email":"ann@example.com"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestRegisterRejectsBadEmail(t *testing.T) {
	for _, body := range []string{`{"email":"not-an-email"}`, `{"email":"   "}`, `{}`} {
		users := new(mocks.UserRepositoryMock)

		rec := serve(setupUserRouter(users), http.MethodPost, "/users", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		users.AssertNotCalled(t, "GetByExternalUID", mock.Anything, mock.Anything)
	}
}

func TestMe(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetByID", mock.Anything, 1).Return(models.User{ID: 1, Email: "ann@example.com"}, nil).Once()

	rec := serve(setupUserRouter(users), http.MethodGet, "/users/me", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ann@example.com"`)
}
