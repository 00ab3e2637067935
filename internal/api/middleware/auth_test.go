package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/config"
	"github.com/nailbook/nailbook/backend/internal/models"
	"github.com/nailbook/nailbook/backend/internal/services"
)

func setupAuth(t *testing.T) (*services.AuthService, string) {
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.User{}))

	svc := services.NewAuthService(db, config.SecurityConfig{
		JWTSecret:       "test-secret",
		TokenLifetime:   time.Hour,
		LoginMaxFailed:  3,
		LoginLockPeriod: 15 * time.Minute,
	})

	user := &models.User{UUID: uuid.NewString(), Email: "a@example.com", Role: "staff"}
	assert.NoError(t, user.SetPassword("hunter2!"))
	assert.NoError(t, db.Create(user).Error)

	token, _, err := svc.Login("a@example.com", "hunter2!")
	assert.NoError(t, err)
	return svc, token
}

func authRouter(svc *services.AuthService, roles ...string) *gin.Engine {
	router := gin.New()
	group := router.Group("/", Auth(svc))
	if len(roles) > 0 {
		group.Use(RequireRole(roles...))
	}
	group.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})
	return router
}

func TestAuth(t *testing.T) {
	svc, token := setupAuth(t)

	t.Run("bearer token is accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		authRouter(svc).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":1`)
	})

	t.Run("cookie token is accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		w := httptest.NewRecorder()
		authRouter(svc).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token is a 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		w := httptest.NewRecorder()
		authRouter(svc).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token is a 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		authRouter(svc).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	svc, token := setupAuth(t)

	t.Run("matching role passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		authRouter(svc, "admin", "staff").ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong role is a 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		authRouter(svc, "admin").ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
