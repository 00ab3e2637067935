package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/config"
	"github.com/nailbook/nailbook/backend/internal/models"
)

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		JWTSecret:       "test-secret",
		TokenLifetime:   time.Hour,
		LoginMaxFailed:  3,
		LoginLockPeriod: 15 * time.Minute,
	}
}

func createUser(t *testing.T, db *gorm.DB, email, password, role string) *models.User {
	t.Helper()
	user := &models.User{UUID: uuid.NewString(), Email: email, Role: role}
	assert.NoError(t, user.SetPassword(password))
	assert.NoError(t, db.Create(user).Error)
	return user
}

func TestAuthService_Login(t *testing.T) {
	t.Run("valid credentials return a parseable token", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewAuthService(db, testSecurityConfig())
		user := createUser(t, db, "a@example.com", "hunter2!", "customer")

		token, got, err := svc.Login("a@example.com", "hunter2!")
		assert.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, user.ID, got.ID)
		assert.NotNil(t, got.LastLogin)

		claims, err := svc.ParseToken(token)
		assert.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, "customer", claims.Role)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewAuthService(db, testSecurityConfig())
		createUser(t, db, "a@example.com", "hunter2!", "customer")

		_, _, err := svc.Login("a@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, _, err = svc.Login("nobody@example.com", "whatever")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("repeated failures lock the account", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewAuthService(db, testSecurityConfig())
		createUser(t, db, "a@example.com", "hunter2!", "customer")

		for i := 0; i < 3; i++ {
			_, _, err := svc.Login("a@example.com", "wrong")
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		}
		// Even the correct password is refused while locked.
		_, _, err := svc.Login("a@example.com", "hunter2!")
		assert.ErrorIs(t, err, ErrAccountLocked)
	})

	t.Run("lock expires", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewAuthService(db, testSecurityConfig())
		user := createUser(t, db, "a@example.com", "hunter2!", "customer")
		past := time.Now().Add(-time.Minute)
		user.LockedUntil = &past
		assert.NoError(t, db.Save(user).Error)

		token, _, err := svc.Login("a@example.com", "hunter2!")
		assert.NoError(t, err)
		assert.NotEmpty(t, token)
	})

	t.Run("successful login resets the failure counter", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewAuthService(db, testSecurityConfig())
		createUser(t, db, "a@example.com", "hunter2!", "customer")

		for i := 0; i < 2; i++ {
			svc.Login("a@example.com", "wrong")
		}
		_, _, err := svc.Login("a@example.com", "hunter2!")
		assert.NoError(t, err)

		var got models.User
		assert.NoError(t, db.Where("email = ?", "a@example.com").First(&got).Error)
		assert.Equal(t, 0, got.FailedLoginAttempts)
	})

	t.Run("banned accounts never log in", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewAuthService(db, testSecurityConfig())
		user := createUser(t, db, "a@example.com", "hunter2!", "customer")
		user.Banned = true
		assert.NoError(t, db.Save(user).Error)

		_, _, err := svc.Login("a@example.com", "hunter2!")
		assert.ErrorIs(t, err, ErrAccountBanned)
	})
}

func TestAuthService_ParseToken(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, testSecurityConfig())

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := svc.ParseToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		otherCfg := testSecurityConfig()
		otherCfg.JWTSecret = "different-secret"
		other := NewAuthService(db, otherCfg)
		createUser(t, db, "a@example.com", "hunter2!", "customer")

		token, _, err := other.Login("a@example.com", "hunter2!")
		assert.NoError(t, err)

		_, err = svc.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
