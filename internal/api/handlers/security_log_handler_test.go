package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nailbook/nailbook/backend/internal/models"
	"github.com/nailbook/nailbook/backend/internal/services"
)

func setupLogRouter(t *testing.T) (*services.AuditService, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	assert.NoError(t, db.AutoMigrate(
		&models.SecurityBlockLog{},
		&models.SecurityAudit{},
	))

	audit := services.NewAuditService(db)
	router := gin.New()
	NewSecurityLogHandler(audit).RegisterRoutes(&router.RouterGroup)
	return audit, router
}

func TestSecurityLogHandler_ListBlocks(t *testing.T) {
	audit, router := setupLogRouter(t)
	assert.NoError(t, audit.LogBlock(&models.SecurityBlockLog{
		ClientIP: "203.0.113.1",
		Scope:    models.RuleScopeAPI,
	}))
	assert.NoError(t, audit.LogBlock(&models.SecurityBlockLog{
		ClientIP:  "203.0.113.2",
		Scope:     models.RuleScopeLogin,
		CreatedAt: time.Now().Add(-3 * time.Hour),
	}))

	t.Run("unfiltered list", func(t *testing.T) {
		w := jsonRequest(router, http.MethodGet, "/security/block-logs", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var logs []models.SecurityBlockLog
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
		assert.Len(t, logs, 2)
	})

	t.Run("filter by ip", func(t *testing.T) {
		w := jsonRequest(router, http.MethodGet, "/security/block-logs?ip=203.0.113.1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var logs []models.SecurityBlockLog
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
		assert.Len(t, logs, 1)
	})

	t.Run("filter by since", func(t *testing.T) {
		since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
		w := jsonRequest(router, http.MethodGet, "/security/block-logs?since="+url.QueryEscape(since), nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var logs []models.SecurityBlockLog
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
		assert.Len(t, logs, 1)
		assert.Equal(t, "203.0.113.1", logs[0].ClientIP)
	})

	t.Run("bad since is a 400", func(t *testing.T) {
		w := jsonRequest(router, http.MethodGet, "/security/block-logs?since=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSecurityLogHandler_ListAudits(t *testing.T) {
	audit, router := setupLogRouter(t)
	for i := 0; i < 3; i++ {
		assert.NoError(t, audit.LogAudit(&models.SecurityAudit{
			Actor:  "admin:1",
			Action: "ip_rule.create",
		}))
	}

	w := jsonRequest(router, http.MethodGet, "/security/audit?limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var audits []models.SecurityAudit
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &audits))
	assert.Len(t, audits, 2)
}
