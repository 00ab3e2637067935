package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nailbook/nailbook/backend/internal/models"
)

func TestAuditService_LogAudit(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuditService(db)

	a := &models.SecurityAudit{Actor: "admin:1", Action: "ip_rule.create", TargetType: "security_ip_rule", TargetID: 5}
	assert.NoError(t, svc.LogAudit(a))
	assert.NotEmpty(t, a.UUID)
	assert.False(t, a.CreatedAt.IsZero())

	assert.NoError(t, svc.LogAudit(nil))
}

func TestAuditService_RecordChange(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuditService(db)

	svc.RecordChange("admin:3", "risk.restrict", "user_risk_state", 12,
		map[string]interface{}{"risk_level": "normal"},
		map[string]interface{}{"risk_level": "high"})

	var audits []models.SecurityAudit
	assert.NoError(t, db.Find(&audits).Error)
	assert.Len(t, audits, 1)
	assert.Equal(t, "admin:3", audits[0].Actor)
	assert.Equal(t, uint(12), audits[0].TargetID)
	assert.JSONEq(t, `{"before":{"risk_level":"normal"},"after":{"risk_level":"high"}}`, audits[0].Details)
}

func TestAuditService_Blocks(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuditService(db)

	write := func(ip, scope string, at time.Time) {
		assert.NoError(t, svc.LogBlock(&models.SecurityBlockLog{
			ClientIP:    ip,
			Path:        "/api/v1/bookings",
			Method:      "POST",
			Scope:       scope,
			BlockReason: "ip deny rule",
			CreatedAt:   at,
		}))
	}
	write("203.0.113.1", models.RuleScopeAPI, time.Now().Add(-2*time.Hour))
	write("203.0.113.1", models.RuleScopeLogin, time.Now().Add(-30*time.Minute))
	write("203.0.113.2", models.RuleScopeAPI, time.Now().Add(-10*time.Minute))

	t.Run("no filter returns everything newest first", func(t *testing.T) {
		blocks, err := svc.ListBlocks(BlockLogFilter{})
		assert.NoError(t, err)
		assert.Len(t, blocks, 3)
		assert.Equal(t, "203.0.113.2", blocks[0].ClientIP)
	})

	t.Run("filter by ip", func(t *testing.T) {
		blocks, err := svc.ListBlocks(BlockLogFilter{ClientIP: "203.0.113.1"})
		assert.NoError(t, err)
		assert.Len(t, blocks, 2)
	})

	t.Run("filter by scope and window", func(t *testing.T) {
		blocks, err := svc.ListBlocks(BlockLogFilter{Scope: models.RuleScopeAPI, Since: time.Now().Add(-time.Hour)})
		assert.NoError(t, err)
		assert.Len(t, blocks, 1)
		assert.Equal(t, "203.0.113.2", blocks[0].ClientIP)
	})

	t.Run("limit caps the result", func(t *testing.T) {
		blocks, err := svc.ListBlocks(BlockLogFilter{Limit: 1})
		assert.NoError(t, err)
		assert.Len(t, blocks, 1)
	})
}

func TestAuditService_ListAudits(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuditService(db)

	for i := 0; i < 3; i++ {
		assert.NoError(t, svc.LogAudit(&models.SecurityAudit{
			Actor:     "admin:1",
			Action:    "ip_rule.update",
			CreatedAt: time.Now().Add(time.Duration(-i) * time.Hour),
		}))
	}

	audits, err := svc.ListAudits(2)
	assert.NoError(t, err)
	assert.Len(t, audits, 2)
	assert.True(t, audits[0].CreatedAt.After(audits[1].CreatedAt))
}
