package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/logger"
	"github.com/nailbook/nailbook/backend/internal/models"
)

// AuditService owns the two append-only logs: audit records for administrative
// mutations and block records for requests denied by the IP guard.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService returns an AuditService using the provided DB.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// LogAudit stores an audit entry.
func (s *AuditService) LogAudit(a *models.SecurityAudit) error {
	if a == nil {
		return nil
	}
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return s.db.Create(a).Error
}

// RecordChange writes an audit entry with a before/after snapshot of the
// mutated record. A failed write is logged but never fails the mutation that
// triggered it.
func (s *AuditService) RecordChange(actor, action, targetType string, targetID uint, before, after interface{}) {
	details, err := json.Marshal(map[string]interface{}{"before": before, "after": after})
	if err != nil {
		logger.Log().WithError(err).WithField("action", action).Error("marshal audit snapshot")
		details = []byte("{}")
	}
	a := &models.SecurityAudit{
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    string(details),
	}
	if err := s.LogAudit(a); err != nil {
		logger.Log().WithError(err).WithField("action", action).Error("write audit record")
	}
}

// LogBlock stores a block record for a denied request.
func (s *AuditService) LogBlock(b *models.SecurityBlockLog) error {
	if b == nil {
		return nil
	}
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return s.db.Create(b).Error
}

// BlockLogFilter narrows ListBlocks results. Zero values mean "no filter".
type BlockLogFilter struct {
	ClientIP string
	Scope    string
	Since    time.Time
	Limit    int
}

// ListBlocks returns block records ordered by created_at desc.
func (s *AuditService) ListBlocks(f BlockLogFilter) ([]models.SecurityBlockLog, error) {
	var res []models.SecurityBlockLog
	q := s.db.Order("created_at desc")
	if f.ClientIP != "" {
		q = q.Where("client_ip = ?", f.ClientIP)
	}
	if f.Scope != "" {
		q = q.Where("scope = ?", f.Scope)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// ListAudits returns recent audit records, ordered by created_at desc.
func (s *AuditService) ListAudits(limit int) ([]models.SecurityAudit, error) {
	var res []models.SecurityAudit
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}
