package models

import (
	"time"
)

// SecurityAudit records admin actions or important changes related to security.
// Details carries a before/after JSON snapshot of the mutated record.
type SecurityAudit struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UUID       string    `json:"uuid" gorm:"uniqueIndex"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action" gorm:"index"`
	TargetType string    `json:"target_type"`
	TargetID   uint      `json:"target_id"`
	Details    string    `json:"details" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}
