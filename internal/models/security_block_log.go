package models

import (
	"time"
)

// SecurityBlockLog records every request denied by the IP guard so blocks can
// be audited later. Append-only.
type SecurityBlockLog struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	UUID          string    `json:"uuid" gorm:"uniqueIndex"`
	ClientIP      string    `json:"client_ip" gorm:"index"`
	Path          string    `json:"path"`
	Method        string    `json:"method"`
	Scope         string    `json:"scope" gorm:"index"`
	MatchedRuleID *uint     `json:"matched_rule_id,omitempty"`
	BlockReason   string    `json:"block_reason"`
	SubjectID     *uint     `json:"subject_id,omitempty"`
	UserAgent     string    `json:"user_agent"`
	Metadata      string    `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}
