package models

import (
	"time"
)

// RiskLevel is the coarse tri-state classification of a subject's abuse signals.
type RiskLevel string

const (
	RiskLevelNormal RiskLevel = "normal"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelNormal, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// UserRiskState holds the aggregated risk standing for one subject.
// Rolling counters are recomputed from the event log on refresh, never
// incremented in place.
type UserRiskState struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	SubjectID       uint       `json:"subject_id" gorm:"uniqueIndex"`
	RiskLevel       RiskLevel  `json:"risk_level" gorm:"default:'normal'"`
	RestrictedUntil *time.Time `json:"restricted_until,omitempty"`
	CancelCount7d   int        `json:"cancel_count_7d"`
	NoShowCount30d  int        `json:"no_show_count_30d"`
	ManualNote      string     `json:"manual_note,omitempty"`
	UpdatedBy       uint       `json:"updated_by,omitempty"` // admin id for manual actions, 0 for refresh
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Restricted reports whether the subject is under an active timed restriction.
func (s *UserRiskState) Restricted(now time.Time) bool {
	return s.RestrictedUntil != nil && now.Before(*s.RestrictedUntil)
}
