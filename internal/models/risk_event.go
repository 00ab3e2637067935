package models

import (
	"time"
)

// RiskEventType classifies entries in the risk event log.
type RiskEventType string

const (
	EventBookingAttempt        RiskEventType = "booking_attempt"
	EventBookingBlocked        RiskEventType = "booking_blocked"
	EventAppointmentCreated    RiskEventType = "appointment_created"
	EventAppointmentCancelled  RiskEventType = "appointment_cancelled"
	EventAppointmentNoShow     RiskEventType = "appointment_no_show"
	EventManualRestriction     RiskEventType = "manual_restriction"
	EventManualRiskLevelChange RiskEventType = "manual_risk_level_change"
)

// Valid reports whether t is a known event type.
func (t RiskEventType) Valid() bool {
	switch t {
	case EventBookingAttempt, EventBookingBlocked, EventAppointmentCreated,
		EventAppointmentCancelled, EventAppointmentNoShow,
		EventManualRestriction, EventManualRiskLevelChange:
		return true
	}
	return false
}

// RiskEvent is an append-only record of a security-relevant booking event.
// Rows are created once and never updated or deleted.
type RiskEvent struct {
	ID              uint          `json:"id" gorm:"primaryKey"`
	UUID            string        `json:"uuid" gorm:"uniqueIndex"`
	SubjectID       uint          `json:"subject_id" gorm:"index:idx_risk_events_subject_created"`
	EventType       RiskEventType `json:"event_type" gorm:"index"`
	AppointmentUUID string        `json:"appointment_uuid,omitempty"`
	ClientIP        string        `json:"client_ip,omitempty" gorm:"index"`
	Reason          string        `json:"reason,omitempty"`
	Metadata        string        `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt       time.Time     `json:"created_at" gorm:"index:idx_risk_events_subject_created"`
}
