package models

import (
	"time"
)

// Appointment statuses. Only the lifecycle the trust core cares about is
// modelled here; service/technician scheduling lives elsewhere.
const (
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusNoShow    = "no_show"
)

// Appointment is the minimal booking record the risk engine needs: the daily
// cap counts confirmed rows per service date, and cancellations/no-shows feed
// the event log.
type Appointment struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	UUID        string     `json:"uuid" gorm:"uniqueIndex"`
	SubjectID   uint       `json:"subject_id" gorm:"index:idx_appointments_subject_date"`
	ServiceDate string     `json:"service_date" gorm:"index:idx_appointments_subject_date"` // YYYY-MM-DD
	Status      string     `json:"status" gorm:"default:'confirmed'"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
