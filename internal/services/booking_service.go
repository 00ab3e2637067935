package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/logger"
	"github.com/nailbook/nailbook/backend/internal/metrics"
	"github.com/nailbook/nailbook/backend/internal/models"
)

var (
	ErrInvalidServiceDate  = errors.New("service date must be YYYY-MM-DD")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAppointmentFinal    = errors.New("appointment is already cancelled or closed")
)

// BookingService is the booking collaborator: it asks the risk engine for a
// decision before persisting a booking, logs the lifecycle events the engine
// counts, and triggers a state refresh after standing-changing events.
type BookingService struct {
	db   *gorm.DB
	risk *RiskService
}

// NewBookingService returns a BookingService on top of the risk engine.
func NewBookingService(db *gorm.DB, risk *RiskService) *BookingService {
	return &BookingService{db: db, risk: risk}
}

// Book evaluates and, when allowed, persists a booking for the subject. The
// returned decision is meaningful in both cases; the appointment is nil when
// denied. Counting happens before the attempt event is written, so a burst of
// simultaneous requests can race past the limit by one request's worth of
// skew — an accepted property of the read-count-then-write-event design.
func (s *BookingService) Book(subjectID uint, serviceDate, clientIP string) (*models.Appointment, Decision, error) {
	if _, err := time.Parse("2006-01-02", serviceDate); err != nil {
		return nil, Decision{}, ErrInvalidServiceDate
	}

	decision := s.risk.EvaluateBooking(subjectID, serviceDate, clientIP)
	metrics.IncBookingDecision(decision.Code)

	s.logEvent(subjectID, models.EventBookingAttempt, "", clientIP, "")
	if !decision.Allowed {
		s.logEvent(subjectID, models.EventBookingBlocked, "", clientIP, decision.Code)
		return nil, decision, nil
	}

	appt := &models.Appointment{
		UUID:        uuid.NewString(),
		SubjectID:   subjectID,
		ServiceDate: serviceDate,
		Status:      models.AppointmentStatusConfirmed,
	}
	if err := s.db.Create(appt).Error; err != nil {
		return nil, decision, err
	}
	s.logEvent(subjectID, models.EventAppointmentCreated, appt.UUID, clientIP, "")
	return appt, decision, nil
}

// Cancel marks an appointment cancelled, logs the lifecycle event and
// refreshes the subject's risk state.
func (s *BookingService) Cancel(apptUUID string, subjectID uint, reason string) (*models.Appointment, error) {
	appt, err := s.getOwned(apptUUID, subjectID)
	if err != nil {
		return nil, err
	}
	if appt.Status != models.AppointmentStatusConfirmed {
		return nil, ErrAppointmentFinal
	}

	now := time.Now()
	appt.Status = models.AppointmentStatusCancelled
	appt.CancelledAt = &now
	if err := s.db.Save(appt).Error; err != nil {
		return nil, err
	}

	s.logEvent(appt.SubjectID, models.EventAppointmentCancelled, appt.UUID, "", reason)
	if _, err := s.risk.Refresh(appt.SubjectID); err != nil {
		logger.Log().WithError(err).WithField("subject_id", appt.SubjectID).Error("refresh after cancellation")
	}
	return appt, nil
}

// MarkNoShow records a no-show for an appointment (staff action) and
// refreshes the subject's risk state.
func (s *BookingService) MarkNoShow(apptUUID string, staffID uint) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.db.Where("uuid = ?", apptUUID).First(&appt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if appt.Status != models.AppointmentStatusConfirmed {
		return nil, ErrAppointmentFinal
	}

	appt.Status = models.AppointmentStatusNoShow
	if err := s.db.Save(&appt).Error; err != nil {
		return nil, err
	}

	s.logEvent(appt.SubjectID, models.EventAppointmentNoShow, appt.UUID, "", "")
	if _, err := s.risk.Refresh(appt.SubjectID); err != nil {
		logger.Log().WithError(err).WithField("subject_id", appt.SubjectID).Error("refresh after no-show")
	}
	return &appt, nil
}

// ListForSubject returns a subject's appointments, newest first.
func (s *BookingService) ListForSubject(subjectID uint) ([]models.Appointment, error) {
	var res []models.Appointment
	if err := s.db.Where("subject_id = ?", subjectID).Order("created_at desc").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (s *BookingService) getOwned(apptUUID string, subjectID uint) (*models.Appointment, error) {
	var appt models.Appointment
	if err := s.db.Where("uuid = ? AND subject_id = ?", apptUUID, subjectID).First(&appt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &appt, nil
}

// logEvent writes a lifecycle event. A failed event write is logged loudly
// but never fails the booking operation itself.
func (s *BookingService) logEvent(subjectID uint, eventType models.RiskEventType, apptUUID, clientIP, reason string) {
	e := &models.RiskEvent{
		SubjectID:       subjectID,
		EventType:       eventType,
		AppointmentUUID: apptUUID,
		ClientIP:        clientIP,
		Reason:          reason,
	}
	if err := s.risk.LogEvent(e); err != nil {
		logger.Log().WithError(err).WithFields(map[string]interface{}{
			"subject_id": subjectID,
			"event_type": eventType,
		}).Error("write risk event")
	}
}
