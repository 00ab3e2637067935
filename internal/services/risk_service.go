package services

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nailbook/nailbook/backend/internal/config"
	"github.com/nailbook/nailbook/backend/internal/logger"
	"github.com/nailbook/nailbook/backend/internal/models"
)

var (
	ErrInvalidRiskLevel   = errors.New("invalid risk level")
	ErrInvalidRestriction = errors.New("restriction hours must be positive")
	ErrUserNotFound       = errors.New("user not found")
)

// Decision codes surfaced to booking callers. The codes are part of the API
// contract and must stay stable.
const (
	CodeAllowed     = "ALLOWED"
	CodeRestricted  = "BOOK_RESTRICTED"
	CodeRateLimited = "BOOK_RATE_LIMITED"
	CodeDailyLimit  = "BOOK_DAILY_LIMIT"
	CodeUnavailable = "BOOK_UNAVAILABLE"
)

// Decision is the outcome of a booking risk evaluation. Policy denials are
// results, not errors: they carry a stable code and an HTTP status.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	HTTPStatus int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func deny(status int, code, message string) Decision {
	return Decision{Allowed: false, HTTPStatus: status, Code: code, Message: message}
}

// RiskService owns the risk event log, the trailing-window counters, the
// booking decision engine and the per-subject risk state.
type RiskService struct {
	db    *gorm.DB
	cfg   config.RiskConfig
	audit *AuditService
	now   func() time.Time
}

// NewRiskService returns a RiskService using the provided DB and thresholds.
func NewRiskService(db *gorm.DB, cfg config.RiskConfig) *RiskService {
	return &RiskService{db: db, cfg: cfg, audit: NewAuditService(db), now: time.Now}
}

// LogEvent appends a risk event. Events are immutable once written.
func (s *RiskService) LogEvent(e *models.RiskEvent) error {
	if e == nil {
		return nil
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("log risk event: unknown event type %q", e.EventType)
	}
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.db.Create(e).Error
}

// CountEvents counts events of the given type in the trailing window
// [since, now). Subject and client IP are optional filters; zero values are
// ignored. Pure read, no side effects.
func (s *RiskService) CountEvents(eventType models.RiskEventType, subjectID uint, clientIP string, since time.Time) (int64, error) {
	var count int64
	q := s.db.Model(&models.RiskEvent{}).
		Where("event_type = ? AND created_at >= ?", eventType, since)
	if subjectID != 0 {
		q = q.Where("subject_id = ?", subjectID)
	}
	if clientIP != "" {
		q = q.Where("client_ip = ?", clientIP)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListEvents returns a subject's recent events, newest first.
func (s *RiskService) ListEvents(subjectID uint, limit int) ([]models.RiskEvent, error) {
	var res []models.RiskEvent
	q := s.db.Where("subject_id = ?", subjectID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// State returns the subject's risk state, creating a fresh row on first use.
func (s *RiskService) State(subjectID uint) (*models.UserRiskState, error) {
	var state models.UserRiskState
	err := s.db.Where("subject_id = ?", subjectID).
		FirstOrCreate(&state, models.UserRiskState{SubjectID: subjectID, RiskLevel: models.RiskLevelNormal}).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// EvaluateBooking decides whether a booking attempt may proceed. Checks run in
// a fixed order and the first failing check wins, so error codes stay
// deterministic. The engine itself performs no writes; the caller logs the
// attempt and any blocked event afterwards.
//
// A store failure on the restriction read fails closed: that check protects
// against active abuse. Rate-limit and daily-cap reads fail open so a degraded
// store does not take down the booking path.
func (s *RiskService) EvaluateBooking(subjectID uint, serviceDate, clientIP string) Decision {
	now := s.now()

	state, err := s.State(subjectID)
	if err != nil {
		logger.Log().WithError(err).WithField("subject_id", subjectID).
			Error("risk state unavailable, failing closed")
		return deny(http.StatusServiceUnavailable, CodeUnavailable, "booking is temporarily unavailable")
	}
	if state.Restricted(now) {
		return deny(http.StatusTooManyRequests, CodeRestricted, "booking is temporarily restricted for this account")
	}

	if d, ok := s.rateLimited(models.EventBookingAttempt, subjectID, "", now, s.cfg.SubjectPerMinute, s.cfg.SubjectPerHour); ok {
		return d
	}
	if clientIP != "" {
		if d, ok := s.rateLimited(models.EventBookingAttempt, 0, clientIP, now, s.cfg.IPPerMinute, s.cfg.IPPerHour); ok {
			return d
		}
	}

	var booked int64
	err = s.db.Model(&models.Appointment{}).
		Where("subject_id = ? AND service_date = ? AND status = ?", subjectID, serviceDate, models.AppointmentStatusConfirmed).
		Count(&booked).Error
	if err != nil {
		logger.Log().WithError(err).WithField("subject_id", subjectID).
			Warn("daily cap check unavailable, failing open")
	} else if booked >= int64(s.cfg.DailyCap) {
		return deny(http.StatusBadRequest, CodeDailyLimit, "daily booking limit reached for this date")
	}

	return Decision{Allowed: true, HTTPStatus: http.StatusOK, Code: CodeAllowed}
}

// rateLimited applies the per-minute and per-hour attempt thresholds for one
// key (subject or client IP). Counter read failures fail open.
func (s *RiskService) rateLimited(eventType models.RiskEventType, subjectID uint, clientIP string, now time.Time, perMinute, perHour int) (Decision, bool) {
	lastMinute, err := s.CountEvents(eventType, subjectID, clientIP, now.Add(-time.Minute))
	if err != nil {
		logger.Log().WithError(err).Warn("rate limit check unavailable, failing open")
		return Decision{}, false
	}
	if lastMinute >= int64(perMinute) {
		return deny(http.StatusTooManyRequests, CodeRateLimited, "too many booking attempts, slow down"), true
	}
	lastHour, err := s.CountEvents(eventType, subjectID, clientIP, now.Add(-time.Hour))
	if err != nil {
		logger.Log().WithError(err).Warn("rate limit check unavailable, failing open")
		return Decision{}, false
	}
	if lastHour >= int64(perHour) {
		return deny(http.StatusTooManyRequests, CodeRateLimited, "too many booking attempts, try again later"), true
	}
	return Decision{}, false
}

// Refresh recomputes the subject's rolling counters from the event log and
// applies the escalation rules. Recomputing from history keeps the refresher
// idempotent: running it twice with no new events changes nothing. A lost
// update under concurrent writers is retried once with a fresh read.
func (s *RiskService) Refresh(subjectID uint) (*models.UserRiskState, error) {
	state, err := s.refreshOnce(subjectID)
	if err != nil {
		state, err = s.refreshOnce(subjectID)
		if err != nil {
			return nil, fmt.Errorf("refresh risk state: %w", err)
		}
	}
	return state, nil
}

func (s *RiskService) refreshOnce(subjectID uint) (*models.UserRiskState, error) {
	now := s.now()
	var state models.UserRiskState

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subject_id = ?", subjectID).
			FirstOrCreate(&state, models.UserRiskState{SubjectID: subjectID, RiskLevel: models.RiskLevelNormal}).Error; err != nil {
			return err
		}

		var cancels, noShows int64
		if err := tx.Model(&models.RiskEvent{}).
			Where("event_type = ? AND subject_id = ? AND created_at >= ?",
				models.EventAppointmentCancelled, subjectID, now.Add(-7*24*time.Hour)).
			Count(&cancels).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.RiskEvent{}).
			Where("event_type = ? AND subject_id = ? AND created_at >= ?",
				models.EventAppointmentNoShow, subjectID, now.Add(-30*24*time.Hour)).
			Count(&noShows).Error; err != nil {
			return err
		}

		state.CancelCount7d = int(cancels)
		state.NoShowCount30d = int(noShows)

		switch {
		case int(cancels) >= s.cfg.CancelEscalateCount || int(noShows) >= s.cfg.NoShowEscalateCount:
			state.RiskLevel = models.RiskLevelHigh
			until := now.Add(s.cfg.RestrictionDuration)
			// Never shorten an existing restriction.
			if state.RestrictedUntil == nil || state.RestrictedUntil.Before(until) {
				state.RestrictedUntil = &until
			}
		case int(cancels) >= s.cfg.CancelMediumCount:
			state.RiskLevel = models.RiskLevelMedium
		default:
			if !state.Restricted(now) {
				state.RiskLevel = models.RiskLevelNormal
				state.RestrictedUntil = nil
			}
		}

		return tx.Save(&state).Error
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Restrict applies a manual timed restriction. Manual override always wins
// over the computed timer, including shortening it.
func (s *RiskService) Restrict(subjectID, adminID uint, hours int, note string) (*models.UserRiskState, error) {
	if hours <= 0 {
		return nil, ErrInvalidRestriction
	}
	now := s.now()
	until := now.Add(time.Duration(hours) * time.Hour)

	state, before, err := s.mutateState(subjectID, func(st *models.UserRiskState) {
		st.RiskLevel = models.RiskLevelHigh
		st.RestrictedUntil = &until
		st.ManualNote = note
		st.UpdatedBy = adminID
	})
	if err != nil {
		return nil, err
	}

	s.logManualEvent(subjectID, models.EventManualRestriction, note,
		fmt.Sprintf(`{"hours":%d,"admin_id":%d}`, hours, adminID))
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), "risk.restrict", "user_risk_state", state.ID, before, state)
	return state, nil
}

// Unrestrict clears the restriction timer. The resulting level still reflects
// the cancellation history so unrestricting never hides an elevated pattern.
func (s *RiskService) Unrestrict(subjectID, adminID uint, note string) (*models.UserRiskState, error) {
	state, before, err := s.mutateState(subjectID, func(st *models.UserRiskState) {
		st.RestrictedUntil = nil
		if st.CancelCount7d >= s.cfg.CancelMediumCount {
			st.RiskLevel = models.RiskLevelMedium
		} else {
			st.RiskLevel = models.RiskLevelNormal
		}
		st.ManualNote = note
		st.UpdatedBy = adminID
	})
	if err != nil {
		return nil, err
	}

	s.logManualEvent(subjectID, models.EventManualRestriction, note,
		fmt.Sprintf(`{"unrestrict":true,"admin_id":%d}`, adminID))
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), "risk.unrestrict", "user_risk_state", state.ID, before, state)
	return state, nil
}

// SetRiskLevel overrides the risk level without touching the restriction
// timer.
func (s *RiskService) SetRiskLevel(subjectID, adminID uint, level models.RiskLevel, note string) (*models.UserRiskState, error) {
	if !level.Valid() {
		return nil, ErrInvalidRiskLevel
	}
	state, before, err := s.mutateState(subjectID, func(st *models.UserRiskState) {
		st.RiskLevel = level
		st.ManualNote = note
		st.UpdatedBy = adminID
	})
	if err != nil {
		return nil, err
	}

	s.logManualEvent(subjectID, models.EventManualRiskLevelChange, note,
		fmt.Sprintf(`{"level":%q,"admin_id":%d}`, level, adminID))
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), "risk.set_level", "user_risk_state", state.ID, before, state)
	return state, nil
}

// Ban suspends the account entirely. Orthogonal to the timed restriction: a
// banned user cannot log in at all, regardless of risk level.
func (s *RiskService) Ban(subjectID, adminID uint, note string) error {
	return s.setBanned(subjectID, adminID, true, "risk.ban", note)
}

// Unban lifts an account suspension.
func (s *RiskService) Unban(subjectID, adminID uint, note string) error {
	return s.setBanned(subjectID, adminID, false, "risk.unban", note)
}

func (s *RiskService) setBanned(subjectID, adminID uint, banned bool, action, note string) error {
	var user models.User
	if err := s.db.First(&user, subjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	before := user
	user.Banned = banned
	if err := s.db.Save(&user).Error; err != nil {
		return err
	}
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), action, "user", user.ID,
		map[string]interface{}{"banned": before.Banned},
		map[string]interface{}{"banned": user.Banned, "note": note})
	return nil
}

// mutateState loads (or creates) a subject's state under a row lock, applies
// fn, and saves. Retried once on a write conflict. Returns the saved state and
// a copy of the pre-mutation row for auditing.
func (s *RiskService) mutateState(subjectID uint, fn func(*models.UserRiskState)) (*models.UserRiskState, *models.UserRiskState, error) {
	var state, before models.UserRiskState
	run := func() error {
		state = models.UserRiskState{}
		return s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("subject_id = ?", subjectID).
				FirstOrCreate(&state, models.UserRiskState{SubjectID: subjectID, RiskLevel: models.RiskLevelNormal}).Error; err != nil {
				return err
			}
			before = state
			fn(&state)
			return tx.Save(&state).Error
		})
	}
	if err := run(); err != nil {
		if err = run(); err != nil {
			return nil, nil, fmt.Errorf("update risk state: %w", err)
		}
	}
	return &state, &before, nil
}

func (s *RiskService) logManualEvent(subjectID uint, eventType models.RiskEventType, reason, metadata string) {
	e := &models.RiskEvent{
		SubjectID: subjectID,
		EventType: eventType,
		Reason:    reason,
		Metadata:  metadata,
	}
	if err := s.LogEvent(e); err != nil {
		logger.Log().WithError(err).WithField("subject_id", subjectID).Error("write manual risk event")
	}
}
