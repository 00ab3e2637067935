package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/models"
)

func setupBooking(t *testing.T) (*gorm.DB, *BookingService) {
	db := setupTestDB(t)
	risk := NewRiskService(db, testRiskConfig())
	return db, NewBookingService(db, risk)
}

func TestBookingService_Book(t *testing.T) {
	t.Run("allowed booking creates a confirmed appointment", func(t *testing.T) {
		db, svc := setupBooking(t)

		appt, decision, err := svc.Book(1, "2026-03-01", "203.0.113.5")
		assert.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.NotNil(t, appt)
		assert.Equal(t, models.AppointmentStatusConfirmed, appt.Status)
		assert.NotEmpty(t, appt.UUID)

		// Both the attempt and the created events are on the log.
		var types []string
		assert.NoError(t, db.Model(&models.RiskEvent{}).Order("id").Pluck("event_type", &types).Error)
		assert.Equal(t, []string{
			string(models.EventBookingAttempt),
			string(models.EventAppointmentCreated),
		}, types)
	})

	t.Run("rejects malformed service date", func(t *testing.T) {
		_, svc := setupBooking(t)
		_, _, err := svc.Book(1, "01-03-2026", "")
		assert.ErrorIs(t, err, ErrInvalidServiceDate)
	})

	t.Run("denied booking logs attempt and blocked events", func(t *testing.T) {
		db, svc := setupBooking(t)

		// Burn through the per-minute allowance, then one more.
		var last Decision
		for i := 0; i < 3; i++ {
			_, last, _ = svc.Book(1, "2026-03-01", "")
		}
		assert.False(t, last.Allowed)
		assert.Equal(t, CodeRateLimited, last.Code)

		var blocked []models.RiskEvent
		assert.NoError(t, db.Where("event_type = ?", models.EventBookingBlocked).Find(&blocked).Error)
		assert.Len(t, blocked, 1)
		assert.Equal(t, CodeRateLimited, blocked[0].Reason)

		var attempts int64
		assert.NoError(t, db.Model(&models.RiskEvent{}).
			Where("event_type = ?", models.EventBookingAttempt).Count(&attempts).Error)
		assert.EqualValues(t, 3, attempts)
	})

	t.Run("attempt counts even when the booking is denied", func(t *testing.T) {
		_, svc := setupBooking(t)

		for i := 0; i < 3; i++ {
			svc.Book(1, "2026-03-01", "")
		}
		// Denied attempts keep feeding the counter, so the subject stays
		// limited for the rest of the window.
		_, decision, err := svc.Book(1, "2026-03-01", "")
		assert.NoError(t, err)
		assert.False(t, decision.Allowed)
	})
}

func TestBookingService_Cancel(t *testing.T) {
	t.Run("cancelling logs the event and refreshes state", func(t *testing.T) {
		db, svc := setupBooking(t)
		appt, _, err := svc.Book(1, "2026-03-01", "")
		assert.NoError(t, err)

		got, err := svc.Cancel(appt.UUID, 1, "changed plans")
		assert.NoError(t, err)
		assert.Equal(t, models.AppointmentStatusCancelled, got.Status)
		assert.NotNil(t, got.CancelledAt)

		var state models.UserRiskState
		assert.NoError(t, db.Where("subject_id = ?", 1).First(&state).Error)
		assert.Equal(t, 1, state.CancelCount7d)
	})

	t.Run("only the owner can cancel", func(t *testing.T) {
		_, svc := setupBooking(t)
		appt, _, err := svc.Book(1, "2026-03-01", "")
		assert.NoError(t, err)

		_, err = svc.Cancel(appt.UUID, 2, "")
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("cancelling twice fails", func(t *testing.T) {
		_, svc := setupBooking(t)
		appt, _, err := svc.Book(1, "2026-03-01", "")
		assert.NoError(t, err)

		_, err = svc.Cancel(appt.UUID, 1, "")
		assert.NoError(t, err)
		_, err = svc.Cancel(appt.UUID, 1, "")
		assert.ErrorIs(t, err, ErrAppointmentFinal)
	})

	t.Run("third cancellation in a week restricts the subject", func(t *testing.T) {
		db, svc := setupBooking(t)

		for i, date := range []string{"2026-03-01", "2026-03-02", "2026-03-03"} {
			appt, decision, err := svc.Book(1, date, "")
			assert.NoError(t, err)
			assert.True(t, decision.Allowed, "booking %d should pass", i)

			// Keep the attempts outside the one-minute window.
			assert.NoError(t, db.Model(&models.RiskEvent{}).
				Where("event_type = ?", models.EventBookingAttempt).
				Update("created_at", time.Now().Add(-2*time.Minute)).Error)

			_, err = svc.Cancel(appt.UUID, 1, "")
			assert.NoError(t, err)
		}

		var state models.UserRiskState
		assert.NoError(t, db.Where("subject_id = ?", 1).First(&state).Error)
		assert.Equal(t, models.RiskLevelHigh, state.RiskLevel)
		assert.NotNil(t, state.RestrictedUntil)

		_, decision, err := svc.Book(1, "2026-03-04", "")
		assert.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, CodeRestricted, decision.Code)
	})
}

func TestBookingService_MarkNoShow(t *testing.T) {
	t.Run("no-show updates status and counters", func(t *testing.T) {
		db, svc := setupBooking(t)
		appt, _, err := svc.Book(1, "2026-03-01", "")
		assert.NoError(t, err)

		got, err := svc.MarkNoShow(appt.UUID, 9)
		assert.NoError(t, err)
		assert.Equal(t, models.AppointmentStatusNoShow, got.Status)

		var state models.UserRiskState
		assert.NoError(t, db.Where("subject_id = ?", 1).First(&state).Error)
		assert.Equal(t, 1, state.NoShowCount30d)
	})

	t.Run("second no-show escalates to high", func(t *testing.T) {
		db, svc := setupBooking(t)

		for _, date := range []string{"2026-03-01", "2026-03-02"} {
			appt, _, err := svc.Book(1, date, "")
			assert.NoError(t, err)
			assert.NoError(t, db.Model(&models.RiskEvent{}).
				Where("event_type = ?", models.EventBookingAttempt).
				Update("created_at", time.Now().Add(-2*time.Minute)).Error)
			_, err = svc.MarkNoShow(appt.UUID, 9)
			assert.NoError(t, err)
		}

		var state models.UserRiskState
		assert.NoError(t, db.Where("subject_id = ?", 1).First(&state).Error)
		assert.Equal(t, models.RiskLevelHigh, state.RiskLevel)
		assert.NotNil(t, state.RestrictedUntil)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *state.RestrictedUntil, time.Minute)

		_, decision, err := svc.Book(1, "2026-03-03", "")
		assert.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, CodeRestricted, decision.Code)
	})

	t.Run("unknown appointment fails", func(t *testing.T) {
		_, svc := setupBooking(t)
		_, err := svc.MarkNoShow("no-such-uuid", 9)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("cancelled appointment cannot become a no-show", func(t *testing.T) {
		_, svc := setupBooking(t)
		appt, _, err := svc.Book(1, "2026-03-01", "")
		assert.NoError(t, err)
		_, err = svc.Cancel(appt.UUID, 1, "")
		assert.NoError(t, err)

		_, err = svc.MarkNoShow(appt.UUID, 9)
		assert.ErrorIs(t, err, ErrAppointmentFinal)
	})
}

func TestBookingService_ListForSubject(t *testing.T) {
	db, svc := setupBooking(t)
	a1, _, err := svc.Book(1, "2026-03-01", "")
	assert.NoError(t, err)
	assert.NoError(t, db.Model(&models.RiskEvent{}).
		Where("event_type = ?", models.EventBookingAttempt).
		Update("created_at", time.Now().Add(-2*time.Minute)).Error)
	_, _, err = svc.Book(1, "2026-03-02", "")
	assert.NoError(t, err)
	_, _, err = svc.Book(2, "2026-03-02", "")
	assert.NoError(t, err)

	list, err := svc.ListForSubject(1)
	assert.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.Cancel(a1.UUID, 1, "")
	assert.NoError(t, err)
	list, err = svc.ListForSubject(1)
	assert.NoError(t, err)
	assert.Len(t, list, 2)
}
