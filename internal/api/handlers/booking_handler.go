package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nailbook/nailbook/backend/internal/api/middleware"
	"github.com/nailbook/nailbook/backend/internal/services"
)

// BookingHandler is the HTTP surface of the booking collaborator. Policy
// denials surface the stable machine-readable code; internal rule IDs and
// counter values are never exposed to the denied party.
type BookingHandler struct {
	service *services.BookingService
}

func NewBookingHandler(service *services.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes wires the booking endpoints onto an authenticated group.
func (h *BookingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bookings", h.List)
	rg.POST("/bookings", h.Create)
	rg.POST("/bookings/:uuid/cancel", h.Cancel)
}

type createBookingRequest struct {
	ServiceDate string `json:"service_date" binding:"required"`
}

// Create handles POST /api/v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subjectID := middleware.CurrentUserID(c)
	appt, decision, err := h.service.Book(subjectID, req.ServiceDate, c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrInvalidServiceDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "booking failed"})
		return
	}
	if !decision.Allowed {
		c.JSON(decision.HTTPStatus, gin.H{"error": decision.Message, "code": decision.Code})
		return
	}

	c.JSON(http.StatusCreated, appt)
}

// Cancel handles POST /api/v1/bookings/:uuid/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	appt, err := h.service.Cancel(c.Param("uuid"), middleware.CurrentUserID(c), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAppointmentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
		case errors.Is(err, services.ErrAppointmentFinal):
			c.JSON(http.StatusConflict, gin.H{"error": "appointment is already closed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		}
		return
	}

	c.JSON(http.StatusOK, appt)
}

// List handles GET /api/v1/bookings
func (h *BookingHandler) List(c *gin.Context) {
	appts, err := h.service.ListForSubject(middleware.CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, appts)
}

// StaffBookingHandler covers the staff-only lifecycle actions.
type StaffBookingHandler struct {
	service *services.BookingService
}

func NewStaffBookingHandler(service *services.BookingService) *StaffBookingHandler {
	return &StaffBookingHandler{service: service}
}

// RegisterRoutes wires staff endpoints onto a staff/admin-protected group.
func (h *StaffBookingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings/:uuid/no-show", h.MarkNoShow)
}

// MarkNoShow handles POST /api/v1/bookings/:uuid/no-show
func (h *StaffBookingHandler) MarkNoShow(c *gin.Context) {
	appt, err := h.service.MarkNoShow(c.Param("uuid"), middleware.CurrentUserID(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAppointmentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
		case errors.Is(err, services.ErrAppointmentFinal):
			c.JSON(http.StatusConflict, gin.H{"error": "appointment is already closed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no-show update failed"})
		}
		return
	}

	c.JSON(http.StatusOK, appt)
}
