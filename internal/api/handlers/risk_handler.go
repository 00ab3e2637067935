package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nailbook/nailbook/backend/internal/api/middleware"
	"github.com/nailbook/nailbook/backend/internal/models"
	"github.com/nailbook/nailbook/backend/internal/services"
)

// RiskHandler exposes a subject's risk state and the manual administration
// actions. All writes go through the risk service, which produces the audit
// trail.
type RiskHandler struct {
	service *services.RiskService
}

func NewRiskHandler(service *services.RiskService) *RiskHandler {
	return &RiskHandler{service: service}
}

// RegisterRoutes wires the risk admin endpoints onto an admin-protected group.
func (h *RiskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/security/risk/:subject_id", h.GetState)
	rg.GET("/security/risk/:subject_id/events", h.ListEvents)
	rg.POST("/security/risk/:subject_id/refresh", h.Refresh)
	rg.POST("/security/risk/:subject_id/restrict", h.Restrict)
	rg.POST("/security/risk/:subject_id/unrestrict", h.Unrestrict)
	rg.POST("/security/risk/:subject_id/level", h.SetLevel)
	rg.POST("/security/risk/:subject_id/ban", h.Ban)
	rg.POST("/security/risk/:subject_id/unban", h.Unban)
}

func subjectParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("subject_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject ID"})
		return 0, false
	}
	return uint(id), true
}

// GetState handles GET /api/v1/security/risk/:subject_id
func (h *RiskHandler) GetState(c *gin.Context) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	state, err := h.service.State(subjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

// ListEvents handles GET /api/v1/security/risk/:subject_id/events
func (h *RiskHandler) ListEvents(c *gin.Context) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.service.ListEvents(subjectID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

// Refresh handles POST /api/v1/security/risk/:subject_id/refresh
func (h *RiskHandler) Refresh(c *gin.Context) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	state, err := h.service.Refresh(subjectID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

type restrictRequest struct {
	Hours int    `json:"hours" binding:"required"`
	Note  string `json:"note"`
}

// Restrict handles POST /api/v1/security/risk/:subject_id/restrict
func (h *RiskHandler) Restrict(c *gin.Context) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	var req restrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.service.Restrict(subjectID, middleware.CurrentUserID(c), req.Hours, req.Note)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRestriction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

type noteRequest struct {
	Note string `json:"note"`
}

// Unrestrict handles POST /api/v1/security/risk/:subject_id/unrestrict
func (h *RiskHandler) Unrestrict(c *gin.Context) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)

	state, err := h.service.Unrestrict(subjectID, middleware.CurrentUserID(c), req.Note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

type setLevelRequest struct {
	Level string `json:"level" binding:"required"`
	Note  string `json:"note"`
}

// SetLevel handles POST /api/v1/security/risk/:subject_id/level
func (h *RiskHandler) SetLevel(c *gin.Context) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	var req setLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.service.SetRiskLevel(subjectID, middleware.CurrentUserID(c), models.RiskLevel(req.Level), req.Note)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRiskLevel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "level must be normal, medium or high"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

// Ban handles POST /api/v1/security/risk/:subject_id/ban
func (h *RiskHandler) Ban(c *gin.Context) {
	h.setBan(c, true)
}

// Unban handles POST /api/v1/security/risk/:subject_id/unban
func (h *RiskHandler) Unban(c *gin.Context) {
	h.setBan(c, false)
}

func (h *RiskHandler) setBan(c *gin.Context, banned bool) {
	subjectID, ok := subjectParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)

	adminID := middleware.CurrentUserID(c)
	var err error
	if banned {
		err = h.service.Ban(subjectID, adminID, req.Note)
	} else {
		err = h.service.Unban(subjectID, adminID, req.Note)
	}
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_id": subjectID, "banned": banned})
}
