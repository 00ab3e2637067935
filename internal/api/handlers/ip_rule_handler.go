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

// IPRuleHandler exposes administrative CRUD over the IP rule set.
type IPRuleHandler struct {
	service *services.IPRuleService
}

func NewIPRuleHandler(service *services.IPRuleService) *IPRuleHandler {
	return &IPRuleHandler{service: service}
}

// RegisterRoutes wires the rule endpoints onto an admin-protected group.
func (h *IPRuleHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/security/ip-rules", h.List)
	rg.POST("/security/ip-rules", h.Create)
	rg.GET("/security/ip-rules/:id", h.Get)
	rg.PUT("/security/ip-rules/:id", h.Update)
	rg.DELETE("/security/ip-rules/:id", h.Delete)
	rg.POST("/security/ip-rules/test", h.TestIP)
}

// Create handles POST /api/v1/security/ip-rules
func (h *IPRuleHandler) Create(c *gin.Context) {
	var rule models.SecurityIPRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adminID := middleware.CurrentUserID(c)
	if err := h.service.Create(&rule, adminID, c.ClientIP()); err != nil {
		c.JSON(ruleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// List handles GET /api/v1/security/ip-rules
func (h *IPRuleHandler) List(c *gin.Context) {
	rules, err := h.service.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// Get handles GET /api/v1/security/ip-rules/:id
func (h *IPRuleHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return
	}

	rule, err := h.service.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, services.ErrIPRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ip rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Update handles PUT /api/v1/security/ip-rules/:id
func (h *IPRuleHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return
	}

	var updates models.SecurityIPRule
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	adminID := middleware.CurrentUserID(c)
	rule, err := h.service.Update(uint(id), &updates, adminID, c.ClientIP())
	if err != nil {
		if errors.Is(err, services.ErrIPRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ip rule not found"})
			return
		}
		c.JSON(ruleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// Delete handles DELETE /api/v1/security/ip-rules/:id
func (h *IPRuleHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return
	}

	if err := h.service.Delete(uint(id), middleware.CurrentUserID(c)); err != nil {
		if errors.Is(err, services.ErrIPRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ip rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ip rule deleted"})
}

// TestIP handles POST /api/v1/security/ip-rules/test. Admin-facing, so the
// matched rule may be exposed in full.
func (h *IPRuleHandler) TestIP(c *gin.Context) {
	var req struct {
		IPAddress string `json:"ip_address" binding:"required"`
		Scope     string `json:"scope"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Scope == "" {
		req.Scope = models.RuleScopeAPI
	}

	res, err := h.service.TestIP(req.IPAddress, req.Scope)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTarget) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed":      res.Allowed,
		"matched_rule": res.MatchedRule,
	})
}

// ruleErrorStatus maps validation errors to 400 and everything else to 500.
func ruleErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRuleType),
		errors.Is(err, services.ErrInvalidTargetType),
		errors.Is(err, services.ErrInvalidTarget),
		errors.Is(err, services.ErrInvalidRuleScope),
		errors.Is(err, services.ErrInvalidRuleStatus),
		errors.Is(err, services.ErrSelfLockout):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
