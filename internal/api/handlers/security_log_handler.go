package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nailbook/nailbook/backend/internal/services"
)

// SecurityLogHandler exposes read-only access to block and audit logs for
// investigation.
type SecurityLogHandler struct {
	audit *services.AuditService
}

func NewSecurityLogHandler(audit *services.AuditService) *SecurityLogHandler {
	return &SecurityLogHandler{audit: audit}
}

// RegisterRoutes wires the log endpoints onto an admin-protected group.
func (h *SecurityLogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/security/block-logs", h.ListBlocks)
	rg.GET("/security/audit", h.ListAudits)
}

// ListBlocks handles GET /api/v1/security/block-logs with ip/scope/since/limit
// filters.
func (h *SecurityLogHandler) ListBlocks(c *gin.Context) {
	filter := services.BlockLogFilter{
		ClientIP: c.Query("ip"),
		Scope:    c.Query("scope"),
		Limit:    100,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		filter.Since = since
	}

	logs, err := h.audit.ListBlocks(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// ListAudits handles GET /api/v1/security/audit
func (h *SecurityLogHandler) ListAudits(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	audits, err := h.audit.ListAudits(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, audits)
}
