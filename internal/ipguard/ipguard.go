package ipguard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nailbook/nailbook/backend/internal/config"
	"github.com/nailbook/nailbook/backend/internal/logger"
	"github.com/nailbook/nailbook/backend/internal/metrics"
	"github.com/nailbook/nailbook/backend/internal/models"
	"github.com/nailbook/nailbook/backend/internal/services"
)

// SubjectIDKey is the gin context key under which the auth middleware stores
// the authenticated user's ID; the guard reads it to attribute block records.
const SubjectIDKey = "userID"

// Guard evaluates every inbound request against the IP rule set before any
// handler runs.
type Guard struct {
	cfg     config.SecurityConfig
	ruleSvc *services.IPRuleService
	audit   *services.AuditService
}

// New creates a Guard over the shared rule and audit services.
func New(cfg config.SecurityConfig, ruleSvc *services.IPRuleService, audit *services.AuditService) *Guard {
	return &Guard{cfg: cfg, ruleSvc: ruleSvc, audit: audit}
}

// ScopeFor maps a request path to a rule scope. Login endpoints form their
// own scope so an admin can lock down authentication separately.
func ScopeFor(path string) string {
	if strings.HasPrefix(path, "/api/v1/auth/") {
		return models.RuleScopeLogin
	}
	return models.RuleScopeAPI
}

// Middleware returns a Gin middleware enforcing the IP rules. A rule store
// failure fails open: an outage must not turn into a total lockout. A denied
// request gets a generic 403 body that never reveals which rule matched,
// while the full detail goes to the block log.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !g.cfg.GuardEnabled {
			ctx.Next()
			return
		}

		clientIP := ctx.ClientIP()
		scope := ScopeFor(ctx.Request.URL.Path)

		res, err := g.ruleSvc.Resolve(clientIP, scope)
		if err != nil {
			logger.Log().WithError(err).WithFields(map[string]interface{}{
				"client_ip": clientIP,
				"scope":     scope,
			}).Error("ip rule store unavailable, failing open")
			ctx.Next()
			return
		}
		if res.Allowed {
			ctx.Next()
			return
		}

		metrics.IncGuardBlocked()
		g.writeBlockLog(ctx, clientIP, scope, res)

		logger.Log().WithFields(map[string]interface{}{
			"client_ip": clientIP,
			"scope":     scope,
			"path":      ctx.Request.URL.Path,
			"rule_id":   res.MatchedRule.ID,
		}).Warn("request blocked by ip rule")

		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

// writeBlockLog records the denial. A failed write is logged but the deny
// decision stands regardless.
func (g *Guard) writeBlockLog(ctx *gin.Context, clientIP, scope string, res services.MatchResult) {
	entry := &models.SecurityBlockLog{
		ClientIP:    clientIP,
		Path:        ctx.Request.URL.Path,
		Method:      ctx.Request.Method,
		Scope:       scope,
		BlockReason: res.MatchedRule.Reason,
		UserAgent:   ctx.Request.UserAgent(),
	}
	ruleID := res.MatchedRule.ID
	entry.MatchedRuleID = &ruleID
	if v, ok := ctx.Get(SubjectIDKey); ok {
		if id, ok := v.(uint); ok {
			entry.SubjectID = &id
		}
	}
	if err := g.audit.LogBlock(entry); err != nil {
		logger.Log().WithError(err).WithField("client_ip", clientIP).Error("write block log")
	}
}
