package services

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nailbook/nailbook/backend/internal/metrics"
	"github.com/nailbook/nailbook/backend/internal/models"
)

var (
	ErrIPRuleNotFound    = errors.New("ip rule not found")
	ErrInvalidRuleType   = errors.New("invalid rule type")
	ErrInvalidTargetType = errors.New("invalid target type")
	ErrInvalidTarget     = errors.New("invalid IP address or CIDR")
	ErrInvalidRuleScope  = errors.New("invalid rule scope")
	ErrInvalidRuleStatus = errors.New("invalid rule status")
	ErrSelfLockout       = errors.New("deny rule would block your own IP address")
)

// MatchResult is the outcome of resolving a client IP against the rule set.
// MatchedRule is the winning deny rule when denied, or the winning allow rule
// when an allow match decided the outcome; nil on the default allow.
type MatchResult struct {
	Allowed     bool
	MatchedRule *models.SecurityIPRule
}

// IPRuleService manages SecurityIPRule rows and resolves client IPs against
// an in-memory snapshot of active rules, so the hot middleware path does not
// hit the store per request. The snapshot is invalidated on every rule write
// and refreshed after cacheTTL.
type IPRuleService struct {
	db       *gorm.DB
	audit    *AuditService
	cacheTTL time.Duration

	mu       sync.RWMutex
	snapshot []models.SecurityIPRule
	loadedAt time.Time
}

// NewIPRuleService returns an IPRuleService with the given snapshot TTL.
func NewIPRuleService(db *gorm.DB, cacheTTL time.Duration) *IPRuleService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &IPRuleService{db: db, audit: NewAuditService(db), cacheTTL: cacheTTL}
}

// Create validates and stores a new rule. adminIP is the creating
// administrator's resolved client IP, used for the self-lockout guard.
func (s *IPRuleService) Create(rule *models.SecurityIPRule, adminID uint, adminIP string) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if err := s.checkSelfLockout(rule, adminIP); err != nil {
		return err
	}

	rule.UUID = uuid.NewString()
	rule.CreatedBy = adminID
	if err := s.db.Create(rule).Error; err != nil {
		return err
	}
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), "ip_rule.create", "security_ip_rule", rule.ID, nil, rule)
	s.Invalidate()
	return nil
}

// GetByID retrieves a rule by ID.
func (s *IPRuleService) GetByID(id uint) (*models.SecurityIPRule, error) {
	var rule models.SecurityIPRule
	if err := s.db.First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIPRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List retrieves all rules ordered by priority, then recency.
func (s *IPRuleService) List() ([]models.SecurityIPRule, error) {
	var rules []models.SecurityIPRule
	if err := s.db.Order("priority asc, updated_at desc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// Update applies updates to an existing rule with full validation, including
// the self-lockout guard on the resulting rule.
func (s *IPRuleService) Update(id uint, updates *models.SecurityIPRule, adminID uint, adminIP string) (*models.SecurityIPRule, error) {
	rule, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	before := *rule

	rule.RuleType = updates.RuleType
	rule.TargetType = updates.TargetType
	rule.TargetValue = updates.TargetValue
	rule.Scope = updates.Scope
	rule.Status = updates.Status
	rule.Priority = updates.Priority
	rule.Reason = updates.Reason
	rule.ExpiresAt = updates.ExpiresAt

	if err := s.validateRule(rule); err != nil {
		return nil, err
	}
	if err := s.checkSelfLockout(rule, adminIP); err != nil {
		return nil, err
	}

	if err := s.db.Save(rule).Error; err != nil {
		return nil, err
	}
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), "ip_rule.update", "security_ip_rule", rule.ID, before, rule)
	s.Invalidate()
	return rule, nil
}

// Delete removes a rule.
func (s *IPRuleService) Delete(id uint, adminID uint) error {
	rule, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(&models.SecurityIPRule{}, id).Error; err != nil {
		return err
	}
	s.audit.RecordChange(fmt.Sprintf("admin:%d", adminID), "ip_rule.delete", "security_ip_rule", id, rule, nil)
	s.Invalidate()
	return nil
}

// Resolve decides allow vs deny for a client IP and request scope. No rule
// matching means allow: the rule set is a blocklist/allowlist overlay, not a
// default-deny firewall. Among matches the lowest-priority-number allow and
// deny rules compete; allow wins ties so an administrator can carve out an
// exception at the same priority tier as a broader deny.
func (s *IPRuleService) Resolve(clientIP, scope string) (MatchResult, error) {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return MatchResult{Allowed: true}, nil
	}

	rules, err := s.activeRules()
	if err != nil {
		return MatchResult{Allowed: true}, err
	}

	now := time.Now()
	var bestAllow, bestDeny *models.SecurityIPRule
	for i := range rules {
		r := &rules[i]
		if r.Status != models.RuleStatusActive || r.Expired(now) || !r.AppliesTo(scope) {
			continue
		}
		if !ruleMatchesIP(r, ip) {
			continue
		}
		switch r.RuleType {
		case models.RuleTypeAllow:
			if bestAllow == nil || r.Priority < bestAllow.Priority {
				bestAllow = r
			}
		case models.RuleTypeDeny:
			if bestDeny == nil || r.Priority < bestDeny.Priority {
				bestDeny = r
			}
		}
	}

	if bestDeny == nil {
		return MatchResult{Allowed: true, MatchedRule: bestAllow}, nil
	}
	if bestAllow != nil && bestAllow.Priority <= bestDeny.Priority {
		return MatchResult{Allowed: true, MatchedRule: bestAllow}, nil
	}
	return MatchResult{Allowed: false, MatchedRule: bestDeny}, nil
}

// TestIP reports how a given IP would resolve in a scope, with the matched
// rule. Admin-facing, so it may expose rule detail.
func (s *IPRuleService) TestIP(clientIP, scope string) (MatchResult, error) {
	if net.ParseIP(clientIP) == nil {
		return MatchResult{}, ErrInvalidTarget
	}
	return s.Resolve(clientIP, scope)
}

// Invalidate drops the cached snapshot so the next Resolve reloads it.
func (s *IPRuleService) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// Reload refreshes the snapshot immediately. Used by the periodic cache
// refresh job.
func (s *IPRuleService) Reload() error {
	var rules []models.SecurityIPRule
	if err := s.db.Where("status = ?", models.RuleStatusActive).
		Order("priority asc").Find(&rules).Error; err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = rules
	s.loadedAt = time.Now()
	s.mu.Unlock()
	metrics.IncRuleCacheReload()
	return nil
}

// SweepExpired deactivates rules whose expiry has passed. Expired rules never
// match regardless, so this is housekeeping, not correctness.
func (s *IPRuleService) SweepExpired() (int64, error) {
	res := s.db.Model(&models.SecurityIPRule{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.RuleStatusActive, time.Now()).
		Update("status", models.RuleStatusInactive)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.Invalidate()
	}
	return res.RowsAffected, nil
}

func (s *IPRuleService) activeRules() ([]models.SecurityIPRule, error) {
	s.mu.RLock()
	fresh := !s.loadedAt.IsZero() && time.Since(s.loadedAt) < s.cacheTTL
	rules := s.snapshot
	s.mu.RUnlock()
	if fresh {
		return rules, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rules = s.snapshot
	s.mu.RUnlock()
	return rules, nil
}

// checkSelfLockout rejects an active deny rule that would match the writing
// administrator's own IP, so an admin cannot firewall out their own session.
func (s *IPRuleService) checkSelfLockout(rule *models.SecurityIPRule, adminIP string) error {
	if rule.RuleType != models.RuleTypeDeny || rule.Status != models.RuleStatusActive {
		return nil
	}
	ip := net.ParseIP(adminIP)
	if ip == nil {
		return nil
	}
	if ruleMatchesIP(rule, ip) {
		return ErrSelfLockout
	}
	return nil
}

func (s *IPRuleService) validateRule(rule *models.SecurityIPRule) error {
	if rule.RuleType != models.RuleTypeAllow && rule.RuleType != models.RuleTypeDeny {
		return ErrInvalidRuleType
	}
	switch rule.TargetType {
	case models.TargetTypeIP:
		if net.ParseIP(rule.TargetValue) == nil {
			return fmt.Errorf("%w: %s", ErrInvalidTarget, rule.TargetValue)
		}
	case models.TargetTypeCIDR:
		if _, _, err := net.ParseCIDR(rule.TargetValue); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTarget, rule.TargetValue)
		}
	default:
		return ErrInvalidTargetType
	}
	if rule.Scope == "" {
		rule.Scope = models.RuleScopeAll
	}
	switch rule.Scope {
	case models.RuleScopeAPI, models.RuleScopeLogin, models.RuleScopeAll:
	default:
		return ErrInvalidRuleScope
	}
	if rule.Status == "" {
		rule.Status = models.RuleStatusActive
	}
	if rule.Status != models.RuleStatusActive && rule.Status != models.RuleStatusInactive {
		return ErrInvalidRuleStatus
	}
	return nil
}

// ruleMatchesIP checks a rule target against an IP: exact match for ip
// targets, network containment for cidr targets.
func ruleMatchesIP(rule *models.SecurityIPRule, ip net.IP) bool {
	switch rule.TargetType {
	case models.TargetTypeIP:
		target := net.ParseIP(rule.TargetValue)
		return target != nil && target.Equal(ip)
	case models.TargetTypeCIDR:
		_, ipNet, err := net.ParseCIDR(rule.TargetValue)
		return err == nil && ipNet.Contains(ip)
	}
	return false
}
