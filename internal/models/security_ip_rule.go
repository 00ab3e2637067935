package models

import (
	"time"
)

// Rule types, target types, scopes and statuses for SecurityIPRule.
// Lower Priority wins when several rules match the same address.
const (
	RuleTypeAllow = "allow"
	RuleTypeDeny  = "deny"

	TargetTypeIP   = "ip"
	TargetTypeCIDR = "cidr"

	RuleScopeAPI   = "api"
	RuleScopeLogin = "login"
	RuleScopeAll   = "all"

	RuleStatusActive   = "active"
	RuleStatusInactive = "inactive"
)

// SecurityIPRule is an administrator-managed allow/deny rule keyed by IP or
// CIDR. The decision path only ever reads rules; all mutation happens through
// the admin API.
type SecurityIPRule struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	UUID        string     `json:"uuid" gorm:"uniqueIndex"`
	RuleType    string     `json:"rule_type"`   // "allow" or "deny"
	TargetType  string     `json:"target_type"` // "ip" or "cidr"
	TargetValue string     `json:"target_value" gorm:"index"`
	Scope       string     `json:"scope" gorm:"default:'all'"` // "api", "login", "all"
	Status      string     `json:"status" gorm:"default:'active'"`
	Priority    int        `json:"priority" gorm:"default:100"`
	Reason      string     `json:"reason"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedBy   uint       `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the rule has an expiry in the past. Expired rules
// are treated as absent without requiring deletion.
func (r *SecurityIPRule) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// AppliesTo reports whether the rule's scope covers the request scope.
func (r *SecurityIPRule) AppliesTo(scope string) bool {
	return r.Scope == RuleScopeAll || r.Scope == scope
}
