package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeAuditRead дает доступ к чтению аудита.
const ScopeAuditRead = "audit.read"

// ScopeAuditAdmin дает просмотр и повтор очереди недоставленных.
const ScopeAuditAdmin = "audit.admin"

// AdminClaims выдаются операторам, которые смотрят журнал аудита.
type AdminClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "audit.read": true
	jwt.RegisteredClaims
}

func (c *AdminClaims) HasScope(scope string) bool {
	return c != nil && c.Scopes[scope]
}
