package rbac

import "strings"

// Role is the portal role claim. Keep these stable; they are part of the backend contract.
type Role string

const (
	// RoleAgent is a partner/agent submitting referrals.
	RoleAgent Role = "AZOR"
	// RoleAdmin administers users, referrals, announcements and audit.
	RoleAdmin Role = "COVENANT"
)

// ParseRole accepts exactly the backend role names (case-insensitive, trimmed).
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAgent:
		return RoleAgent, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool { return r == RoleAgent || r == RoleAdmin }

func (r Role) String() string { return string(r) }

func IsAdmin(r Role) bool { return r == RoleAdmin }
