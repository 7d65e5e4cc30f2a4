package model

import (
	"fmt"
	"time"
)

// Role tags the three principal collections. The set is closed: every
// switch over Role must enumerate all three constants and fail on
// anything else.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParseRole maps a wire-level role tag onto the closed set. Unknown
// tags are an error, never a default.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleInstructor:
		return RoleInstructor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unresolvable role %q", raw)
	}
}

func (r Role) String() string { return string(r) }

// Admin levels. Superadmin bypasses named permission checks.
const (
	AdminLevelStandard = "admin"
	AdminLevelSuper    = "superadmin"
)

// Principal is one identity record out of the students, instructors or
// admins collection. The three collections share every session-relevant
// field; AdminLevel and Permissions are populated for admins only.
type Principal struct {
	ID           string
	Role         Role
	Email        string
	PasswordHash *string

	// RefreshToken is the single active refresh token, or nil when the
	// principal has no session. Mutated only by whole-value overwrite.
	RefreshToken *string

	EmailVerified         bool
	VerificationToken     *string
	VerificationExpiresAt *time.Time

	AdminLevel  string
	Permissions []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether password login is possible. Principals
// created through the external identity provider carry no hash.
func (p Principal) HasPassword() bool {
	return p.PasswordHash != nil && *p.PasswordHash != ""
}

// HasPermission checks the stored permission set. Superadmins pass
// every check.
func (p Principal) HasPermission(name string) bool {
	if p.AdminLevel == AdminLevelSuper {
		return true
	}
	for _, perm := range p.Permissions {
		if perm == name {
			return true
		}
	}
	return false
}

// TokenPair is one issued access/refresh pair. It is also the value
// cached under a consumed refresh token during rotation.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session identifies a logged-in browser for the dashboard.
type Session struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email"`
}
