package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer may read state but not act on covers.
	RoleViewer Role = "viewer"

	// RoleOperator may set overrides, activate shading and recalibrate.
	RoleOperator Role = "operator"

	// RoleAdmin may additionally change entry options.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Domain-specific errors for the auth package.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrNoSecret     = errors.New("jwt secret is not configured")
	ErrForbidden    = errors.New("insufficient permissions")
)
