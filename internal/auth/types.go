package auth

import "errors"

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleViewer can read rooms, schedules, history, and entity state.
	// Wall dashboards and read-only integrations use this tier.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally override room values and trigger
	// re-evaluation. Household members use this tier.
	RoleOperator Role = "operator"

	// RoleAdmin has full control including the audit log. Intended for
	// whoever maintains the schedule configuration.
	RoleAdmin Role = "admin"
)

// roleLevel orders roles for minimum-tier checks. Higher levels include
// every permission below them.
var roleLevel = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// Valid returns true if the role is a known tier.
func (r Role) Valid() bool {
	_, ok := roleLevel[r]
	return ok
}

// AtLeast returns true if the role grants at least the given tier.
// Unknown roles grant nothing.
func (r Role) AtLeast(minimum Role) bool {
	return roleLevel[r] >= roleLevel[minimum] && roleLevel[r] > 0
}

// User is the authenticated identity attached to a request.
type User struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	// ErrInvalidCredentials covers unknown usernames and wrong
	// passwords alike, so login failures don't reveal which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid indicates a token that failed signature, expiry,
	// or claim validation.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrForbidden indicates an authenticated user lacking the
	// required role tier.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrInvalidRole indicates a configured role outside the known tiers.
	ErrInvalidRole = errors.New("invalid role")

	// ErrDuplicateUser indicates the same username configured twice.
	ErrDuplicateUser = errors.New("duplicate username")
)
