package domain

import "strings"

// Role is the closed set of user roles. Raw strings from the backend are
// normalized once, at ingestion, with ParseRole.
type Role int

const (
	RoleClient Role = iota
	RoleProvider
	RoleAdmin
)

// ParseRole normalizes a backend role string. Unknown or empty values are
// treated as Client, the least privileged role.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator":
		return RoleAdmin
	case "provider", "prestador", "professional":
		return RoleProvider
	default:
		return RoleClient
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleProvider:
		return "provider"
	default:
		return "client"
	}
}

// MarshalText keeps the wire form a string.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts any role string and normalizes it.
func (r *Role) UnmarshalText(b []byte) error {
	*r = ParseRole(string(b))
	return nil
}

// UserProfile is the profiles row created at sign-up.
type UserProfile struct {
	ID       string `json:"id"`
	FullName string `json:"full_name" validate:"required,max=120"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty"`
	Role     Role   `json:"role"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin reports whether the caller is an administrator.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsProvider reports whether the caller is a provider.
func (p Principal) IsProvider() bool { return p.Role == RoleProvider }
