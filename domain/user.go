package domain

import "time"

// Role values assigned by the Novunt backend.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// User is the profile snapshot held client-side next to the token pair.
// It mirrors the shape returned by the backend's login and profile endpoints.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	Is2FAEnabled    bool      `json:"is2FAEnabled"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

// HasRole reports whether the user holds any of the given roles.
func (u *User) HasRole(roles ...string) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds an administrative role.
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin, RoleSuperAdmin)
}
