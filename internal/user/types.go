package user

import "time"

// Role is the account role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// NoOverride means the limit defers to the global site configuration.
const NoOverride = -1

// User is an account as seen by the fleet core.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Role              Role      `json:"role"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	IsActive          bool      `json:"isActive"`
	MaxDevice         int       `json:"maxDevice"`
	MaxFencePerDevice int       `json:"maxFencePerDevice"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// FullName joins first and last name, skipping empty parts.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
