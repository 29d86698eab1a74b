package auth

import "time"

type Role string

const (
	// RoleMember covers complainants, respondents, voters, and arbitrators.
	RoleMember Role = "member"
	// RoleAdmin is granted to the system owner account.
	RoleAdmin Role = "admin"
)

// Account is the domain representation of a principal. Principals are
// referenced throughout the dispute engine by their ID string; this package
// is the only place that knows about credentials.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// LoginRequest contains account login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
