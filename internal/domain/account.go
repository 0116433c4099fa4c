package domain

import "time"

// Role enumerates directory roles.
type Role string

const (
	RoleUser       Role = "USER"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

// ValidRole reports whether the value is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

// Account is a directory entry for an authenticated person.
type Account struct {
	UID          string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         Role
	Sector       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Caller identifies the authenticated principal behind an operation.
// Every mutating service call takes one explicitly; there is no ambient
// session state in the core.
type Caller struct {
	UserID      string
	Username    string
	DisplayName string
	Role        Role
	Sector      *string
}

// CallerFromAccount builds the caller value threaded through services.
func CallerFromAccount(acc *Account) Caller {
	return Caller{
		UserID:      acc.UID,
		Username:    acc.Username,
		DisplayName: acc.DisplayName,
		Role:        acc.Role,
		Sector:      acc.Sector,
	}
}
