// internal/models/identity.go
package models

import "time"

// Role is the role a profile resolves to. An Identity with no resolved
// profile is authenticated but not yet ready.
type Role string

const (
	RoleInvestor Role = "investor"
	RoleLender   Role = "lender"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleInvestor, RoleLender, RoleAdmin:
		return true
	}
	return false
}

// Identity is an authenticated principal. It exists from successful
// sign-in/sign-up until sign-out.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is the role profile resolved for an identity.
type Profile struct {
	IdentityID string    `json:"identityId" db:"identity_id"`
	Role       Role      `json:"role" db:"role"`
	Name       string    `json:"name,omitempty" db:"name"`
	Phone      string    `json:"phone,omitempty" db:"phone"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}
