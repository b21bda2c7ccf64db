package user

import (
	"time"
)

// Roles a user can hold. Only admins may change their avatar.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"` // Never expose password hash in JSON
	Confirmed         bool       `json:"confirmed"`
	Avatar            *string    `json:"avatar"`
	VerificationToken *string    `json:"-"`
	ResetToken        *string    `json:"-"`
	ResetRequestedAt  *time.Time `json:"-"`
	Role              string     `json:"role"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
