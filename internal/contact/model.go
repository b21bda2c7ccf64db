package contact

import (
	"time"
)

// Contact is a per-user address-book entry. Every contact belongs to exactly
// one user and is invisible to everyone else.
type Contact struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Birthday       time.Time `json:"birthday"`
	AdditionalData *string   `json:"additional_data"`
	CreatedAt      time.Time `json:"created_at"`
	UserID         int64     `json:"-"`
}

// CreateInput carries the fields for a new contact
type CreateInput struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Birthday       time.Time
	AdditionalData *string
}

// UpdateInput is a partial update: only non-nil fields change
type UpdateInput struct {
	FirstName      *string
	LastName       *string
	Email          *string
	Phone          *string
	Birthday       *time.Time
	AdditionalData *string
}

// Empty reports whether the update would change nothing
func (u *UpdateInput) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.Phone == nil && u.Birthday == nil && u.AdditionalData == nil
}
