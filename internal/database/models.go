package database

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the persisted user record
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                int64      `bun:"id,pk,autoincrement"`
	Username          string     `bun:"username,notnull,unique"`
	Email             string     `bun:"email,notnull,unique"`
	PasswordHash      string     `bun:"password_hash,notnull"`
	Confirmed         bool       `bun:"confirmed,notnull,default:false"`
	Avatar            *string    `bun:"avatar"`
	VerificationToken *string    `bun:"verification_token"`
	ResetToken        *string    `bun:"reset_token"`
	ResetRequestedAt  *time.Time `bun:"reset_requested_at"`
	Role              string     `bun:"role,notnull,default:'user'"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Contact is a per-user address-book entry
type Contact struct {
	bun.BaseModel `bun:"table:contacts,alias:c"`

	ID             int64     `bun:"id,pk,autoincrement"`
	FirstName      string    `bun:"first_name,notnull"`
	LastName       string    `bun:"last_name,notnull"`
	Email          string    `bun:"email,notnull"`
	Phone          string    `bun:"phone,notnull"`
	Birthday       time.Time `bun:"birthday,notnull"`
	AdditionalData *string   `bun:"additional_data"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UserID         int64     `bun:"user_id,notnull"`
}
