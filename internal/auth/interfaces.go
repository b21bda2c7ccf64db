package auth

import (
	"context"
	"time"

	"github.com/redmonkez12/contacts-api/internal/user"
)

// UserStore is the credential store the auth service orchestrates over.
// *user.Repository is the production implementation.
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash, verificationToken string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*user.User, error)
	ConfirmEmail(ctx context.Context, userID int64) error
	SetVerificationToken(ctx context.Context, userID int64, token string) error
	SetResetToken(ctx context.Context, userID int64, token string, requestedAt time.Time) error
	GetByResetToken(ctx context.Context, token string) (*user.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	UpdateAvatar(ctx context.Context, userID int64, avatarURL string) error
}

// SessionStore holds the derived session state: profile snapshots and the
// single active refresh token per user. *SessionCache is the production
// implementation.
type SessionStore interface {
	StoreProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, email string) (*Profile, error)
	DeleteProfile(ctx context.Context, email string) error
	StoreRefreshToken(ctx context.Context, email, token string, ttl time.Duration) error
	RotateRefreshToken(ctx context.Context, email, presented, next string, ttl time.Duration) (bool, error)
	DeleteRefreshToken(ctx context.Context, email string) error
}

// EmailService defines the interface for email operations
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
}

// Uploader stores avatar bytes in an external object store and returns
// the public URL they are served from
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}
