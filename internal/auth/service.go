package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/contacts-api/internal/logging"
	"github.com/redmonkez12/contacts-api/internal/user"
)

// emailSendTimeout bounds the fire-and-forget email goroutines
const emailSendTimeout = 30 * time.Second

var (
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrEmailRequired            = errors.New("email is required")
	ErrUsernameRequired         = errors.New("username is required")
	ErrPasswordRequired         = errors.New("password is required")
	ErrPasswordTooShort         = errors.New("password must be at least 8 characters")
	ErrInvalidEmailFormat       = errors.New("invalid email format")
	ErrEmailTaken               = errors.New("email or username already registered")
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	ErrAlreadyConfirmed         = errors.New("email is already confirmed")
	ErrUserNotFound             = errors.New("user not found")
	ErrInvalidResetToken        = errors.New("invalid or expired reset token")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrAdminOnly                = errors.New("only admins can update the avatar")
	ErrNotAnImage               = errors.New("file is not an image")
	ErrUploadFailed             = errors.New("avatar upload failed")
)

// Tokens is the access/refresh pair returned by Login and Refresh
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service handles authentication business logic
type Service struct {
	users              UserStore
	sessions           SessionStore
	tokens             *JWTService
	emailService       EmailService
	uploader           Uploader
	logger             *logging.Logger
	accessDuration     time.Duration
	resetTokenDuration time.Duration
}

func NewService(
	users UserStore,
	sessions SessionStore,
	tokens *JWTService,
	emailService EmailService,
	uploader Uploader,
	logger *logging.Logger,
	accessDuration time.Duration,
	resetTokenDuration time.Duration,
) *Service {
	return &Service{
		users:              users,
		sessions:           sessions,
		tokens:             tokens,
		emailService:       emailService,
		uploader:           uploader,
		logger:             logger,
		accessDuration:     accessDuration,
		resetTokenDuration: resetTokenDuration,
	}
}

// Signup creates a new unconfirmed user account and sends a verification email
func (s *Service) Signup(ctx context.Context, username, email, password string) (*user.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(email) > 254 {
		return nil, ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Single-use token embedded in the verification link
	verificationToken := uuid.NewString()

	newUser, err := s.users.Create(ctx, username, email, passwordHash, verificationToken)
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Send verification email in a goroutine (non-blocking). Delivery failure
	// does not roll back user creation; the user can request a resend.
	go func() {
		emailCtx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()
		if err := s.emailService.SendVerificationEmail(emailCtx, email, verificationToken); err != nil {
			s.logger.Warn("failed to send verification email", "email", email, "error", err)
		}
	}()

	return newUser, nil
}

// VerifyEmail confirms a user's email using the single-use verification token.
// A redeemed token never matches again because confirmation clears it.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	existingUser, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("failed to find user by token: %w", err)
	}

	if err := s.users.ConfirmEmail(ctx, existingUser.ID); err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}

	return nil
}

// ResendVerification issues a fresh verification token for an unconfirmed
// user and mails a new link. The previous token stops matching, so at most
// one verification link is live per user.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if existingUser.Confirmed {
		return ErrAlreadyConfirmed
	}

	verificationToken := uuid.NewString()
	if err := s.users.SetVerificationToken(ctx, existingUser.ID, verificationToken); err != nil {
		return fmt.Errorf("failed to set verification token: %w", err)
	}

	go func() {
		emailCtx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()
		if err := s.emailService.SendVerificationEmail(emailCtx, email, verificationToken); err != nil {
			s.logger.Warn("failed to resend verification email", "email", email, "error", err)
		}
	}()

	return nil
}

// Login authenticates a user and returns an access/refresh token pair.
// Unknown email and wrong password yield the same error so callers cannot
// probe which accounts exist.
func (s *Service) Login(ctx context.Context, email, password string) (*Tokens, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !VerifyPassword(existingUser.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(existingUser.Email)
	if err != nil {
		return nil, err
	}

	// Cache writes are best-effort side effects after the authoritative
	// read: a cache failure never fails the login.
	if err := s.sessions.StoreRefreshToken(ctx, existingUser.Email, tokens.RefreshToken, s.tokens.RefreshDuration()); err != nil {
		s.logger.Warn("failed to cache refresh token", "email", email, "error", err)
	}
	if err := s.sessions.StoreProfile(ctx, profileFromUser(existingUser)); err != nil {
		s.logger.Warn("failed to cache user profile", "email", email, "error", err)
	}

	return tokens, nil
}

// Refresh exchanges a valid refresh token for a fresh access/refresh pair.
// Refresh tokens are one-time-use: the cache entry is rotated atomically, so
// of two concurrent calls with the same token exactly one succeeds and the
// old token is dead afterwards even if its expiry has not passed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	tokens, err := s.issueTokens(claims.Email)
	if err != nil {
		return nil, err
	}

	rotated, err := s.sessions.RotateRefreshToken(ctx, claims.Email, refreshToken, tokens.RefreshToken, s.tokens.RefreshDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if !rotated {
		return nil, ErrUnauthorized
	}

	return tokens, nil
}

// Logout revokes the active refresh token for the token's subject
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		// Nothing to revoke for a token we cannot attribute
		return nil
	}

	if err := s.sessions.DeleteRefreshToken(ctx, claims.Email); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return nil
}

// RequestPasswordReset stores a single-use reset token on the user and mails
// a reset link. A newer request supersedes any pending one.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	token := uuid.NewString()
	if err := s.users.SetResetToken(ctx, existingUser.ID, token, time.Now()); err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}

	go func() {
		emailCtx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()
		if err := s.emailService.SendPasswordResetEmail(emailCtx, email, token); err != nil {
			s.logger.Warn("failed to send password reset email", "email", email, "error", err)
		}
	}()

	return nil
}

// ResetPassword replaces the password using a valid, unexpired reset token
// and ends the reset-pending state. The user's cached refresh token is
// dropped so stolen sessions die with the old password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	existingUser, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to get user by reset token: %w", err)
	}

	if existingUser.ResetRequestedAt == nil ||
		time.Since(*existingUser.ResetRequestedAt) > s.resetTokenDuration {
		return ErrInvalidResetToken
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, existingUser.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.sessions.DeleteRefreshToken(ctx, existingUser.Email); err != nil {
		s.logger.Warn("failed to revoke refresh token after password reset", "error", err)
	}

	return nil
}

// CurrentUser resolves the user behind an access token through the session
// cache: a hit is served from the snapshot, a miss falls back to the
// credential store and backfills the cache.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	profile, err := s.sessions.GetProfile(ctx, claims.Email)
	if err == nil {
		return userFromProfile(profile), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("session cache read failed, falling back to database", "error", err)
	}

	existingUser, err := s.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Self-heal the cache so the next request is a hit
	if err := s.sessions.StoreProfile(ctx, profileFromUser(existingUser)); err != nil {
		s.logger.Warn("failed to backfill user profile", "email", claims.Email, "error", err)
	}

	return existingUser, nil
}

// UpdateAvatar uploads a new avatar image for an admin user, persists the
// public URL and refreshes the cached snapshot so reads see it immediately
func (s *Service) UpdateAvatar(ctx context.Context, currentUser *user.User, data []byte) (string, error) {
	if !currentUser.IsAdmin() {
		return "", ErrAdminOnly
	}

	contentType := http.DetectContentType(data)
	if len(data) == 0 || !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotAnImage
	}

	avatarURL, err := s.uploader.Upload(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if err := s.users.UpdateAvatar(ctx, currentUser.ID, avatarURL); err != nil {
		return "", fmt.Errorf("failed to persist avatar: %w", err)
	}

	currentUser.Avatar = &avatarURL
	if err := s.sessions.StoreProfile(ctx, profileFromUser(currentUser)); err != nil {
		s.logger.Warn("failed to refresh cached profile after avatar update", "email", currentUser.Email, "error", err)
	}

	return avatarURL, nil
}

func (s *Service) issueTokens(email string) (*Tokens, error) {
	accessToken, err := s.tokens.CreateAccessToken(email)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokens.CreateRefreshToken(email)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessDuration.Seconds()),
	}, nil
}

func profileFromUser(u *user.User) *Profile {
	return &Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Role:      u.Role,
		Confirmed: u.Confirmed,
	}
}

func userFromProfile(p *Profile) *user.User {
	return &user.User{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		Avatar:    p.Avatar,
		Role:      p.Role,
		Confirmed: p.Confirmed,
	}
}
