package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/contacts-api/internal/logging"
	"github.com/redmonkez12/contacts-api/internal/user"
)

// fakeUserStore is an in-memory UserStore keyed by email
type fakeUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*user.User)}
}

func (f *fakeUserStore) Create(_ context.Context, username, email, passwordHash, verificationToken string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.users[email]; exists {
		return nil, user.ErrDuplicate
	}
	for _, u := range f.users {
		if u.Username == username {
			return nil, user.ErrDuplicate
		}
	}

	f.nextID++
	token := verificationToken
	u := &user.User{
		ID:                f.nextID,
		Username:          username,
		Email:             email,
		PasswordHash:      passwordHash,
		VerificationToken: &token,
		Role:              user.RoleUser,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	f.users[email] = u

	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) GetByVerificationToken(_ context.Context, token string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) ConfirmEmail(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID == userID {
			u.Confirmed = true
			u.VerificationToken = nil
			return nil
		}
	}
	return user.ErrNotFound
}

func (f *fakeUserStore) SetVerificationToken(_ context.Context, userID int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID == userID {
			u.VerificationToken = &token
			return nil
		}
	}
	return user.ErrNotFound
}

func (f *fakeUserStore) SetResetToken(_ context.Context, userID int64, token string, requestedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID == userID {
			u.ResetToken = &token
			u.ResetRequestedAt = &requestedAt
			return nil
		}
	}
	return user.ErrNotFound
}

func (f *fakeUserStore) GetByResetToken(_ context.Context, token string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID == userID {
			u.PasswordHash = passwordHash
			u.ResetToken = nil
			u.ResetRequestedAt = nil
			return nil
		}
	}
	return user.ErrNotFound
}

func (f *fakeUserStore) UpdateAvatar(_ context.Context, userID int64, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.ID == userID {
			url := avatarURL
			u.Avatar = &url
			return nil
		}
	}
	return user.ErrNotFound
}

// fakeSessionStore is an in-memory SessionStore. Rotation is guarded by the
// same mutex as the reads, matching the atomicity of the Lua script.
type fakeSessionStore struct {
	mu            sync.Mutex
	profiles      map[string]*Profile
	refreshTokens map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		profiles:      make(map[string]*Profile),
		refreshTokens: make(map[string]string),
	}
}

func (f *fakeSessionStore) StoreProfile(_ context.Context, profile *Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *profile
	f.profiles[profile.Email] = &copied
	return nil
}

func (f *fakeSessionStore) GetProfile(_ context.Context, email string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.profiles[email]
	if !ok {
		return nil, ErrCacheMiss
	}
	copied := *p
	return &copied, nil
}

func (f *fakeSessionStore) DeleteProfile(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.profiles, email)
	return nil
}

func (f *fakeSessionStore) StoreRefreshToken(_ context.Context, email, token string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshTokens[email] = token
	return nil
}

func (f *fakeSessionStore) RotateRefreshToken(_ context.Context, email, presented, next string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refreshTokens[email] != presented {
		return false, nil
	}
	f.refreshTokens[email] = next
	return true, nil
}

func (f *fakeSessionStore) DeleteRefreshToken(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.refreshTokens, email)
	return nil
}

// fakeEmailService delivers onto channels so tests can wait for the
// fire-and-forget sends
type fakeEmailService struct {
	verificationSent chan string
	resetSent        chan string
}

func newFakeEmailService() *fakeEmailService {
	return &fakeEmailService{
		verificationSent: make(chan string, 8),
		resetSent:        make(chan string, 8),
	}
}

func (f *fakeEmailService) SendVerificationEmail(_ context.Context, _, token string) error {
	f.verificationSent <- token
	return nil
}

func (f *fakeEmailService) SendPasswordResetEmail(_ context.Context, _, token string) error {
	f.resetSent <- token
	return nil
}

type fakeUploader struct {
	mu          sync.Mutex
	uploaded    []byte
	contentType string
}

func (f *fakeUploader) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploaded = data
	f.contentType = contentType
	return "https://cdn.example.com/avatars/test.png", nil
}

type testEnv struct {
	service  *Service
	users    *fakeUserStore
	sessions *fakeSessionStore
	emails   *fakeEmailService
	uploader *fakeUploader
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		users:    newFakeUserStore(),
		sessions: newFakeSessionStore(),
		emails:   newFakeEmailService(),
		uploader: &fakeUploader{},
	}
	env.service = NewService(
		env.users,
		env.sessions,
		tokens,
		env.emails,
		env.uploader,
		logging.NewLogger(true),
		15*time.Minute,
		30*time.Minute,
	)
	return env
}

func (e *testEnv) signupAndLogin(t *testing.T, email, password string) *Tokens {
	t.Helper()

	ctx := context.Background()
	_, err := e.service.Signup(ctx, "tester", email, password)
	require.NoError(t, err)

	tokens, err := e.service.Login(ctx, email, password)
	require.NoError(t, err)
	return tokens
}

func waitForToken(t *testing.T, ch chan string) string {
	t.Helper()

	select {
	case token := <-ch:
		return token
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for email send")
		return ""
	}
}

// pngBytes is a minimal PNG signature, enough for content sniffing
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestSignup(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	created, err := env.service.Signup(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.False(t, created.Confirmed)
	assert.NotEqual(t, "password123", created.PasswordHash)
	assert.True(t, VerifyPassword(created.PasswordHash, "password123"))

	sentToken := waitForToken(t, env.emails.verificationSent)
	require.NotNil(t, created.VerificationToken)
	assert.Equal(t, *created.VerificationToken, sentToken)
}

func TestSignup_Validation(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
		wantErr  error
	}{
		{"missing username", "", "a@example.com", "password123", ErrUsernameRequired},
		{"missing email", "alice", "", "password123", ErrEmailRequired},
		{"bad email", "alice", "not-an-email", "password123", ErrInvalidEmailFormat},
		{"missing password", "alice", "a@example.com", "", ErrPasswordRequired},
		{"short password", "alice", "a@example.com", "short", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Signup(ctx, tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = env.service.Signup(ctx, "alice2", "alice@example.com", "password123")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	created, err := env.service.Signup(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, created.VerificationToken)
	token := *created.VerificationToken

	require.NoError(t, env.service.VerifyEmail(ctx, token))

	confirmed, err := env.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)

	// Confirmation clears the token, so redeeming it again fails
	err = env.service.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	t.Parallel()

	env := newTestService(t)

	err := env.service.VerifyEmail(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

func TestResendVerification(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	created, err := env.service.Signup(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, created.VerificationToken)
	oldToken := *created.VerificationToken
	waitForToken(t, env.emails.verificationSent)

	require.NoError(t, env.service.ResendVerification(ctx, "alice@example.com"))
	newToken := waitForToken(t, env.emails.verificationSent)
	assert.NotEqual(t, oldToken, newToken)

	// The superseded link is dead, the fresh one works
	err = env.service.VerifyEmail(ctx, oldToken)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
	require.NoError(t, env.service.VerifyEmail(ctx, newToken))

	// Once confirmed, resending makes no sense
	err = env.service.ResendVerification(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestResendVerification_UnknownEmail(t *testing.T) {
	t.Parallel()

	env := newTestService(t)

	err := env.service.ResendVerification(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")

	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), tokens.ExpiresIn)

	// Session state is populated as a side effect
	assert.Equal(t, tokens.RefreshToken, env.sessions.refreshTokens["alice@example.com"])
	profile, err := env.sessions.GetProfile(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", profile.Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	// Wrong password and unknown email are indistinguishable to the caller
	_, err = env.service.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.service.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_RotatesToken(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")

	rotated, err := env.service.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old token was consumed by the rotation
	_, err = env.service.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The new one works
	_, err = env.service.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")

	// All callers race with the same token; the rotation CAS must let
	// exactly one through and 401 the rest
	const callers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.Refresh(ctx, tokens.RefreshToken)
			if err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrUnauthorized)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
}

func TestRefresh_InvalidToken(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	_, err := env.service.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.service.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")

	require.NoError(t, env.service.Logout(ctx, tokens.RefreshToken))

	_, err := env.service.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	t.Parallel()

	env := newTestService(t)

	err := env.service.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResetPassword(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")

	require.NoError(t, env.service.RequestPasswordReset(ctx, "alice@example.com"))
	resetToken := waitForToken(t, env.emails.resetSent)

	require.NoError(t, env.service.ResetPassword(ctx, resetToken, "new-password-456"))

	// Old password is dead, new one works
	_, err := env.service.Login(ctx, "alice@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.service.Login(ctx, "alice@example.com", "new-password-456")
	require.NoError(t, err)

	// The session issued before the reset is revoked
	_, err = env.service.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The reset token is single-use
	err = env.service.ResetPassword(ctx, resetToken, "another-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_Expired(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	env.signupAndLogin(t, "alice@example.com", "password123")

	require.NoError(t, env.service.RequestPasswordReset(ctx, "alice@example.com"))
	resetToken := waitForToken(t, env.emails.resetSent)

	// Age the request past the reset window
	env.users.mu.Lock()
	stale := time.Now().Add(-time.Hour)
	env.users.users["alice@example.com"].ResetRequestedAt = &stale
	env.users.mu.Unlock()

	err := env.service.ResetPassword(ctx, resetToken, "new-password-456")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	t.Parallel()

	env := newTestService(t)

	err := env.service.ResetPassword(context.Background(), "no-such-token", "new-password-456")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestCurrentUser_CacheHit(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")

	// Rename the user behind the cache's back; a hit serves the snapshot
	env.users.mu.Lock()
	env.users.users["alice@example.com"].Username = "renamed"
	env.users.mu.Unlock()

	current, err := env.service.CurrentUser(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tester", current.Username)
}

func TestCurrentUser_CacheMissBackfill(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	tokens := env.signupAndLogin(t, "alice@example.com", "password123")
	require.NoError(t, env.sessions.DeleteProfile(ctx, "alice@example.com"))

	current, err := env.service.CurrentUser(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", current.Email)

	// The miss repopulated the cache
	profile, err := env.sessions.GetProfile(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", profile.Email)
}

func TestCurrentUser_InvalidToken(t *testing.T) {
	t.Parallel()

	env := newTestService(t)

	_, err := env.service.CurrentUser(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateAvatar(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	env.signupAndLogin(t, "admin@example.com", "password123")
	env.users.mu.Lock()
	env.users.users["admin@example.com"].Role = user.RoleAdmin
	env.users.mu.Unlock()

	admin, err := env.users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)

	url, err := env.service.UpdateAvatar(ctx, admin, pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/test.png", url)
	assert.Equal(t, "image/png", env.uploader.contentType)

	stored, err := env.users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.Avatar)
	assert.Equal(t, url, *stored.Avatar)

	// The cached snapshot reflects the new avatar
	profile, err := env.sessions.GetProfile(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, profile.Avatar)
	assert.Equal(t, url, *profile.Avatar)
}

func TestUpdateAvatar_AdminOnly(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	env.signupAndLogin(t, "alice@example.com", "password123")
	regular, err := env.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = env.service.UpdateAvatar(ctx, regular, pngBytes)
	assert.ErrorIs(t, err, ErrAdminOnly)
}

func TestUpdateAvatar_NotAnImage(t *testing.T) {
	t.Parallel()

	env := newTestService(t)
	ctx := context.Background()

	env.signupAndLogin(t, "admin@example.com", "password123")
	env.users.mu.Lock()
	env.users.users["admin@example.com"].Role = user.RoleAdmin
	env.users.mu.Unlock()

	admin, err := env.users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"plain text", []byte("just some text, definitely not pixels")},
		{"html", []byte("<html><body>nope</body></html>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.UpdateAvatar(ctx, admin, tt.data)
			assert.ErrorIs(t, err, ErrNotAnImage)
		})
	}

	assert.Nil(t, env.uploader.uploaded)
}
