package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/contacts-api/internal/logging"
	"github.com/redmonkez12/contacts-api/internal/user"
)

// avatarUploadRequest builds a multipart request carrying an image of the
// given size under the "file" field, authenticated as the given user
func avatarUploadRequest(t *testing.T, currentUser *user.User, size int) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "avatar.png")
	require.NoError(t, err)

	data := make([]byte, size)
	copy(data, pngBytes)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/auth/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ctx := context.WithValue(req.Context(), CurrentUserContextKey, currentUser)
	return req.WithContext(ctx)
}

func newAvatarTestHandler(t *testing.T) (*Handler, *testEnv, *user.User) {
	t.Helper()

	env := newTestService(t)
	ctx := context.Background()

	env.signupAndLogin(t, "admin@example.com", "password123")
	env.users.mu.Lock()
	env.users.users["admin@example.com"].Role = user.RoleAdmin
	env.users.mu.Unlock()

	admin, err := env.users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)

	// The avatar route never consults the rate limiter
	handler := NewHandler(env.service, nil, logging.NewLogger(true), false, 15*time.Minute, 7*24*time.Hour)
	return handler, env, admin
}

func TestUpdateAvatarHandler(t *testing.T) {
	t.Parallel()

	handler, env, admin := newAvatarTestHandler(t)

	rec := httptest.NewRecorder()
	handler.UpdateAvatar(rec, avatarUploadRequest(t, admin, 32<<10))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvatarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AvatarURL)
	assert.Len(t, env.uploader.uploaded, 32<<10)
}

func TestUpdateAvatarHandler_TooLarge(t *testing.T) {
	t.Parallel()

	handler, env, admin := newAvatarTestHandler(t)

	// One byte over the limit must be rejected, never truncated and stored
	rec := httptest.NewRecorder()
	handler.UpdateAvatar(rec, avatarUploadRequest(t, admin, maxAvatarSize+1))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, env.uploader.uploaded)
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr fallback",
			remoteAddr: "192.0.2.10:54321",
			want:       "192.0.2.10",
		},
		{
			name:       "x-forwarded-for wins",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip when no forwarded-for",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
