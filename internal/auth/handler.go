package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/contacts-api/internal/httputil"
	"github.com/redmonkez12/contacts-api/internal/logging"
	"github.com/redmonkez12/contacts-api/internal/ratelimit"
)

// maxAvatarSize bounds avatar uploads (5 MB)
const maxAvatarSize = 5 << 20

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service         *Service
	rateLimiter     *ratelimit.Limiter
	logger          *logging.Logger
	isProduction    bool
	accessDuration  time.Duration
	refreshDuration time.Duration
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, logger *logging.Logger, isProduction bool, accessDuration, refreshDuration time.Duration) *Handler {
	return &Handler{
		service:         service,
		rateLimiter:     rateLimiter,
		logger:          logger,
		isProduction:    isProduction,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
	}
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RequestResetRequest represents the password reset request body
type RequestResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation body
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// UserResponse represents a user's public fields in API responses
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// MeResponse is the full profile returned by /auth/me
type MeResponse struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	Avatar    *string `json:"avatar"`
	Confirmed bool    `json:"confirmed"`
}

// AvatarResponse is returned after a successful avatar upload
type AvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// Signup handles user registration
// @Summary      Register a new user
// @Description  Create a new user account. A verification email will be sent.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignupRequest true "Signup credentials"
// @Success      201 {object} UserResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, "signup")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for signup", "ip", ip)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, "signup"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	newUser, err := h.service.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			logger.Warn("signup failed: email already exists")
			httputil.RespondErrorWithCode(w, "email already registered", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrUsernameRequired):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeUsernameRequired, http.StatusBadRequest)
		case errors.Is(err, ErrEmailRequired):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidEmailFormat):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		default:
			logger.Error("signup failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to register user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	httputil.RespondJSON(w, UserResponse{
		ID:       newUser.ID,
		Username: newUser.Username,
		Email:    newUser.Email,
	}, http.StatusCreated)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate user and receive access and refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} Tokens
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, "login")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for login", "ip", ip)
		httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, "login"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	tokens, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			httputil.RespondErrorWithCode(w, "invalid credentials", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in successfully")

	SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
	httputil.RespondJSON(w, tokens, http.StatusOK)
}

// Refresh handles access token refresh
// @Summary      Refresh access token
// @Description  Exchange the refresh token cookie for a new token pair. The old refresh token is invalidated.
// @Tags         auth
// @Produce      json
// @Success      200 {object} Tokens
// @Failure      401 {object} httputil.ErrorResponse "Missing, invalid or already rotated refresh token"
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	refreshToken, err := GetRefreshTokenFromCookie(r)
	if err != nil || refreshToken == "" {
		logger.Warn("refresh token cookie missing")
		httputil.RespondErrorWithCode(w, "refresh token required", httputil.CodeRefreshTokenRequired, http.StatusUnauthorized)
		return
	}
	refreshToken = strings.TrimSpace(refreshToken)

	tokens, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			logger.Warn("token refresh failed: invalid or rotated token")
			httputil.RespondErrorWithCode(w, "invalid refresh token", httputil.CodeInvalidRefreshToken, http.StatusUnauthorized)
			return
		}
		logger.Error("token refresh failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to refresh token", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("access token refreshed successfully")

	SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
	httputil.RespondJSON(w, tokens, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Revoke the active refresh token and clear auth cookies
// @Tags         auth
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if refreshToken, err := GetRefreshTokenFromCookie(r); err == nil && refreshToken != "" {
		if err := h.service.Logout(r.Context(), refreshToken); err != nil {
			logger.Warn("failed to revoke refresh token", "error", err)
			// Continue - still clear cookies
		}
	}

	ClearAuthCookies(w)

	logger.Info("user logged out successfully")

	httputil.RespondJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// VerifyEmail handles email verification
// @Summary      Verify email address
// @Description  Redeem the single-use verification token sent via email
// @Tags         auth
// @Produce      json
// @Param        token path string true "Verification token"
// @Success      200 {object} map[string]string
// @Failure      404 {object} httputil.ErrorResponse "Unknown or already redeemed token"
// @Router       /auth/verify/{token} [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := chi.URLParam(r, "token")
	if token == "" {
		httputil.RespondErrorWithCode(w, "verification token required", httputil.CodeVerificationTokenRequired, http.StatusBadRequest)
		return
	}

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		if errors.Is(err, ErrInvalidVerificationToken) {
			logger.Warn("email verification failed: invalid token")
			httputil.RespondErrorWithCode(w, "invalid verification token", httputil.CodeVerificationFailed, http.StatusNotFound)
			return
		}
		logger.Error("email verification failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to verify email", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("email verified successfully")

	httputil.RespondJSON(w, map[string]string{
		"message": "Email verified successfully. You can now login.",
	}, http.StatusOK)
}

// ResendVerification handles verification email resends
// @Summary      Resend verification email
// @Description  Issue a fresh verification link for an unconfirmed account. The previous link stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RequestResetRequest true "Email address"
// @Success      200 {object} map[string]string
// @Failure      404 {object} httputil.ErrorResponse "Unknown email"
// @Failure      409 {object} httputil.ErrorResponse "Already confirmed"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/resend-verification [post]
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid resend verification request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), req.Email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		logger.Warn("email on cooldown", "email", req.Email)
		httputil.RespondErrorWithCode(w, "please wait before requesting another email", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return
	}

	if err := h.rateLimiter.SetEmailCooldown(r.Context(), req.Email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			logger.Warn("verification resend requested for unknown email")
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyConfirmed):
			httputil.RespondErrorWithCode(w, "email is already confirmed", httputil.CodeAlreadyConfirmed, http.StatusConflict)
		default:
			logger.Error("verification resend failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to resend verification email", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	httputil.RespondJSON(w, map[string]string{
		"message": "Verification email sent",
	}, http.StatusOK)
}

// Me returns the authenticated user's profile
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MeResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	currentUser, ok := GetCurrentUserFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	httputil.RespondJSON(w, MeResponse{
		ID:        currentUser.ID,
		Username:  currentUser.Username,
		Email:     currentUser.Email,
		Role:      currentUser.Role,
		Avatar:    currentUser.Avatar,
		Confirmed: currentUser.Confirmed,
	}, http.StatusOK)
}

// UpdateAvatar handles avatar upload for admin users
// @Summary      Upload avatar
// @Description  Upload a new avatar image (admin only, multipart field "file")
// @Tags         auth
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} AvatarResponse
// @Failure      400 {object} httputil.ErrorResponse "Not an image"
// @Failure      403 {object} httputil.ErrorResponse "Admin role required"
// @Failure      413 {object} httputil.ErrorResponse "File too large"
// @Failure      502 {object} httputil.ErrorResponse "Object storage failure"
// @Router       /auth/avatar [post]
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	currentUser, ok := GetCurrentUserFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		httputil.RespondErrorWithCode(w, "invalid multipart body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.RespondErrorWithCode(w, "file field required", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Read one byte past the limit so an oversized file is detected and
	// rejected instead of silently truncated
	data, err := io.ReadAll(io.LimitReader(file, maxAvatarSize+1))
	if err != nil {
		httputil.RespondErrorWithCode(w, "failed to read file", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if len(data) > maxAvatarSize {
		httputil.RespondErrorWithCode(w, "file exceeds the 5 MB limit", httputil.CodeFileTooLarge, http.StatusRequestEntityTooLarge)
		return
	}

	avatarURL, err := h.service.UpdateAvatar(r.Context(), currentUser, data)
	if err != nil {
		switch {
		case errors.Is(err, ErrAdminOnly):
			logger.Warn("avatar update rejected: not an admin", "user_id", currentUser.ID)
			httputil.RespondErrorWithCode(w, "only admins can update avatar", httputil.CodeAdminOnly, http.StatusForbidden)
		case errors.Is(err, ErrNotAnImage):
			httputil.RespondErrorWithCode(w, "invalid file type, only images are allowed", httputil.CodeInvalidFileType, http.StatusBadRequest)
		case errors.Is(err, ErrUploadFailed):
			logger.Error("avatar upload failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, "avatar upload failed", httputil.CodeUploadFailed, http.StatusBadGateway)
		default:
			logger.Error("avatar update failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to update avatar", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("avatar updated", "user_id", currentUser.ID)

	httputil.RespondJSON(w, AvatarResponse{AvatarURL: avatarURL}, http.StatusOK)
}

// RequestReset handles password reset requests
// @Summary      Request password reset
// @Description  Send a password reset link to the user's email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RequestResetRequest true "Email address"
// @Success      200 {object} map[string]string
// @Failure      404 {object} httputil.ErrorResponse "Unknown email"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/request-reset [post]
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), req.Email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
		// Continue despite error to avoid blocking legitimate requests
	} else if onCooldown {
		logger.Warn("email on cooldown", "email", req.Email)
		httputil.RespondErrorWithCode(w, "please wait before requesting another reset", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return
	}

	if err := h.rateLimiter.SetEmailCooldown(r.Context(), req.Email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			logger.Warn("reset requested for unknown email")
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("reset request failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to request password reset", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, map[string]string{
		"message": "Password reset instructions sent to email",
	}, http.StatusOK)
}

// ResetPassword handles password reset with token
// @Summary      Reset password
// @Description  Set a new password using a valid reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token path string true "Reset token"
// @Param        request body ResetPasswordRequest true "New password"
// @Success      200 {object} map[string]string
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token"
// @Router       /auth/reset-password/{token} [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := chi.URLParam(r, "token")

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.service.ResetPassword(r.Context(), token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrInvalidResetToken):
			logger.Warn("password reset failed: invalid or expired token")
			httputil.RespondErrorWithCode(w, "invalid or expired reset token", httputil.CodeInvalidResetToken, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			httputil.RespondErrorWithCode(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		default:
			logger.Error("password reset failed: internal error", "error", err.Error())
			httputil.RespondErrorWithCode(w, "failed to reset password", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset successfully")

	httputil.RespondJSON(w, map[string]string{
		"message": "Password has been reset",
	}, http.StatusOK)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (behind proxy/load balancer)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip := r.RemoteAddr
	// RemoteAddr format is "IP:port", extract just the IP
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
