package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Token kinds carried in the "kind" claim. A refresh token presented where
// an access token is expected (or vice versa) is rejected.
const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// TokenClaims is what callers get back from a verified token
type TokenClaims struct {
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// JWTService issues and verifies HS256-signed access and refresh tokens.
// The subject claim is always the user's email.
type JWTService struct {
	secret          []byte
	accessDuration  time.Duration
	refreshDuration time.Duration
}

func NewJWTService(secret []byte, accessDuration, refreshDuration time.Duration) (*JWTService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes, got %d", len(secret))
	}

	return &JWTService{
		secret:          secret,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
	}, nil
}

// CreateAccessToken issues a short-lived access token for the given email
func (s *JWTService) CreateAccessToken(email string) (string, error) {
	return s.createToken(email, tokenKindAccess, s.accessDuration)
}

// CreateRefreshToken issues a long-lived refresh token for the given email
func (s *JWTService) CreateRefreshToken(email string) (string, error) {
	return s.createToken(email, tokenKindRefresh, s.refreshDuration)
}

func (s *JWTService) createToken(email, kind string, duration time.Duration) (string, error) {
	now := time.Now()

	// iat/exp have second granularity, so without a unique id two tokens
	// issued within the same second would be byte-identical and the
	// rotation CAS would swap a refresh token for itself
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
		Kind: kind,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyAccessToken validates an access token and returns its claims
func (s *JWTService) VerifyAccessToken(tokenStr string) (*TokenClaims, error) {
	return s.verifyToken(tokenStr, tokenKindAccess)
}

// VerifyRefreshToken validates a refresh token and returns its claims
func (s *JWTService) VerifyRefreshToken(tokenStr string) (*TokenClaims, error) {
	return s.verifyToken(tokenStr, tokenKindRefresh)
}

func (s *JWTService) verifyToken(tokenStr, kind string) (*TokenClaims, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	tc := &TokenClaims{Email: claims.Subject}
	if claims.IssuedAt != nil {
		tc.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}

	return tc, nil
}

// RefreshDuration exposes the refresh token lifetime so the session cache
// can mirror it as the entry TTL
func (s *JWTService) RefreshDuration() time.Duration {
	return s.refreshDuration
}
