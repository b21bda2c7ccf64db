package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Profile is the denormalized user snapshot kept in the session cache.
// It mirrors the credential store, never replaces it: readers fall back
// to Postgres on a miss and the cache is rebuilt from there.
type Profile struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Avatar    *string `json:"avatar"`
	Role      string  `json:"role"`
	Confirmed bool    `json:"confirmed"`
}

// rotateScript swaps the stored refresh token only if the presented one
// still matches. Running it server-side closes the get-then-set race
// between two concurrent refresh calls: exactly one wins.
var rotateScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// SessionCache stores user profile snapshots and the single active
// refresh token per user, both keyed by email
type SessionCache struct {
	client     *redis.Client
	profileTTL time.Duration
}

func NewSessionCache(client *redis.Client, profileTTL time.Duration) *SessionCache {
	return &SessionCache{client: client, profileTTL: profileTTL}
}

func profileKey(email string) string {
	return fmt.Sprintf("user:%s", email)
}

func refreshTokenKey(email string) string {
	return fmt.Sprintf("refresh_token:%s", email)
}

// StoreProfile writes a profile snapshot with the configured TTL
func (c *SessionCache) StoreProfile(ctx context.Context, profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := c.client.Set(ctx, profileKey(profile.Email), data, c.profileTTL).Err(); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}

	return nil
}

// GetProfile reads a profile snapshot, returning ErrCacheMiss when absent
func (c *SessionCache) GetProfile(ctx context.Context, email string) (*Profile, error) {
	data, err := c.client.Get(ctx, profileKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		// A corrupt snapshot is treated as a miss so it gets rebuilt
		return nil, ErrCacheMiss
	}

	return &profile, nil
}

// DeleteProfile invalidates a cached snapshot
func (c *SessionCache) DeleteProfile(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, profileKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// StoreRefreshToken overwrites the user's active refresh token. At most one
// refresh token per user is valid at a time.
func (c *SessionCache) StoreRefreshToken(ctx context.Context, email, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, refreshTokenKey(email), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken atomically replaces the stored refresh token with next,
// but only if presented is still the active one. Returns false when the
// presented token does not match (already rotated, revoked, or never issued).
func (c *SessionCache) RotateRefreshToken(ctx context.Context, email, presented, next string, ttl time.Duration) (bool, error) {
	res, err := rotateScript.Run(ctx, c.client,
		[]string{refreshTokenKey(email)},
		presented, next, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return res == 1, nil
}

// DeleteRefreshToken revokes the user's active refresh token
func (c *SessionCache) DeleteRefreshToken(ctx context.Context, email string) error {
	if err := c.client.Del(ctx, refreshTokenKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}
