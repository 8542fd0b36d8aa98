package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/stagelink/internal/models"
	"github.com/example/stagelink/internal/utils"
)

// Redis-backed store implementations. Key layout:
//   otp:<phone>       bcrypt hash of the live code
//   session:<userID>  JSON session record
//   profile:<userID>  JSON user snapshot, TTL renewed on every read
//   revoked:<digest>  revocation mark

// RedisOtpStore stores one live code per phone with an absolute TTL.
type RedisOtpStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisOtpStore(client *redis.Client, ttl time.Duration) *RedisOtpStore {
	return &RedisOtpStore{client: client, ttl: ttl}
}

func otpKey(phone string) string { return fmt.Sprintf("otp:%s", phone) }

func (s *RedisOtpStore) Issue(ctx context.Context, phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	hash, err := utils.HashOtp(code)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, otpKey(phone), hash, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store otp for %s: %w", phone, err)
	}
	return code, nil
}

func (s *RedisOtpStore) Verify(ctx context.Context, phone, code string) (bool, error) {
	hash, err := s.client.Get(ctx, otpKey(phone)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load otp for %s: %w", phone, err)
	}
	return utils.CheckOtp(hash, code), nil
}

func (s *RedisOtpStore) Consume(ctx context.Context, phone string) error {
	return s.client.Del(ctx, otpKey(phone)).Err()
}

// RedisSessionStore persists session records. ttl of zero keeps records until
// deleted; a positive ttl gives redis a safety net beyond the inactivity rule.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(userID string) string { return fmt.Sprintf("session:%s", userID) }

func (s *RedisSessionStore) Save(ctx context.Context, userID string, rec Session) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(userID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, userID string) (Session, bool, error) {
	b, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load session for %s: %w", userID, err)
	}
	var rec Session
	if err := json.Unmarshal(b, &rec); err != nil {
		return Session{}, false, fmt.Errorf("decode session for %s: %w", userID, err)
	}
	return rec, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, sessionKey(userID)).Err()
}

// RedisProfileCache caches user snapshots with a sliding TTL.
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProfileCache(client *redis.Client, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{client: client, ttl: ttl}
}

func profileKey(userID string) string { return fmt.Sprintf("profile:%s", userID) }

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (*models.User, bool, error) {
	b, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load profile for %s: %w", userID, err)
	}
	var profile models.User
	if err := json.Unmarshal(b, &profile); err != nil {
		return nil, false, fmt.Errorf("decode profile for %s: %w", userID, err)
	}
	// sliding expiry
	_ = c.client.Expire(ctx, profileKey(userID), c.ttl).Err()
	return &profile, true, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, userID string, profile *models.User) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, profileKey(userID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache profile for %s: %w", userID, err)
	}
	return nil
}

// RedisRevocationStore marks token digests revoked for a long TTL.
type RedisRevocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRevocationStore(client *redis.Client, ttl time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, ttl: ttl}
}

func revokedKey(tokenString string) string {
	return fmt.Sprintf("revoked:%s", utils.HashToken(tokenString))
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenString string) error {
	return s.client.Set(ctx, revokedKey(tokenString), "1", s.ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(tokenString)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
