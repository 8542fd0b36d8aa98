package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/stagelink/internal/models"
	"github.com/example/stagelink/internal/utils"
)

// In-memory store implementations. Used by tests and single-process
// deployments without redis. Expired entries are dropped lazily on read.

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryOtpStore keeps bcrypt-hashed codes in a map.
type MemoryOtpStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryOtpStore(ttl time.Duration) *MemoryOtpStore {
	return &MemoryOtpStore{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

// SetClock overrides the store's time source. Test hook.
func (s *MemoryOtpStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryOtpStore) Issue(ctx context.Context, phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	hash, err := utils.HashOtp(code)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.entries[phone] = memoryEntry{value: hash, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return code, nil
}

func (s *MemoryOtpStore) Verify(ctx context.Context, phone, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[phone]
	if !ok {
		return false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, phone)
		return false, nil
	}
	return utils.CheckOtp(entry.value, code), nil
}

func (s *MemoryOtpStore) Consume(ctx context.Context, phone string) error {
	s.mu.Lock()
	delete(s.entries, phone)
	s.mu.Unlock()
	return nil
}

// MemorySessionStore holds session records until logout or expiry handling
// deletes them; records carry no TTL of their own.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (s *MemorySessionStore) Save(ctx context.Context, userID string, rec Session) error {
	s.mu.Lock()
	s.sessions[userID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, userID string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[userID]
	return rec, ok, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

type cachedProfile struct {
	profile   *models.User
	expiresAt time.Time
}

// MemoryProfileCache is a sliding-TTL cache of assembled user snapshots.
type MemoryProfileCache struct {
	mu      sync.Mutex
	entries map[string]cachedProfile
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryProfileCache(ttl time.Duration) *MemoryProfileCache {
	return &MemoryProfileCache{entries: make(map[string]cachedProfile), ttl: ttl, now: time.Now}
}

// SetClock overrides the cache's time source. Test hook.
func (c *MemoryProfileCache) SetClock(now func() time.Time) { c.now = now }

func (c *MemoryProfileCache) Get(ctx context.Context, userID string) (*models.User, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, userID)
		return nil, false, nil
	}
	entry.expiresAt = c.now().Add(c.ttl)
	c.entries[userID] = entry
	return entry.profile, true, nil
}

func (c *MemoryProfileCache) Set(ctx context.Context, userID string, profile *models.User) error {
	c.mu.Lock()
	c.entries[userID] = cachedProfile{profile: profile, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// MemoryRevocationStore marks token digests revoked.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryRevocationStore(ttl time.Duration) *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// SetClock overrides the store's time source. Test hook.
func (s *MemoryRevocationStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryRevocationStore) Revoke(ctx context.Context, tokenString string) error {
	s.mu.Lock()
	s.revoked[utils.HashToken(tokenString)] = s.now().Add(s.ttl)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := utils.HashToken(tokenString)
	expiresAt, ok := s.revoked[key]
	if !ok {
		return false, nil
	}
	if s.now().After(expiresAt) {
		delete(s.revoked, key)
		return false, nil
	}
	return true, nil
}
