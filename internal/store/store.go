package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/example/stagelink/internal/models"
)

// Session is the per-user session record. One record per user id; a new
// sign-in overwrites any previous one.
type Session struct {
	RefreshTokenHash string    `json:"refresh_token_hash"`
	LastActive       time.Time `json:"last_active"`
}

// OtpStore keeps at most one live one-time code per phone number.
type OtpStore interface {
	// Issue generates a fresh 6-digit code, stores it under the phone with
	// the store's TTL replacing any prior code, and returns the plaintext.
	Issue(ctx context.Context, phone string) (string, error)
	// Verify reports whether code matches the live entry for phone. An
	// expired or missing entry reports false.
	Verify(ctx context.Context, phone, code string) (bool, error)
	// Consume deletes the entry for phone.
	Consume(ctx context.Context, phone string) error
}

// SessionStore maps user ids to session records.
type SessionStore interface {
	Save(ctx context.Context, userID string, rec Session) error
	Get(ctx context.Context, userID string) (Session, bool, error)
	Delete(ctx context.Context, userID string) error
}

// ProfileCache holds assembled user snapshots with a sliding TTL: every hit
// renews the entry. The directory stays authoritative; entries only lapse by
// expiry, never by write-through invalidation.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*models.User, bool, error)
	Set(ctx context.Context, userID string, profile *models.User) error
}

// RevocationStore marks raw tokens revoked for a long TTL. Only consulted
// for access tokens when revocation checking is enabled.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenString string) error
	IsRevoked(ctx context.Context, tokenString string) (bool, error)
}

// generateCode samples a 6-digit code uniformly from 100000-999999.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
