package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors reported by Verify*.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Claims carried by issued tokens. Username and IsArtist are only populated
// on access tokens; refresh tokens carry the user ID alone.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	IsArtist bool   `json:"is_artist,omitempty"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access/refresh tokens with a process-wide
// secret. Rotating the secret invalidates every outstanding token.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewIssuer constructs an Issuer. accessTTL bounds access-token lifetime;
// refresh tokens carry no expiry claim, their liveness is enforced by the
// session manager's inactivity rule.
func NewIssuer(secret string, accessTTL time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, now: time.Now}
}

// IssueAccessToken signs a short-lived access token for the user.
func (i *Issuer) IssueAccessToken(userID uuid.UUID, username string, isArtist bool) (string, error) {
	now := i.now()
	claims := &Claims{
		UserID:   userID.String(),
		Username: username,
		IsArtist: isArtist,
		Type:     typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// IssueRefreshToken signs a refresh token for the user. The jti claim makes
// every issued token distinct so a new sign-in always rotates the stored
// session record to a different value.
func (i *Issuer) IssueRefreshToken(userID uuid.UUID) (string, error) {
	claims := &Claims{
		UserID: userID.String(),
		Type:   typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID.String(),
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(tokenString string) (*Claims, error) {
	return i.verify(tokenString, typeAccess)
}

// VerifyRefresh validates a refresh token and returns its claims. An access
// token presented here is rejected as invalid.
func (i *Issuer) VerifyRefresh(tokenString string) (*Claims, error) {
	return i.verify(tokenString, typeRefresh)
}

func (i *Issuer) verify(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Type != wantType {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
