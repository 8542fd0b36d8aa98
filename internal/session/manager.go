package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/stagelink/internal/common"
	"github.com/example/stagelink/internal/models"
	"github.com/example/stagelink/internal/store"
	"github.com/example/stagelink/internal/token"
	"github.com/example/stagelink/internal/utils"
)

// Directory is the persistence surface the manager depends on.
type Directory interface {
	InsertPendingUser(ctx context.Context, phone, username, fullName string) (*models.User, error)
	ActivateUser(ctx context.Context, phone string) (*models.User, error)
	FetchUserWithRelations(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateDeviceToken(ctx context.Context, id uuid.UUID, deviceToken string) error
}

// OtpDeliverer carries generated codes to the user, e.g. over SMS. Delivery
// is best-effort; the manager logs failures and moves on.
type OtpDeliverer interface {
	DeliverOtp(ctx context.Context, phone, code string) error
}

// AuthResult is returned by SignIn.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken string
	User        *models.User
}

// Options bundles the manager's collaborators and policy knobs.
type Options struct {
	Directory   Directory
	Otps        store.OtpStore
	Sessions    store.SessionStore
	Profiles    store.ProfileCache
	Revocations store.RevocationStore
	Issuer      *token.Issuer
	Deliverer   OtpDeliverer
	Logger      *zap.SugaredLogger

	// InactivityLimit is the ceiling on time between refreshes before the
	// session is forced back through sign-in.
	InactivityLimit time.Duration
	// CheckAccessRevocation makes Authenticate consult the revocation store
	// and Logout mark the presented access token. Off by default: access
	// tokens stay stateless for their short lifetime.
	CheckAccessRevocation bool
}

// Manager orchestrates the OTP, session, token, and profile-cache stores to
// implement the sign-up/sign-in/refresh/logout lifecycle.
type Manager struct {
	dir         Directory
	otps        store.OtpStore
	sessions    store.SessionStore
	profiles    store.ProfileCache
	revocations store.RevocationStore
	issuer      *token.Issuer
	deliverer   OtpDeliverer
	log         *zap.SugaredLogger

	inactivityLimit time.Duration
	checkRevocation bool
	now             func() time.Time
}

// NewManager constructs a Manager from its options.
func NewManager(opts Options) *Manager {
	return &Manager{
		dir:             opts.Directory,
		otps:            opts.Otps,
		sessions:        opts.Sessions,
		profiles:        opts.Profiles,
		revocations:     opts.Revocations,
		issuer:          opts.Issuer,
		deliverer:       opts.Deliverer,
		log:             opts.Logger,
		inactivityLimit: opts.InactivityLimit,
		checkRevocation: opts.CheckAccessRevocation,
		now:             time.Now,
	}
}

// SetClock overrides the manager's time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SignUp issues an OTP for the phone and creates (or refreshes) the pending
// user row. Re-calling for the same phone replaces the live code. An active
// account on the phone surfaces common.ErrDuplicatePhone.
func (m *Manager) SignUp(ctx context.Context, phone, username, fullName string) (*models.User, error) {
	code, err := m.otps.Issue(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("sign up %s: issue otp: %w", phone, err)
	}

	user, err := m.dir.InsertPendingUser(ctx, phone, username, fullName)
	if err != nil {
		return nil, err
	}

	if err := m.deliverer.DeliverOtp(ctx, phone, code); err != nil {
		m.log.Warnw("otp delivery failed", "phone", phone, "error", err)
	}
	return user, nil
}

// SignIn verifies the OTP, activates the user, and issues a fresh token
// pair. The stored session record is overwritten: one live session per user.
func (m *Manager) SignIn(ctx context.Context, phone, code string) (*AuthResult, error) {
	ok, err := m.otps.Verify(ctx, phone, code)
	if err != nil {
		return nil, fmt.Errorf("sign in %s: verify otp: %w", phone, err)
	}
	if !ok {
		return nil, common.ErrInvalidOtp
	}

	user, err := m.dir.ActivateUser(ctx, phone)
	if err != nil {
		return nil, err
	}

	accessToken, err := m.issuer.IssueAccessToken(user.ID, user.Username, user.IsArtist)
	if err != nil {
		return nil, fmt.Errorf("sign in %s: issue access token: %w", phone, err)
	}
	refreshToken, err := m.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign in %s: issue refresh token: %w", phone, err)
	}

	rec := store.Session{
		RefreshTokenHash: utils.HashToken(refreshToken),
		LastActive:       m.now(),
	}
	if err := m.sessions.Save(ctx, user.ID.String(), rec); err != nil {
		return nil, fmt.Errorf("sign in %s: save session: %w", phone, err)
	}

	if err := m.otps.Consume(ctx, phone); err != nil {
		m.log.Warnw("otp consume failed", "phone", phone, "error", err)
	}

	profile, err := m.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: accessToken, RefreshToken: refreshToken, User: profile}, nil
}

// Refresh exchanges a valid refresh token for a new access token and bumps
// the inactivity clock. The stored record is the single source of truth: a
// token that does not match it fails closed, and a record idle past the
// inactivity limit is deleted so the user must sign in again.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := m.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, common.ErrInvalidRefreshToken
	}
	userID := claims.UserID

	rec, found, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("refresh for %s: load session: %w", userID, err)
	}
	if !found || rec.RefreshTokenHash != utils.HashToken(refreshToken) {
		return nil, common.ErrInvalidRefreshToken
	}

	if m.now().Sub(rec.LastActive) > m.inactivityLimit {
		if err := m.sessions.Delete(ctx, userID); err != nil {
			m.log.Warnw("expired session cleanup failed", "user_id", userID, "error", err)
		}
		return nil, common.ErrSessionExpired
	}

	rec.LastActive = m.now()
	if err := m.sessions.Save(ctx, userID, rec); err != nil {
		return nil, fmt.Errorf("refresh for %s: save session: %w", userID, err)
	}

	id, _ := uuid.Parse(userID)
	profile, err := m.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	accessToken, err := m.issuer.IssueAccessToken(profile.ID, profile.Username, profile.IsArtist)
	if err != nil {
		return nil, fmt.Errorf("refresh for %s: issue access token: %w", userID, err)
	}
	return &RefreshResult{AccessToken: accessToken, User: profile}, nil
}

// Logout deletes the user's session record. Idempotent: no record is still a
// success. When revocation checking is enabled the presented access token is
// also marked revoked so it stops authenticating before its expiry.
func (m *Manager) Logout(ctx context.Context, userID uuid.UUID, accessToken string) error {
	if err := m.sessions.Delete(ctx, userID.String()); err != nil {
		return fmt.Errorf("logout %s: delete session: %w", userID, err)
	}
	if m.checkRevocation && accessToken != "" {
		if err := m.revocations.Revoke(ctx, accessToken); err != nil {
			return fmt.Errorf("logout %s: revoke token: %w", userID, err)
		}
	}
	return nil
}

// Authenticate resolves a bearer token to verified claims. Absent tokens
// report common.ErrUnauthorized; revoked ones common.ErrTokenRevoked; the
// rest of the failures are token.ErrExpiredToken or token.ErrInvalidToken.
func (m *Manager) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	if tokenString == "" {
		return nil, common.ErrUnauthorized
	}
	if m.checkRevocation {
		revoked, err := m.revocations.IsRevoked(ctx, tokenString)
		if err != nil {
			return nil, fmt.Errorf("authenticate: check revocation: %w", err)
		}
		if revoked {
			return nil, common.ErrTokenRevoked
		}
	}
	return m.issuer.VerifyAccess(tokenString)
}

// UpdateLastActive bumps the inactivity clock for the user's session, if one
// exists. Best-effort: callers log the returned error and never fail the
// surrounding request on it.
func (m *Manager) UpdateLastActive(ctx context.Context, userID string) error {
	rec, found, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("touch session for %s: %w", userID, err)
	}
	if !found {
		return nil
	}
	rec.LastActive = m.now()
	if err := m.sessions.Save(ctx, userID, rec); err != nil {
		return fmt.Errorf("touch session for %s: %w", userID, err)
	}
	return nil
}

// GetProfile returns the user's assembled profile through the read-through
// cache. A hit renews the sliding TTL; a miss loads from the directory and
// fills the cache. Directory writes made elsewhere stay invisible until the
// entry lapses; that staleness is the documented trade-off, not a defect.
func (m *Manager) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	key := userID.String()
	if cached, hit, err := m.profiles.Get(ctx, key); err != nil {
		m.log.Warnw("profile cache read failed", "user_id", key, "error", err)
	} else if hit {
		return cached, nil
	}

	profile, err := m.dir.FetchUserWithRelations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := m.profiles.Set(ctx, key, profile); err != nil {
		m.log.Warnw("profile cache fill failed", "user_id", key, "error", err)
	}
	return profile, nil
}

// UpdateDeviceToken stores the push-notification device token for the user.
// The cached profile is not invalidated; readers see the new token once the
// cache entry expires.
func (m *Manager) UpdateDeviceToken(ctx context.Context, userID uuid.UUID, deviceToken string) error {
	return m.dir.UpdateDeviceToken(ctx, userID, deviceToken)
}

// IsDomainError reports whether err belongs to the domain taxonomy, as
// opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		common.ErrInvalidOtp, common.ErrUserNotFound, common.ErrDuplicatePhone,
		common.ErrInvalidRefreshToken, common.ErrSessionExpired,
		common.ErrTokenRevoked, common.ErrUnauthorized,
		token.ErrInvalidToken, token.ErrExpiredToken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
