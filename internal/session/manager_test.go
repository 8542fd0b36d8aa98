package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/stagelink/internal/common"
	"github.com/example/stagelink/internal/models"
	"github.com/example/stagelink/internal/store"
	"github.com/example/stagelink/internal/token"
)

// fakeDirectory is an in-memory stand-in for the gorm directory. Reads
// return copies so cached snapshots stay independent of later mutations.
type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*models.User // keyed by phone
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]*models.User)}
}

func (d *fakeDirectory) InsertPendingUser(ctx context.Context, phone, username, fullName string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.users[phone]; ok {
		if existing.Status == models.StatusActive {
			return nil, common.ErrDuplicatePhone
		}
		existing.Username = username
		existing.FullName = fullName
		clone := *existing
		return &clone, nil
	}
	user := &models.User{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Phone:     phone,
		Username:  username,
		FullName:  fullName,
		Status:    models.StatusPending,
	}
	d.users[phone] = user
	clone := *user
	return &clone, nil
}

func (d *fakeDirectory) ActivateUser(ctx context.Context, phone string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[phone]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	user.Status = models.StatusActive
	clone := *user
	return &clone, nil
}

func (d *fakeDirectory) FetchUserWithRelations(ctx context.Context, id uuid.UUID) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.users {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (d *fakeDirectory) UpdateDeviceToken(ctx context.Context, id uuid.UUID, deviceToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, user := range d.users {
		if user.ID == id {
			user.DeviceToken = deviceToken
			return nil
		}
	}
	return common.ErrUserNotFound
}

// setUsername mutates the stored row directly, bypassing the manager, to
// exercise cache staleness.
func (d *fakeDirectory) setUsername(phone, username string) {
	d.mu.Lock()
	d.users[phone].Username = username
	d.mu.Unlock()
}

type fakeDeliverer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{codes: make(map[string]string)}
}

func (f *fakeDeliverer) DeliverOtp(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	f.codes[phone] = code
	f.mu.Unlock()
	return f.err
}

func (f *fakeDeliverer) lastCode(phone string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[phone]
}

type testEnv struct {
	mgr       *Manager
	dir       *fakeDirectory
	deliverer *fakeDeliverer
	otps      *store.MemoryOtpStore
	sessions  *store.MemorySessionStore
	current   time.Time
}

func (e *testEnv) advance(d time.Duration) { e.current = e.current.Add(d) }

func newTestEnv(t *testing.T, checkRevocation bool) *testEnv {
	t.Helper()

	env := &testEnv{
		dir:       newFakeDirectory(),
		deliverer: newFakeDeliverer(),
		sessions:  store.NewMemorySessionStore(),
		current:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.current }

	env.otps = store.NewMemoryOtpStore(5 * time.Minute)
	env.otps.SetClock(clock)
	profiles := store.NewMemoryProfileCache(time.Hour)
	profiles.SetClock(clock)
	revocations := store.NewMemoryRevocationStore(30 * 24 * time.Hour)
	revocations.SetClock(clock)

	env.mgr = NewManager(Options{
		Directory:             env.dir,
		Otps:                  env.otps,
		Sessions:              env.sessions,
		Profiles:              profiles,
		Revocations:           revocations,
		Issuer:                token.NewIssuer("test-secret", time.Hour),
		Deliverer:             env.deliverer,
		Logger:                zap.NewNop().Sugar(),
		InactivityLimit:       90 * 24 * time.Hour,
		CheckAccessRevocation: checkRevocation,
	})
	env.mgr.SetClock(clock)
	return env
}

func (e *testEnv) signIn(t *testing.T, phone string) *AuthResult {
	t.Helper()
	result, err := e.mgr.SignIn(context.Background(), phone, e.deliverer.lastCode(phone))
	require.NoError(t, err)
	return result
}

func TestSignUp_CreatesPendingUserAndDeliversOtp(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	user, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, user.Status)
	assert.Equal(t, "alice", user.Username)
	assert.Len(t, env.deliverer.lastCode("+1555"), 6)
}

func TestSignUp_RecallableForSamePhone(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	user, err := env.mgr.SignUp(ctx, "+1555", "alice2", "Alice B")
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username, "pending row is overwritten")

	// the replacement code is the live one
	result := env.signIn(t, "+1555")
	assert.NotEmpty(t, result.AccessToken)
}

func TestSignUp_ActivePhoneConflicts(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	env.signIn(t, "+1555")

	_, err = env.mgr.SignUp(ctx, "+1555", "mallory", "Mallory M")
	assert.ErrorIs(t, err, common.ErrDuplicatePhone)
}

func TestSignUp_DeliveryFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t, false)
	env.deliverer.err = errors.New("sms gateway down")

	_, err := env.mgr.SignUp(context.Background(), "+1555", "alice", "Alice A")
	assert.NoError(t, err)
}

func TestSignIn_IssuesTokenPairAndActivates(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)

	result := env.signIn(t, "+1555")
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, models.StatusActive, result.User.Status)

	claims, err := env.mgr.Authenticate(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID.String(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestSignIn_InvalidOtp(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)

	_, err = env.mgr.SignIn(ctx, "+1555", "000000")
	assert.ErrorIs(t, err, common.ErrInvalidOtp)
}

func TestSignIn_ExpiredOtp(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)

	env.advance(5*time.Minute + time.Second)
	_, err = env.mgr.SignIn(ctx, "+1555", env.deliverer.lastCode("+1555"))
	assert.ErrorIs(t, err, common.ErrInvalidOtp)
}

func TestSignIn_OtpIsOneTimeUse(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	env.signIn(t, "+1555")

	_, err = env.mgr.SignIn(ctx, "+1555", env.deliverer.lastCode("+1555"))
	assert.ErrorIs(t, err, common.ErrInvalidOtp)
}

func TestRefresh_IssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	refreshed, err := env.mgr.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	claims, err := env.mgr.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID.String(), claims.UserID)
}

func TestRefresh_BumpsInactivityClock(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	env.advance(89 * 24 * time.Hour)
	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)

	// another 89 days is fine because the previous refresh reset the clock
	env.advance(89 * 24 * time.Hour)
	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_RejectsForeignToken(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.mgr.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestRefresh_SecondSignInOverwritesSession(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	first := env.signIn(t, "+1555")

	// a second sign-in on the same account replaces the stored refresh token
	code, err := env.otps.Issue(ctx, "+1555")
	require.NoError(t, err)
	second, err := env.mgr.SignIn(ctx, "+1555", code)
	require.NoError(t, err)

	_, err = env.mgr.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)

	_, err = env.mgr.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_InactivityExpiryDeletesSession(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	env.advance(90*24*time.Hour + time.Minute)

	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, common.ErrSessionExpired)

	// the record is gone, so the same token now reads as invalid
	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestLogout_InvalidatesRefresh(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	require.NoError(t, env.mgr.Logout(ctx, result.User.ID, result.AccessToken))

	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)

	// idempotent
	assert.NoError(t, env.mgr.Logout(ctx, result.User.ID, result.AccessToken))
}

func TestLogout_RevokesAccessTokenWhenEnabled(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	_, err = env.mgr.Authenticate(ctx, result.AccessToken)
	require.NoError(t, err)

	require.NoError(t, env.mgr.Logout(ctx, result.User.ID, result.AccessToken))

	_, err = env.mgr.Authenticate(ctx, result.AccessToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestAuthenticate_ErrorKinds(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.Authenticate(ctx, "")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = env.mgr.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestUpdateLastActive_NoSessionIsNoop(t *testing.T) {
	env := newTestEnv(t, false)

	assert.NoError(t, env.mgr.UpdateLastActive(context.Background(), uuid.NewString()))
}

func TestUpdateLastActive_KeepsInactivityClockAlive(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")
	userID := result.User.ID.String()

	// touched just before the ceiling, the session stays refreshable well
	// past 90 days from sign-in
	env.advance(89 * 24 * time.Hour)
	require.NoError(t, env.mgr.UpdateLastActive(ctx, userID))

	env.advance(89 * 24 * time.Hour)
	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	assert.NoError(t, err, "touch must reset the inactivity clock")

	rec, found, err := env.sessions.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, env.current, rec.LastActive)
}

func TestUpdateLastActive_ControlWithoutTouchExpires(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	// same total elapsed time as the touched case, but with no touch
	env.advance(2 * 89 * 24 * time.Hour)
	_, err = env.mgr.Refresh(ctx, result.RefreshToken)
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestGetProfile_CacheStalenessAndExpiry(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")
	userID := result.User.ID

	first, err := env.mgr.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Username)

	// a directory write outside the manager is invisible within the TTL
	env.dir.setUsername("+1555", "renamed")
	second, err := env.mgr.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", second.Username, "cached snapshot served while TTL lives")

	// once the entry idles past the TTL the next read reflects the write
	env.advance(time.Hour + time.Second)
	third, err := env.mgr.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", third.Username)
}

func TestGetProfile_UnknownUser(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.mgr.GetProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestUpdateDeviceToken(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	result := env.signIn(t, "+1555")

	require.NoError(t, env.mgr.UpdateDeviceToken(ctx, result.User.ID, "device-1"))
	assert.Equal(t, "device-1", env.dir.users["+1555"].DeviceToken)

	err = env.mgr.UpdateDeviceToken(ctx, uuid.New(), "device-2")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestEndToEndSignUpSignInAuthenticate(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	user, err := env.mgr.SignUp(ctx, "+1555", "alice", "Alice A")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, user.Status)

	result := env.signIn(t, "+1555")
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.Equal(t, models.StatusActive, result.User.Status)

	claims, err := env.mgr.Authenticate(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
}
