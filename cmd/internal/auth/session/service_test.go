package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidtube/cmd/identity"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssets struct {
	mu       sync.Mutex
	n        int
	uploaded []string
	deleted  []string
	fail     map[string]error // by file base name
}

func (f *fakeAssets) Upload(_ context.Context, localPath string) (media.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[filepath.Base(localPath)]; err != nil {
		return media.Asset{}, err
	}
	if _, err := os.Stat(localPath); err != nil {
		return media.Asset{}, err
	}
	f.n++
	url := fmt.Sprintf("https://cdn.test/%d%s", f.n, filepath.Ext(localPath))
	f.uploaded = append(f.uploaded, url)
	return media.Asset{URL: url, Key: filepath.Base(url)}, nil
}

func (f *fakeAssets) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *fakeRecorder) ObserveAuth(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, op+":"+outcome)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingCreateStore fails every CreateUser after the embedded store accepted nothing.
type failingCreateStore struct {
	*identity.MemoryStore
	err error
}

func (s failingCreateStore) CreateUser(context.Context, identity.CreateUserInput) (identity.User, error) {
	return identity.User{}, s.err
}

// interleavingStore runs hook once, right after the next credential read,
// to commit a competing write between a password verify and its write.
type interleavingStore struct {
	*identity.MemoryStore
	hook func()
}

func (s *interleavingStore) fire() {
	if h := s.hook; h != nil {
		s.hook = nil
		h()
	}
}

func (s *interleavingStore) GetUserAuthByID(ctx context.Context, userID string) (identity.UserAuth, error) {
	a, err := s.MemoryStore.GetUserAuthByID(ctx, userID)
	s.fire()
	return a, err
}

func (s *interleavingStore) GetUserAuthByUsernameOrEmail(ctx context.Context, username, email string) (identity.UserAuth, error) {
	a, err := s.MemoryStore.GetUserAuthByUsernameOrEmail(ctx, username, email)
	s.fire()
	return a, err
}

func newInterleavingFixture(t *testing.T) (*fixture, *interleavingStore) {
	t.Helper()
	wrap := &interleavingStore{}
	f := newFixture(t, func(_ *Config, d *Deps) {
		wrap.MemoryStore = d.Store.(*identity.MemoryStore)
		d.Store = wrap
	})
	return f, wrap
}

type fixture struct {
	svc    *Service
	store  *identity.MemoryStore
	assets *fakeAssets
	rec    *fakeRecorder
	clock  *testClock
	hasher token.Hasher
}

func newFixture(t *testing.T, mutate ...func(*Config, *Deps)) *fixture {
	t.Helper()

	pw := password.DefaultConfig()
	pw.BcryptCost = 4 // bcrypt.MinCost keeps tests fast

	f := &fixture{
		store:  identity.NewMemoryStore(),
		assets: &fakeAssets{fail: map[string]error{}},
		rec:    &fakeRecorder{},
		clock:  &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		hasher: token.NewHasher([]byte("test-hmac-key-0123456789abcdef")),
	}

	cfg := testConfig()
	deps := Deps{
		Store:     f.store,
		Assets:    f.assets,
		Passwords: pw,
		Hasher:    f.hasher,
		Recorder:  f.rec,
		Now:       f.clock.Now,
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	svc, err := NewService(cfg, deps)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func stageFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("image-bytes"), 0o600))
	return p
}

func aliceRegistration(t *testing.T) RegisterInput {
	return RegisterInput{
		Username:   "alice",
		Email:      "a@x.com",
		FullName:   "Alice A",
		Password:   "Secret123!",
		AvatarPath: stageFile(t, "avatar.png"),
	}
}

func (f *fixture) registerAlice(t *testing.T) identity.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), aliceRegistration(t))
	require.NoError(t, err)
	return u
}

func (f *fixture) loginAlice(t *testing.T) Session {
	t.Helper()
	s, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Email: "a@x.com", Password: "Secret123!"})
	require.NoError(t, err)
	return s
}

func (f *fixture) storedRefreshHash(t *testing.T, userID string) *string {
	t.Helper()
	a, err := f.store.GetUserAuthByID(context.Background(), userID)
	require.NoError(t, err)
	return a.RefreshTokenHash
}

func assertFileGone(t *testing.T, p string) {
	t.Helper()
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err), "expected %s to be removed, stat err=%v", p, err)
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(testConfig(), Deps{Store: identity.NewMemoryStore()})
	assert.ErrorIs(t, err, ErrConfig)

	cfg := testConfig()
	cfg.RefreshTokenSecret = nil
	_, err = NewService(cfg, Deps{Store: identity.NewMemoryStore(), Assets: &fakeAssets{}})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRegister_Alice(t *testing.T) {
	f := newFixture(t)
	in := aliceRegistration(t)

	u, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, "Alice A", u.FullName)
	assert.Equal(t, "https://cdn.test/1.png", u.AvatarURL)
	assert.Empty(t, u.CoverURL)
	assertFileGone(t, in.AvatarPath)

	auth, err := f.store.GetUserAuthByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123!", auth.PasswordHash)
	assert.Nil(t, auth.RefreshTokenHash)
	assert.Contains(t, f.rec.seen, "register:ok")
}

func TestRegister_WithCover(t *testing.T) {
	f := newFixture(t)
	in := aliceRegistration(t)
	in.CoverPath = stageFile(t, "cover.jpg")

	u, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/2.jpg", u.CoverURL)
	assertFileGone(t, in.CoverPath)
}

func TestRegister_CoverFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.assets.fail["cover.jpg"] = errors.New("cdn down")
	in := aliceRegistration(t)
	in.CoverPath = stageFile(t, "cover.jpg")

	u, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, u.CoverURL)
	assertFileGone(t, in.CoverPath)
}

func TestRegister_AvatarFailure(t *testing.T) {
	f := newFixture(t)
	f.assets.fail["avatar.png"] = errors.New("cdn down")
	in := aliceRegistration(t)
	in.CoverPath = stageFile(t, "cover.jpg")

	_, err := f.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, ErrAssetUploadFailed)
	assertFileGone(t, in.AvatarPath)
	assertFileGone(t, in.CoverPath)

	_, err = f.store.FindUserByUsernameOrEmail(context.Background(), "alice", "")
	assert.True(t, identity.IsNotFound(err))
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{name: "blank username", mutate: func(in *RegisterInput) { in.Username = " " }},
		{name: "blank email", mutate: func(in *RegisterInput) { in.Email = "" }},
		{name: "blank fullname", mutate: func(in *RegisterInput) { in.FullName = "" }},
		{name: "blank password", mutate: func(in *RegisterInput) { in.Password = "   " }},
		{name: "missing avatar", mutate: func(in *RegisterInput) { in.AvatarPath = "" }},
		{name: "short password", mutate: func(in *RegisterInput) { in.Password = "abc" }},
		{name: "malformed email", mutate: func(in *RegisterInput) { in.Email = "nope" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := aliceRegistration(t)
			tc.mutate(&in)

			_, err := f.svc.Register(context.Background(), in)
			require.ErrorIs(t, err, ErrValidation)
			if in.AvatarPath != "" {
				assertFileGone(t, in.AvatarPath)
			}
		})
	}
}

func TestRegister_MalformedEmailDeletesUploadedAvatar(t *testing.T) {
	f := newFixture(t)
	in := aliceRegistration(t)
	in.Email = "nope"

	_, err := f.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, f.assets.uploaded, f.assets.deleted)
}

func TestRegister_Conflict(t *testing.T) {
	f := newFixture(t)
	f.registerAlice(t)

	sameName := aliceRegistration(t)
	sameName.Email = "other@x.com"
	_, err := f.svc.Register(context.Background(), sameName)
	assert.ErrorIs(t, err, ErrConflict)
	assertFileGone(t, sameName.AvatarPath)

	sameEmail := aliceRegistration(t)
	sameEmail.Username = "alice2"
	sameEmail.Email = "A@X.com"
	_, err = f.svc.Register(context.Background(), sameEmail)
	assert.ErrorIs(t, err, ErrConflict)

	// Conflicts are caught before anything is uploaded.
	assert.Len(t, f.assets.uploaded, 1)
}

func TestRegister_StoreFailureCleansUpAssets(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Store = failingCreateStore{MemoryStore: identity.NewMemoryStore(), err: errors.New("db down")}
	})
	in := aliceRegistration(t)
	in.CoverPath = stageFile(t, "cover.jpg")

	_, err := f.svc.Register(context.Background(), in)
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "something went wrong", Message(err))
	assert.ElementsMatch(t, f.assets.uploaded, f.assets.deleted)
	assert.Len(t, f.assets.deleted, 2)
}

func TestRegister_RaceLostToUniqueIndex(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Deps) {
		d.Store = failingCreateStore{
			MemoryStore: identity.NewMemoryStore(),
			err:         identity.ConflictError{Op: "identity.CreateUser", Field: "email"},
		}
	})

	_, err := f.svc.Register(context.Background(), aliceRegistration(t))
	require.ErrorIs(t, err, ErrConflict)
	assert.Len(t, f.assets.deleted, 1)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)

	s := f.loginAlice(t)
	assert.Equal(t, u.ID, s.User.ID)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), s.AccessExp)
	assert.Equal(t, f.clock.Now().Add(10*24*time.Hour), s.RefreshExp)

	stored := f.storedRefreshHash(t, u.ID)
	require.NotNil(t, stored)
	assert.Equal(t, f.hasher.Hex(s.RefreshToken), *stored)
	assert.NotEqual(t, s.RefreshToken, *stored)
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)
	f.registerAlice(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "Secret123!"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "Secret123!"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Login(context.Background(), LoginInput{Username: "alice", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "bob", Email: "b@x.com", Password: "whatever1"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.rec.seen, "login:not_found")
}

func TestLogin_WrongPasswordDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	first := f.loginAlice(t)
	before := f.storedRefreshHash(t, u.ID)

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Email: "a@x.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	after := f.storedRefreshHash(t, u.ID)
	require.NotNil(t, after)
	assert.Equal(t, *before, *after)

	// The earlier session keeps working.
	_, err = f.svc.Refresh(context.Background(), first.RefreshToken)
	assert.NoError(t, err)
}

func TestLogin_CorruptHashIsInternal(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	before, err := f.store.GetUserAuthByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdatePasswordHash(context.Background(), u.ID, before.PasswordHash, "garbage", false, time.Now()))

	_, err = f.svc.Login(context.Background(), LoginInput{Username: "alice", Email: "a@x.com", Password: "Secret123!"})
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, password.ErrInvalidHash)
}

func TestLogin_SecondLoginReplacesFirst(t *testing.T) {
	f := newFixture(t)
	f.registerAlice(t)

	first := f.loginAlice(t)
	second := f.loginAlice(t)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Refresh(context.Background(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	s := f.loginAlice(t)

	got, err := f.svc.Authenticate(context.Background(), s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	// A refresh token is not an access token.
	_, err = f.svc.Authenticate(context.Background(), s.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	f.clock.Advance(16 * time.Minute)
	_, err = f.svc.Authenticate(context.Background(), s.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "token expired", Message(err))
}

func TestAuthenticate_DeletedUser(t *testing.T) {
	f := newFixture(t)
	f.registerAlice(t)
	s := f.loginAlice(t)

	other := newFixture(t)
	other.svc.tokens = f.svc.tokens

	_, err := other.svc.Authenticate(context.Background(), s.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	s1 := f.loginAlice(t)

	f.clock.Advance(time.Minute)
	s2, err := f.svc.Refresh(context.Background(), s1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, s2.User.ID)
	assert.NotEqual(t, s1.RefreshToken, s2.RefreshToken)
	assert.NotEqual(t, s1.AccessToken, s2.AccessToken)

	stored := f.storedRefreshHash(t, u.ID)
	require.NotNil(t, stored)
	assert.Equal(t, f.hasher.Hex(s2.RefreshToken), *stored)

	_, err = f.svc.Refresh(context.Background(), s1.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "refresh token is expired or used", Message(err))

	_, err = f.svc.Refresh(context.Background(), s2.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentUseHasOneWinner(t *testing.T) {
	f := newFixture(t)
	f.registerAlice(t)
	s := f.loginAlice(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), s.RefreshToken)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRefresh_UnknownSecret(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	f.loginAlice(t)

	otherCfg := testConfig()
	otherCfg.RefreshTokenSecret = []byte("attacker-secret-0123456789abcdefghij")
	forger, err := NewTokenManager(otherCfg)
	require.NoError(t, err)
	forged, _, err := forger.IssueRefresh(u.ID, f.clock.Now())
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), forged)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t)
	f.registerAlice(t)
	s := f.loginAlice(t)

	f.clock.Advance(11 * 24 * time.Hour)
	_, err := f.svc.Refresh(context.Background(), s.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_Empty(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout_RevokesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	s := f.loginAlice(t)

	require.NoError(t, f.svc.Logout(context.Background(), u.ID))
	assert.Nil(t, f.storedRefreshHash(t, u.ID))

	_, err := f.svc.Refresh(context.Background(), s.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.svc.Logout(context.Background(), u.ID))
	assert.Nil(t, f.storedRefreshHash(t, u.ID))
}

func TestLogout_UnknownUser(t *testing.T) {
	f := newFixture(t)
	id, err := identity.NewULID(time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Logout(context.Background(), id), ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	s := f.loginAlice(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "NewSecret456!", ConfirmPassword: "different"})
	assert.ErrorIs(t, err, ErrMismatch)

	err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "wrong-old-pw", NewPassword: "NewSecret456!", ConfirmPassword: "NewSecret456!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "short", ConfirmPassword: "short"})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "", ConfirmPassword: ""})
	assert.ErrorIs(t, err, ErrValidation)

	// None of the failures touched the session.
	require.NotNil(t, f.storedRefreshHash(t, u.ID))

	err = f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "NewSecret456!", ConfirmPassword: "NewSecret456!"})
	require.NoError(t, err)

	// Revoked by default.
	assert.Nil(t, f.storedRefreshHash(t, u.ID))
	_, err = f.svc.Refresh(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Email: "a@x.com", Password: "Secret123!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Email: "a@x.com", Password: "NewSecret456!"})
	assert.NoError(t, err)
}

func TestLogin_PasswordChangedDuringVerify(t *testing.T) {
	f, wrap := newInterleavingFixture(t)
	u := f.registerAlice(t)
	ctx := context.Background()

	wrap.hook = func() {
		err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "NewSecret456!", ConfirmPassword: "NewSecret456!"})
		require.NoError(t, err)
	}

	// The old password verified against the hash read before the change.
	_, err := f.svc.Login(ctx, LoginInput{Username: "alice", Email: "a@x.com", Password: "Secret123!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, f.storedRefreshHash(t, u.ID))

	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Email: "a@x.com", Password: "NewSecret456!"})
	assert.NoError(t, err)
}

func TestChangePassword_ConcurrentChangeLoses(t *testing.T) {
	f, wrap := newInterleavingFixture(t)
	u := f.registerAlice(t)
	ctx := context.Background()

	wrap.hook = func() {
		err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "NewSecret456!", ConfirmPassword: "NewSecret456!"})
		require.NoError(t, err)
	}

	err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "Other789!!", ConfirmPassword: "Other789!!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Email: "a@x.com", Password: "NewSecret456!"})
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, LoginInput{Username: "alice", Email: "a@x.com", Password: "Other789!!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword_WithoutRevocation(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Deps) { c.RevokeOnPasswordChange = false })
	u := f.registerAlice(t)
	s := f.loginAlice(t)
	assert.False(t, f.svc.RevokesOnPasswordChange())

	err := f.svc.ChangePassword(context.Background(), u.ID, ChangePasswordInput{OldPassword: "Secret123!", NewPassword: "NewSecret456!", ConfirmPassword: "NewSecret456!"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), s.RefreshToken)
	assert.NoError(t, err)
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)

	got, err := f.svc.CurrentUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = f.svc.CurrentUser(context.Background(), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAccount(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	ctx := context.Background()

	bob := aliceRegistration(t)
	bob.Username = "bob"
	bob.Email = "b@x.com"
	_, err := f.svc.Register(ctx, bob)
	require.NoError(t, err)

	_, err = f.svc.UpdateAccount(ctx, u.ID, UpdateAccountInput{})
	assert.ErrorIs(t, err, ErrValidation)

	got, err := f.svc.UpdateAccount(ctx, u.ID, UpdateAccountInput{FullName: "Alice Liddell"})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", got.FullName)
	assert.Equal(t, "a@x.com", got.Email)

	_, err = f.svc.UpdateAccount(ctx, u.ID, UpdateAccountInput{Email: "B@x.com"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.UpdateAccount(ctx, u.ID, UpdateAccountInput{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateAvatarAndCover(t *testing.T) {
	f := newFixture(t)
	u := f.registerAlice(t)
	ctx := context.Background()

	p := stageFile(t, "new-avatar.png")
	got, err := f.svc.UpdateAvatar(ctx, u.ID, p)
	require.NoError(t, err)
	assert.NotEqual(t, u.AvatarURL, got.AvatarURL)
	assert.Equal(t, []string{u.AvatarURL}, f.assets.deleted)
	assertFileGone(t, p)

	p = stageFile(t, "cover.jpg")
	got, err = f.svc.UpdateCover(ctx, u.ID, p)
	require.NoError(t, err)
	assert.NotEmpty(t, got.CoverURL)
	// No previous cover, nothing else deleted.
	assert.Len(t, f.assets.deleted, 1)

	_, err = f.svc.UpdateAvatar(ctx, u.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	f.assets.fail["broken.png"] = errors.New("cdn down")
	p = stageFile(t, "broken.png")
	_, err = f.svc.UpdateAvatar(ctx, u.ID, p)
	assert.ErrorIs(t, err, ErrAssetUploadFailed)
	assertFileGone(t, p)
}

func TestErrorHelpers(t *testing.T) {
	err := &Error{Op: "session.X", Kind: ErrUnauthorized, Msg: "token expired", Err: ErrTokenExpired}
	assert.Equal(t, ErrUnauthorized, KindOf(err))
	assert.Equal(t, "token expired", Message(err))
	assert.Equal(t, "session.X: token expired: token expired", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ErrUnauthorized, KindOf(wrapped))

	assert.Equal(t, ErrInternal, KindOf(errors.New("foreign")))
	assert.Equal(t, "internal error", Message(errors.New("foreign")))
	assert.Equal(t, "unauthorized", outcome(err))
	assert.Equal(t, "ok", outcome(nil))
}
