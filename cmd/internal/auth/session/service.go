package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"vidtube/cmd/identity"
	"vidtube/cmd/internal/media"
	"vidtube/cmd/security/password"
	"vidtube/cmd/security/token"
)

// Recorder receives one observation per finished Service operation.
type Recorder interface {
	ObserveAuth(op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAuth(string, string) {}

// removeFile deletes staged upload files; swappable in tests.
var removeFile = os.Remove

// Deps are the collaborators of Service. Store and Assets are required.
type Deps struct {
	Store     identity.Store
	Assets    media.Store
	Passwords password.Config
	Hasher    token.Hasher
	Logger    *slog.Logger
	Recorder  Recorder
	Now       func() time.Time
}

// Service orchestrates registration, login, refresh, logout and credential
// changes on top of the credential store.
type Service struct {
	cfg       Config
	tokens    *TokenManager
	store     identity.Store
	assets    media.Store
	passwords password.Config
	hasher    token.Hasher
	log       *slog.Logger
	rec       Recorder
	now       func() time.Time

	// dummyHash keeps the unknown-user login path as slow as a real verify.
	dummyHash string
}

// Session is the result of a successful login or refresh.
type Session struct {
	User         identity.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service. A bad cfg or missing dependency is a
// startup error wrapping ErrConfig.
func NewService(cfg Config, d Deps) (*Service, error) {
	tokens, err := NewTokenManager(cfg)
	if err != nil {
		return nil, err
	}
	if d.Store == nil || d.Assets == nil {
		return nil, errors.Join(ErrConfig, errors.New("store and asset store are required"))
	}

	s := &Service{
		cfg:       cfg,
		tokens:    tokens,
		store:     d.Store,
		assets:    d.Assets,
		passwords: d.Passwords,
		hasher:    d.Hasher,
		log:       d.Logger,
		rec:       d.Recorder,
		now:       d.Now,
	}
	if s.passwords == (password.Config{}) {
		s.passwords = password.DefaultConfig()
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	// Hash directly with the configured algorithm; the policy does not apply here.
	dummyCfg := s.passwords
	dummyCfg.Policy = password.Policy{MaxLength: 64}
	if h, err := dummyCfg.Hash("dummy-password-for-timing-only"); err == nil {
		s.dummyHash = h
	}
	return s, nil
}

// RevokesOnPasswordChange reports whether ChangePassword ends the session.
func (s *Service) RevokesOnPasswordChange() bool { return s.cfg.RevokeOnPasswordChange }

// LoginInput is the typed login request.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// Login verifies credentials and starts a new session, replacing any
// refresh token issued before.
func (s *Service) Login(ctx context.Context, in LoginInput) (sess Session, err error) {
	const op = "session.Login"
	defer func() { s.rec.ObserveAuth("login", outcome(err)) }()

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" {
		return Session{}, newError(op, ErrValidation, "username and email are required")
	}
	if in.Password == "" {
		return Session{}, newError(op, ErrValidation, "password is required")
	}

	auth, err := s.store.GetUserAuthByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if identity.IsNotFound(err) {
			if s.dummyHash != "" {
				_, _ = s.passwords.Verify(s.dummyHash, in.Password)
			}
			return Session{}, newError(op, ErrNotFound, "user does not exist")
		}
		return Session{}, internal(op, err)
	}

	ok, err := s.passwords.Verify(auth.PasswordHash, in.Password)
	if err != nil {
		// Stored hash is unreadable: a corrupt credential, not a caller error.
		s.log.Error("auth.login.corrupt_hash", "user_id", auth.User.ID, "err", err)
		return Session{}, internal(op, err)
	}
	if !ok {
		return Session{}, newError(op, ErrInvalidCredentials, "invalid user credentials")
	}

	now := s.now()
	sess, refreshHash, err := s.issue(auth.User, now)
	if err != nil {
		return Session{}, internal(op, err)
	}
	if err := s.store.StartSession(ctx, auth.User.ID, auth.PasswordHash, refreshHash, now); err != nil {
		if identity.IsNotActive(err) {
			// The password changed after it was verified above.
			return Session{}, &Error{Op: op, Kind: ErrInvalidCredentials, Msg: "invalid user credentials", Err: err}
		}
		if identity.IsNotFound(err) {
			return Session{}, newError(op, ErrNotFound, "user does not exist")
		}
		return Session{}, internal(op, err)
	}
	return sess, nil
}

// Authenticate resolves the user behind an access token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (u identity.User, err error) {
	const op = "session.Authenticate"

	claims, err := s.tokens.VerifyAccess(accessToken, s.now())
	if err != nil {
		return identity.User{}, unauthorized(op, tokenMessage(err, "invalid access token"), err)
	}

	u, err = s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, unauthorized(op, "invalid access token", ErrTokenInvalid)
		}
		return identity.User{}, internal(op, err)
	}
	return u, nil
}

// Logout clears the stored refresh token. Logging out twice is harmless.
func (s *Service) Logout(ctx context.Context, userID string) (err error) {
	const op = "session.Logout"
	defer func() { s.rec.ObserveAuth("logout", outcome(err)) }()

	if err := s.store.SetRefreshTokenHash(ctx, userID, nil, s.now()); err != nil {
		if identity.IsNotFound(err) {
			return newError(op, ErrNotFound, "user does not exist")
		}
		return internal(op, err)
	}
	return nil
}

// ChangePasswordInput is the typed password-change request.
type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword replaces the password hash after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (err error) {
	const op = "session.ChangePassword"
	defer func() { s.rec.ObserveAuth("change_password", outcome(err)) }()

	if in.OldPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return newError(op, ErrValidation, "old, new and confirm password are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return newError(op, ErrMismatch, "new password and confirm password do not match")
	}

	auth, err := s.store.GetUserAuthByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return newError(op, ErrNotFound, "user does not exist")
		}
		return internal(op, err)
	}

	ok, err := s.passwords.Verify(auth.PasswordHash, in.OldPassword)
	if err != nil {
		s.log.Error("auth.password.corrupt_hash", "user_id", userID, "err", err)
		return internal(op, err)
	}
	if !ok {
		return newError(op, ErrInvalidCredentials, "invalid old password")
	}

	hash, err := s.passwords.Hash(in.NewPassword)
	if err != nil {
		if password.IsPolicyError(err) {
			return &Error{Op: op, Kind: ErrValidation, Msg: err.Error(), Err: err}
		}
		return internal(op, err)
	}

	if err := s.store.UpdatePasswordHash(ctx, userID, auth.PasswordHash, hash, s.cfg.RevokeOnPasswordChange, s.now()); err != nil {
		if identity.IsNotActive(err) {
			return &Error{Op: op, Kind: ErrInvalidCredentials, Msg: "invalid old password", Err: err}
		}
		if identity.IsNotFound(err) {
			return newError(op, ErrNotFound, "user does not exist")
		}
		return internal(op, err)
	}
	return nil
}

// CurrentUser returns the public record of userID.
func (s *Service) CurrentUser(ctx context.Context, userID string) (identity.User, error) {
	const op = "session.CurrentUser"

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, newError(op, ErrNotFound, "user does not exist")
		}
		return identity.User{}, internal(op, err)
	}
	return u, nil
}

// issue signs a fresh token pair and returns the digest to persist.
func (s *Service) issue(u identity.User, now time.Time) (Session, string, error) {
	access, accessExp, err := s.tokens.IssueAccess(u, now)
	if err != nil {
		return Session{}, "", err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(u.ID, now)
	if err != nil {
		return Session{}, "", err
	}
	return Session{
		User:         u,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, s.hasher.Hex(refresh), nil
}

// discard removes staged upload files, ignoring empty paths.
func (s *Service) discard(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := removeFile(p); err != nil && !os.IsNotExist(err) {
			s.log.Warn("media.tmp.remove_fail", "path", p, "err", err)
		}
	}
}

// deleteAssets removes uploaded assets best-effort.
func (s *Service) deleteAssets(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.assets.Delete(ctx, u); err != nil {
			s.log.Warn("media.asset.delete_fail", "url", u, "err", err)
		}
	}
}
