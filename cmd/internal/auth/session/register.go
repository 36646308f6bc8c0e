package session

import (
	"context"
	"errors"
	"strings"

	"vidtube/cmd/identity"
	"vidtube/cmd/security/password"
)

// RegisterInput is the typed registration request. AvatarPath and CoverPath
// point at temp files staged by the transport; Register removes them.
type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	AvatarPath string
	CoverPath  string
}

// Register creates an account.
//
// The avatar upload is mandatory, the cover upload is best-effort. Uploaded
// assets are deleted again when the account cannot be stored.
func (s *Service) Register(ctx context.Context, in RegisterInput) (u identity.User, err error) {
	const op = "session.Register"
	defer func() { s.rec.ObserveAuth("register", outcome(err)) }()
	defer s.discard(in.AvatarPath, in.CoverPath)

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return identity.User{}, newError(op, ErrValidation, "all fields are required")
	}
	if strings.TrimSpace(in.AvatarPath) == "" {
		return identity.User{}, newError(op, ErrValidation, "avatar file is required")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if password.IsPolicyError(err) {
			return identity.User{}, &Error{Op: op, Kind: ErrValidation, Msg: err.Error(), Err: err}
		}
		return identity.User{}, internal(op, err)
	}

	// Fail before any upload; the unique index still decides at insert.
	_, err = s.store.FindUserByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		return identity.User{}, newError(op, ErrConflict, "user with email or username already exists")
	case !identity.IsNotFound(err):
		return identity.User{}, internal(op, err)
	}

	avatar, err := s.assets.Upload(ctx, in.AvatarPath)
	if err != nil {
		s.log.Warn("auth.register.avatar_upload_fail", "err", err)
		return identity.User{}, &Error{Op: op, Kind: ErrAssetUploadFailed, Msg: "failed to upload avatar", Err: err}
	}

	var coverURL string
	if strings.TrimSpace(in.CoverPath) != "" {
		cover, err := s.assets.Upload(ctx, in.CoverPath)
		if err != nil {
			s.log.Warn("auth.register.cover_upload_fail", "err", err)
		} else {
			coverURL = cover.URL
		}
	}

	u, err = s.store.CreateUser(ctx, identity.CreateUserInput{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		AvatarURL:    avatar.URL,
		CoverURL:     coverURL,
		Now:          s.now(),
	})
	if err != nil {
		s.deleteAssets(context.WithoutCancel(ctx), avatar.URL, coverURL)
		return identity.User{}, storeWriteError(op, err)
	}

	s.log.Info("auth.register.ok", "user_id", u.ID)
	return u, nil
}

// storeWriteError maps identity write failures onto session kinds.
func storeWriteError(op string, err error) error {
	switch {
	case identity.IsConflict(err):
		field := identity.ConflictField(err)
		if field == "" {
			field = "email or username"
		}
		return &Error{Op: op, Kind: ErrConflict, Msg: "user with this " + field + " already exists", Err: err}
	case identity.IsInvalidInput(err):
		return &Error{Op: op, Kind: ErrValidation, Msg: invalidInputMessage(err), Err: err}
	case identity.IsNotFound(err):
		return &Error{Op: op, Kind: ErrNotFound, Msg: "user does not exist", Err: err}
	default:
		return internal(op, err)
	}
}

func invalidInputMessage(err error) string {
	var oe identity.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "invalid input"
}
