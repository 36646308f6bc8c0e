package identity

import (
	"context"
	"sync"
	"time"

	"vidtube/cmd/security/token"
)

// MemoryStore is an in-process Store used when no database is configured
// and in tests. A single RWMutex serializes writers, which gives every
// refresh-token mutation the same atomicity PostgresStore gets from row locks.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*memRecord
	byUsername map[string]string
	byEmail    map[string]string
}

type memRecord struct {
	user         User
	passwordHash string
	refreshHash  *string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*memRecord),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

// CreateUser inserts a new account, enforcing username/email uniqueness.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := normalizeCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[in.Username]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[in.Email]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:        id,
		Username:  in.Username,
		Email:     in.Email,
		FullName:  in.FullName,
		AvatarURL: in.AvatarURL,
		CoverURL:  in.CoverURL,
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
	}
	s.byID[id] = &memRecord{user: u, passwordHash: in.PasswordHash}
	s.byUsername[u.Username] = id
	s.byEmail[u.Email] = id

	return u, nil
}

// GetUserByID returns the public view of an account.
func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	a, err := s.GetUserAuthByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	return a.User, nil
}

// FindUserByUsernameOrEmail looks an account up by either identifier.
func (s *MemoryStore) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (User, error) {
	a, err := s.GetUserAuthByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return User{}, err
	}
	return a.User, nil
}

// GetUserAuthByID returns the credential view of an account.
func (s *MemoryStore) GetUserAuthByID(ctx context.Context, userID string) (UserAuth, error) {
	const op = "identity.GetUserAuthByID"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return UserAuth{}, userNotFound(op)
	}
	return rec.auth(), nil
}

// GetUserAuthByUsernameOrEmail returns the credential view of an account
// matching either identifier; a username match wins.
func (s *MemoryStore) GetUserAuthByUsernameOrEmail(ctx context.Context, username, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByUsernameOrEmail"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)
	if username == "" && email == "" {
		return UserAuth{}, invalid(op, "username or email is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byUsername[username]; ok && username != "" {
		return s.byID[id].auth(), nil
	}
	if id, ok := s.byEmail[email]; ok && email != "" {
		return s.byID[id].auth(), nil
	}
	return UserAuth{}, userNotFound(op)
}

// SetRefreshTokenHash replaces (or clears, when hash is nil) the stored digest.
func (s *MemoryStore) SetRefreshTokenHash(ctx context.Context, userID string, hash *string, now time.Time) error {
	const op = "identity.SetRefreshTokenHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if hash != nil && len(*hash) != token.DigestHexLen {
		return invalid(op, "refresh token hash must be a 64-char digest")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return userNotFound(op)
	}
	if hash == nil {
		rec.refreshHash = nil
	} else {
		h := *hash
		rec.refreshHash = &h
	}
	rec.touch(now)
	return nil
}

// RotateRefreshTokenHash performs the compare-and-swap under the write lock.
func (s *MemoryStore) RotateRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string, now time.Time) error {
	const op = "identity.RotateRefreshTokenHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(newHash) != token.DigestHexLen {
		return invalid(op, "refresh token hash must be a 64-char digest")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return userNotFound(op)
	}
	if rec.refreshHash == nil || !token.Equal(*rec.refreshHash, oldHash) {
		return notActiveRotate()
	}
	h := newHash
	rec.refreshHash = &h
	rec.touch(now)
	return nil
}

// StartSession stores refreshHash if the password hash is still expectedPasswordHash.
func (s *MemoryStore) StartSession(ctx context.Context, userID, expectedPasswordHash, refreshHash string, now time.Time) error {
	const op = "identity.StartSession"

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(refreshHash) != token.DigestHexLen {
		return invalid(op, "refresh token hash must be a 64-char digest")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return userNotFound(op)
	}
	if rec.passwordHash != expectedPasswordHash {
		return credentialChanged(op)
	}
	h := refreshHash
	rec.refreshHash = &h
	rec.touch(now)
	return nil
}

// UpdatePasswordHash swaps the password hash, optionally revoking the refresh token.
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, expectedOldHash, newHash string, revokeRefresh bool, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if newHash == "" {
		return invalid(op, "password hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return userNotFound(op)
	}
	if rec.passwordHash != expectedOldHash {
		return credentialChanged(op)
	}
	rec.passwordHash = newHash
	if revokeRefresh {
		rec.refreshHash = nil
	}
	rec.touch(now)
	return nil
}

// UpdateProfile applies the non-nil fields of in.
func (s *MemoryStore) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := normalizeProfile(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return User{}, userNotFound(op)
	}
	if in.Email != nil && *in.Email != rec.user.Email {
		if _, taken := s.byEmail[*in.Email]; taken {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, rec.user.Email)
		s.byEmail[*in.Email] = userID
		rec.user.Email = *in.Email
	}
	if in.FullName != nil {
		rec.user.FullName = *in.FullName
	}
	if in.AvatarURL != nil {
		rec.user.AvatarURL = *in.AvatarURL
	}
	if in.CoverURL != nil {
		rec.user.CoverURL = *in.CoverURL
	}
	rec.touch(in.Now)
	return rec.user, nil
}

func (r *memRecord) auth() UserAuth {
	out := UserAuth{User: r.user, PasswordHash: r.passwordHash}
	if r.refreshHash != nil {
		h := *r.refreshHash
		out.RefreshTokenHash = &h
	}
	return out
}

func (r *memRecord) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	r.user.UpdatedAt = now
}
