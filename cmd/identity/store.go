package identity

import (
	"context"
	"time"
)

// User is the public view of an account. It never carries credentials,
// so it is always safe to serialize.
type User struct {
	ID       string
	Username string // stored normalized (trimmed, lower-case)
	Email    string // stored normalized (trimmed, lower-case)
	FullName string

	AvatarURL string
	CoverURL  string // empty when no cover image was uploaded

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAuth is the credential view of an account.
// IMPORTANT: it must not leave the auth core; transport code serializes User only.
type UserAuth struct {
	User User

	PasswordHash string

	// RefreshTokenHash is the digest of the last issued refresh token.
	// Nil means no refresh token is currently valid for the user.
	RefreshTokenHash *string
}

// CreateUserInput describes a new account.
// PasswordHash is produced by the password hasher; the store never sees plaintext.
type CreateUserInput struct {
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	AvatarURL    string
	CoverURL     string
	Now          time.Time
}

// ProfileUpdate carries optional field changes. Nil fields are left untouched.
type ProfileUpdate struct {
	FullName  *string
	Email     *string
	AvatarURL *string
	CoverURL  *string
	Now       time.Time
}

func (p ProfileUpdate) empty() bool {
	return p.FullName == nil && p.Email == nil && p.AvatarURL == nil && p.CoverURL == nil
}

// Store is the credential persistence boundary.
//
// Implementations must make every refresh-token mutation atomic per user:
// a login, refresh, logout or password change on one account never
// interleaves with another operation on the same account.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, userID string) (User, error)

	// FindUserByUsernameOrEmail returns the account whose username or email
	// matches (after normalization). A username match wins over an email match.
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (User, error)

	GetUserAuthByID(ctx context.Context, userID string) (UserAuth, error)
	GetUserAuthByUsernameOrEmail(ctx context.Context, username, email string) (UserAuth, error)

	// SetRefreshTokenHash replaces the stored digest unconditionally.
	// A nil hash clears it (logout). Clearing an already empty value is not an error.
	SetRefreshTokenHash(ctx context.Context, userID string, hash *string, now time.Time) error

	// StartSession stores refreshHash only while the password hash is still
	// expectedPasswordHash. Returns ErrNotActive when it has changed.
	StartSession(ctx context.Context, userID, expectedPasswordHash, refreshHash string, now time.Time) error

	// RotateRefreshTokenHash swaps oldHash for newHash only if oldHash is the
	// stored value. Returns ErrNotActive when nothing is stored or it differs.
	RotateRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string, now time.Time) error

	// UpdatePasswordHash swaps expectedOldHash for newHash. When revokeRefresh
	// is true the stored refresh digest is cleared in the same write.
	// Returns ErrNotActive when the stored hash is no longer expectedOldHash.
	UpdatePasswordHash(ctx context.Context, userID, expectedOldHash, newHash string, revokeRefresh bool, now time.Time) error

	UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error)
}
