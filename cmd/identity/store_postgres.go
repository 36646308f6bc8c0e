package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"vidtube/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - RotateRefreshTokenHash is atomic and serialized via SELECT ... FOR UPDATE on the user row.
// - Every other mutation is a single UPDATE statement, so it is atomic on its own.
// - StartSession and UpdatePasswordHash are guarded on the verified password hash.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema created by the embedded migrations.
const DefaultSchema = "vidtube"

// WithSchema sets the Postgres schema used by the store (default "vidtube").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

const userColumns = `id, username, email, full_name, avatar_url, cover_url, created_at, updated_at`

// CreateUser inserts a new account. Uniqueness is enforced by the
// uq_users_username / uq_users_email constraints and surfaced as ConflictError.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := s.ready(ctx, op); err != nil {
		return User{}, err
	}
	in, err := normalizeCreate(op, in)
	if err != nil {
		return User{}, err
	}

	userID, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, email, full_name, password_hash, avatar_url, cover_url, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		userID,
		in.Username,
		in.Email,
		in.FullName,
		in.PasswordHash,
		in.AvatarURL,
		pgNullIfEmpty(in.CoverURL),
		in.Now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:        userID,
		Username:  in.Username,
		Email:     in.Email,
		FullName:  in.FullName,
		AvatarURL: in.AvatarURL,
		CoverURL:  in.CoverURL,
		CreatedAt: in.Now,
		UpdatedAt: in.Now,
	}, nil
}

// GetUserByID returns the public view of an account.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	if err := s.ready(ctx, op); err != nil {
		return User{}, err
	}
	if !ValidUserID(userID) {
		return User{}, userNotFound(op)
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM `+users+` WHERE id = $1`, userID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, err
	}
	return u, nil
}

// FindUserByUsernameOrEmail looks an account up by either identifier.
func (s *PostgresStore) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (User, error) {
	a, err := s.GetUserAuthByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return User{}, err
	}
	return a.User, nil
}

// GetUserAuthByID returns the credential view of an account.
func (s *PostgresStore) GetUserAuthByID(ctx context.Context, userID string) (UserAuth, error) {
	const op = "identity.GetUserAuthByID"

	if err := s.ready(ctx, op); err != nil {
		return UserAuth{}, err
	}
	if !ValidUserID(userID) {
		return UserAuth{}, userNotFound(op)
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash, refresh_token_hash
		   FROM `+users+`
		  WHERE id = $1`,
		userID,
	)

	a, err := scanUserAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, userNotFound(op)
		}
		return UserAuth{}, err
	}
	return a, nil
}

// GetUserAuthByUsernameOrEmail returns the credential view of an account
// matching either identifier; a username match wins.
func (s *PostgresStore) GetUserAuthByUsernameOrEmail(ctx context.Context, username, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByUsernameOrEmail"

	if err := s.ready(ctx, op); err != nil {
		return UserAuth{}, err
	}
	username = NormalizeUsername(username)
	email = NormalizeEmail(email)
	if username == "" && email == "" {
		return UserAuth{}, invalid(op, "username or email is required")
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash, refresh_token_hash
		   FROM `+users+`
		  WHERE username = $1 OR email = $2
		  ORDER BY (username = $1) DESC, created_at ASC
		  LIMIT 1`,
		username, email,
	)

	a, err := scanUserAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, userNotFound(op)
		}
		return UserAuth{}, err
	}
	return a, nil
}

// SetRefreshTokenHash replaces (or clears, when hash is nil) the stored digest.
func (s *PostgresStore) SetRefreshTokenHash(ctx context.Context, userID string, hash *string, now time.Time) error {
	const op = "identity.SetRefreshTokenHash"

	if err := s.ready(ctx, op); err != nil {
		return err
	}
	if hash != nil && len(*hash) != token.DigestHexLen {
		return invalid(op, "refresh token hash must be a 64-char digest")
	}
	if !ValidUserID(userID) {
		return userNotFound(op)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+users+`
		    SET refresh_token_hash = $1,
		        updated_at = $2
		  WHERE id = $3`,
		hash, now, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return userNotFound(op)
	}
	return nil
}

// RotateRefreshTokenHash swaps the stored digest when it matches oldHash.
//
// Returns ErrNotActive when:
// - no refresh token is stored (logged out / password changed), OR
// - the stored digest differs (stale or already rotated token), OR
// - a concurrent rotation already won.
func (s *PostgresStore) RotateRefreshTokenHash(ctx context.Context, userID, oldHash, newHash string, now time.Time) error {
	const op = "identity.RotateRefreshTokenHash"

	if err := s.ready(ctx, op); err != nil {
		return err
	}
	if len(newHash) != token.DigestHexLen {
		return invalid(op, "refresh token hash must be a 64-char digest")
	}
	if !ValidUserID(userID) {
		return userNotFound(op)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the user row to serialize rotations (single-writer).
	var stored *string
	err = tx.QueryRow(ctx,
		`SELECT refresh_token_hash
		   FROM `+users+`
		  WHERE id = $1
		  FOR UPDATE`,
		userID,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userNotFound(op)
		}
		return err
	}

	// Constant-time compare of stored digest vs presented digest.
	if stored == nil || !token.Equal(*stored, oldHash) {
		return notActiveRotate()
	}

	ct, err := tx.Exec(ctx,
		`UPDATE `+users+`
		    SET refresh_token_hash = $1,
		        updated_at = $2
		  WHERE id = $3
		    AND refresh_token_hash = $4`,
		newHash, now, userID, oldHash,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return notActiveRotate()
	}

	return tx.Commit(ctx)
}

// StartSession stores refreshHash in a single UPDATE guarded by the
// password hash the caller verified.
func (s *PostgresStore) StartSession(ctx context.Context, userID, expectedPasswordHash, refreshHash string, now time.Time) error {
	const op = "identity.StartSession"

	if err := s.ready(ctx, op); err != nil {
		return err
	}
	if len(refreshHash) != token.DigestHexLen {
		return invalid(op, "refresh token hash must be a 64-char digest")
	}
	if !ValidUserID(userID) {
		return userNotFound(op)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+users+`
		    SET refresh_token_hash = $1,
		        updated_at = $2
		  WHERE id = $3
		    AND password_hash = $4`,
		refreshHash, now, userID, expectedPasswordHash,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.missedGuard(ctx, op, userID)
	}
	return nil
}

// UpdatePasswordHash swaps expectedOldHash for newHash, optionally revoking
// the refresh token in the same statement.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, expectedOldHash, newHash string, revokeRefresh bool, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := s.ready(ctx, op); err != nil {
		return err
	}
	if strings.TrimSpace(newHash) == "" {
		return invalid(op, "password hash is required")
	}
	if !ValidUserID(userID) {
		return userNotFound(op)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+users+`
		    SET password_hash = $1,
		        refresh_token_hash = CASE WHEN $2 THEN NULL ELSE refresh_token_hash END,
		        updated_at = $3
		  WHERE id = $4
		    AND password_hash = $5`,
		newHash, revokeRefresh, now, userID, expectedOldHash,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.missedGuard(ctx, op, userID)
	}
	return nil
}

// missedGuard tells a missing user apart from a password-hash guard that
// no longer matches.
func (s *PostgresStore) missedGuard(ctx context.Context, op, userID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+pgIdent(s.schema, "users")+` WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return userNotFound(op)
	}
	return credentialChanged(op)
}

// UpdateProfile applies the non-nil fields of in and returns the updated user.
func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error) {
	const op = "identity.UpdateProfile"

	if err := s.ready(ctx, op); err != nil {
		return User{}, err
	}
	in, err := normalizeProfile(op, in)
	if err != nil {
		return User{}, err
	}
	if !ValidUserID(userID) {
		return User{}, userNotFound(op)
	}

	users := pgIdent(s.schema, "users")

	// cover_url uses NULLIF so an explicit empty string clears it.
	row := s.pool.QueryRow(ctx,
		`UPDATE `+users+`
		    SET full_name  = COALESCE($1, full_name),
		        email      = COALESCE($2, email),
		        avatar_url = COALESCE($3, avatar_url),
		        cover_url  = CASE WHEN $4::text IS NULL THEN cover_url ELSE NULLIF($4::text, '') END,
		        updated_at = $5
		  WHERE id = $6
		  RETURNING `+userColumns,
		in.FullName, in.Email, in.AvatarURL, in.CoverURL, in.Now, userID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

// ---- helpers ----

func (s *PostgresStore) ready(ctx context.Context, op string) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	return ctx.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u     User
		cover *string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.AvatarURL, &cover, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	if cover != nil {
		u.CoverURL = *cover
	}
	return u, nil
}

func scanUserAuth(row pgx.Row) (UserAuth, error) {
	var (
		a     UserAuth
		cover *string
	)
	err := row.Scan(
		&a.User.ID,
		&a.User.Username,
		&a.User.Email,
		&a.User.FullName,
		&a.User.AvatarURL,
		&cover,
		&a.User.CreatedAt,
		&a.User.UpdatedAt,
		&a.PasswordHash,
		&a.RefreshTokenHash,
	)
	if err != nil {
		return UserAuth{}, err
	}
	if cover != nil {
		a.User.CoverURL = *cover
	}
	return a, nil
}

func pgNullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username":
		return "username", true
	case "uq_users_email":
		return "email", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		default:
			return "unique", true
		}
	}
}
