package session

import (
	"errors"
	"strings"
	"time"

	"vidtube/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Upper bound on a presented token; anything longer is rejected unparsed.
const maxTokenLen = 4096

// AccessClaims is the identity envelope carried by an access token.
type AccessClaims struct {
	UserID    string
	Username  string
	Email     string
	FullName  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is the minimal content of a refresh token.
type RefreshClaims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessJWT struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
	jwt.RegisteredClaims
}

type refreshJWT struct {
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access and refresh tokens.
// It is immutable after construction and safe for concurrent use.
type TokenManager struct {
	issuer    string
	clockSkew time.Duration

	accessSecret []byte
	accessTTL    time.Duration

	refreshSecret []byte
	refreshTTL    time.Duration
}

// NewTokenManager validates cfg and copies its secrets.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TokenManager{
		issuer:        cfg.Issuer,
		clockSkew:     cfg.ClockSkew,
		accessSecret:  append([]byte(nil), cfg.AccessTokenSecret...),
		accessTTL:     cfg.AccessTokenTTL,
		refreshSecret: append([]byte(nil), cfg.RefreshTokenSecret...),
		refreshTTL:    cfg.RefreshTokenTTL,
	}, nil
}

// IssueAccess signs an access token for u.
func (m *TokenManager) IssueAccess(u identity.User, now time.Time) (string, time.Time, error) {
	exp := jwt.NewNumericDate(now.Add(m.accessTTL))
	claims := accessJWT{
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Time.UTC(), nil
}

// IssueRefresh signs a refresh token for userID.
// The random jti makes two tokens issued within the same second distinct.
func (m *TokenManager) IssueRefresh(userID string, now time.Time) (string, time.Time, error) {
	exp := jwt.NewNumericDate(now.Add(m.refreshTTL))
	claims := refreshJWT{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Time.UTC(), nil
}

// VerifyAccess checks an access token against the access secret.
func (m *TokenManager) VerifyAccess(tok string, now time.Time) (AccessClaims, error) {
	var c accessJWT
	if err := m.verify(tok, m.accessSecret, &c, now); err != nil {
		return AccessClaims{}, err
	}
	return AccessClaims{
		UserID:    c.Subject,
		Username:  c.Username,
		Email:     c.Email,
		FullName:  c.FullName,
		Issuer:    c.Issuer,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}, nil
}

// VerifyRefresh checks a refresh token against the refresh secret.
func (m *TokenManager) VerifyRefresh(tok string, now time.Time) (RefreshClaims, error) {
	var c refreshJWT
	if err := m.verify(tok, m.refreshSecret, &c, now); err != nil {
		return RefreshClaims{}, err
	}
	return RefreshClaims{
		UserID:    c.Subject,
		TokenID:   c.ID,
		IssuedAt:  numericTime(c.IssuedAt),
		ExpiresAt: numericTime(c.ExpiresAt),
	}, nil
}

// verify parses tok into claims and maps jwt errors onto the token kinds.
func (m *TokenManager) verify(tok string, secret []byte, claims jwt.Claims, now time.Time) error {
	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return ErrTokenMalformed
	}

	// A fresh parser per call; the time func pins validation to now.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	_, err := p.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return ErrTokenExpired
		default:
			return ErrTokenInvalid
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || !identity.ValidUserID(sub) {
		return ErrTokenInvalid
	}
	return nil
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time.UTC()
}
