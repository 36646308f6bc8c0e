package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"vidtube/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessTokenSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.RefreshTokenSecret = []byte("refresh-secret-0123456789abcdefghij")
	cfg.ClockSkew = 0
	return cfg
}

func testUser(t *testing.T) identity.User {
	t.Helper()
	id, err := identity.NewULID(time.Now().UTC())
	require.NoError(t, err)
	return identity.User{ID: id, Username: "alice", Email: "a@x.com", FullName: "Alice A"}
}

func TestTokenManager_AccessRoundTrip(t *testing.T) {
	m, err := NewTokenManager(testConfig())
	require.NoError(t, err)

	u := testUser(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, exp, err := m.IssueAccess(u, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), exp)

	c, err := m.VerifyAccess(tok, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, u.ID, c.UserID)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, "a@x.com", c.Email)
	assert.Equal(t, "Alice A", c.FullName)
	assert.Equal(t, "vidtube", c.Issuer)
	assert.Equal(t, now, c.IssuedAt)
	assert.Equal(t, exp, c.ExpiresAt)
}

func TestTokenManager_Expiry(t *testing.T) {
	m, err := NewTokenManager(testConfig())
	require.NoError(t, err)

	u := testUser(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	access, _, err := m.IssueAccess(u, now)
	require.NoError(t, err)
	_, err = m.VerifyAccess(access, now.Add(15*time.Minute+time.Second))
	assert.ErrorIs(t, err, ErrTokenExpired)

	refresh, _, err := m.IssueRefresh(u.ID, now)
	require.NoError(t, err)
	_, err = m.VerifyRefresh(refresh, now.Add(10*24*time.Hour+time.Second))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenManager_DefaultConfigExpiresAtTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccessTokenSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.RefreshTokenSecret = []byte("refresh-secret-0123456789abcdefghij")
	m, err := NewTokenManager(cfg)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, _, err := m.IssueAccess(testUser(t), now)
	require.NoError(t, err)

	_, err = m.VerifyAccess(tok, now.Add(cfg.AccessTokenTTL+20*time.Second))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenManager_ClockSkewTolerance(t *testing.T) {
	cfg := testConfig()
	cfg.ClockSkew = 30 * time.Second
	m, err := NewTokenManager(cfg)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok, _, err := m.IssueAccess(testUser(t), now)
	require.NoError(t, err)

	_, err = m.VerifyAccess(tok, now.Add(15*time.Minute+10*time.Second))
	assert.NoError(t, err)
}

func TestTokenManager_RefreshTokensAreUnique(t *testing.T) {
	m, err := NewTokenManager(testConfig())
	require.NoError(t, err)

	u := testUser(t)
	now := time.Now().UTC()
	a, _, err := m.IssueRefresh(u.ID, now)
	require.NoError(t, err)
	b, _, err := m.IssueRefresh(u.ID, now)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c, err := m.VerifyRefresh(a, now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, c.UserID)
	assert.NotEmpty(t, c.TokenID)
}

func TestTokenManager_RejectsForeignTokens(t *testing.T) {
	m, err := NewTokenManager(testConfig())
	require.NoError(t, err)

	u := testUser(t)
	now := time.Now().UTC()

	// Unknown secret.
	otherCfg := testConfig()
	otherCfg.RefreshTokenSecret = []byte("some-other-secret-abcdefgh-0123456789")
	other, err := NewTokenManager(otherCfg)
	require.NoError(t, err)
	forged, _, err := other.IssueRefresh(u.ID, now)
	require.NoError(t, err)
	_, err = m.VerifyRefresh(forged, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// An access token is not a refresh token.
	access, _, err := m.IssueAccess(u, now)
	require.NoError(t, err)
	_, err = m.VerifyRefresh(access, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Wrong issuer.
	issCfg := testConfig()
	issCfg.Issuer = "someone-else"
	iss, err := NewTokenManager(issCfg)
	require.NoError(t, err)
	wrongIss, _, err := iss.IssueAccess(u, now)
	require.NoError(t, err)
	_, err = m.VerifyAccess(wrongIss, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// alg=none.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   u.ID,
		Issuer:    "vidtube",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.VerifyAccess(unsigned, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenManager_Malformed(t *testing.T) {
	m, err := NewTokenManager(testConfig())
	require.NoError(t, err)

	for _, tok := range []string{"", "   ", "not-a-jwt", "a.b.c", strings.Repeat("x", maxTokenLen+1)} {
		_, err := m.VerifyAccess(tok, time.Now())
		assert.True(t, errors.Is(err, ErrTokenMalformed), "token %q: %v", tok, err)
	}
}

func TestTokenManager_RequiresSubject(t *testing.T) {
	cfg := testConfig()
	m, err := NewTokenManager(cfg)
	require.NoError(t, err)

	now := time.Now().UTC()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(cfg.AccessTokenSecret)
	require.NoError(t, err)

	_, err = m.VerifyAccess(tok, now)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokenManager_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTokenSecret = nil
	_, err := NewTokenManager(cfg)
	assert.ErrorIs(t, err, ErrConfig)
}
