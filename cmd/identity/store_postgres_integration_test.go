package identity

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"vidtube/cmd/identity/migrations"
	"vidtube/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests are opt-in and require VIDTUBE_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_Contract(t *testing.T) {
	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	runStoreContract(t, func(t *testing.T) Store {
		schema := mustCreateTestSchema(t, pool)
		t.Cleanup(func() { mustDropSchema(t, pool, schema) })
		mustApplyIdentitySchema(t, pool, schema)
		return mustNewIdentityStore(t, pool, schema)
	})
}

func TestPostgresStore_RefreshHashCheckConstraint(t *testing.T) {
	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)
	s := mustNewIdentityStore(t, pool, schema)

	ctx := testCtx(t)
	u, err := s.CreateUser(ctx, aliceInput())
	require.NoError(t, err)

	// The table refuses a digest of the wrong length even when written directly.
	_, err = pool.Exec(ctx, `UPDATE `+pgIdent(schema, "users")+` SET refresh_token_hash = 'short' WHERE id = $1`, u.ID)
	require.Error(t, err)

	h := token.HashSHA256Hex("r")
	require.NoError(t, s.SetRefreshTokenHash(ctx, u.ID, &h, time.Now().UTC()))

	var stored string
	err = pool.QueryRow(ctx, `SELECT refresh_token_hash FROM `+pgIdent(schema, "users")+` WHERE id = $1`, u.ID).Scan(&stored)
	require.NoError(t, err)
	assert.Equal(t, h, stored)
}

func TestPostgresStore_ClearCoverURL(t *testing.T) {
	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)
	s := mustNewIdentityStore(t, pool, schema)

	ctx := testCtx(t)
	in := aliceInput()
	in.CoverURL = "https://cdn.example.com/cover.png"
	u, err := s.CreateUser(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.CoverURL, u.CoverURL)

	empty := ""
	got, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{CoverURL: &empty})
	require.NoError(t, err)
	assert.Empty(t, got.CoverURL)

	var cover *string
	err = pool.QueryRow(ctx, `SELECT cover_url FROM `+pgIdent(schema, "users")+` WHERE id = $1`, u.ID).Scan(&cover)
	require.NoError(t, err)
	assert.Nil(t, cover)
}

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("VIDTUBE_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: VIDTUBE_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse VIDTUBE_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (VIDTUBE_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "vidtube_it_" + strings.ToLower(mustNewULIDLike(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

// mustApplyIdentitySchema runs the Up half of every embedded migration with
// the production schema name swapped for the per-test schema.
func mustApplyIdentitySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		up := string(raw)
		if i := strings.Index(up, "-- +goose Down"); i >= 0 {
			up = up[:i]
		}
		up = strings.ReplaceAll(up, DefaultSchema+".", pgxIdent1(schema)+".")
		up = strings.ReplaceAll(up, "SCHEMA IF NOT EXISTS "+DefaultSchema, "SCHEMA IF NOT EXISTS "+pgxIdent1(schema))
		mustExec(t, pool, up)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustExec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}

func pgxIdent1(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}
