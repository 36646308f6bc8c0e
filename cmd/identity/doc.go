// Package identity implements the vidtube credential store.
//
// It owns the persisted user record (identity fields, password hash, the
// digest of the current refresh token) and exposes it through the Store
// interface. Two implementations ship here: PostgresStore for production
// and MemoryStore for local development and tests.
//
// Sensitive fields never appear on User. They are only reachable through
// UserAuth, which is returned by the explicitly named GetUserAuth* methods.
package identity
