// Package session implements vidtube's account session core.
//
// A user holds at most one live refresh token. Its keyed digest is stored on
// the user record and is the only thing that makes a refresh token usable:
// logout clears it, refresh swaps it atomically, and (by default) a password
// change clears it too. Access tokens are short-lived HS256 JWTs and are
// never looked up server-side beyond resolving their subject.
//
// Transport (cookies, headers, JSON) lives in package api.
package session
