package session

import (
	"context"

	"vidtube/cmd/identity"
	"vidtube/cmd/security/token"
)

// Refresh exchanges a refresh token for a new token pair.
//
// The presented token must verify against the refresh secret AND its digest
// must equal the one stored on the user. The swap to the new digest is a
// compare-and-swap in the store, so each refresh token works exactly once
// even under concurrent use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (sess Session, err error) {
	const op = "session.Refresh"
	defer func() { s.rec.ObserveAuth("refresh", outcome(err)) }()

	if refreshToken == "" {
		return Session{}, unauthorized(op, "unauthorized request", ErrTokenMalformed)
	}

	now := s.now()
	claims, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		return Session{}, unauthorized(op, tokenMessage(err, "invalid refresh token"), err)
	}

	auth, err := s.store.GetUserAuthByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Session{}, unauthorized(op, "invalid refresh token", ErrTokenInvalid)
		}
		return Session{}, internal(op, err)
	}

	presented := s.hasher.Hex(refreshToken)
	if auth.RefreshTokenHash == nil || !token.Equal(*auth.RefreshTokenHash, presented) {
		return Session{}, unauthorized(op, "refresh token is expired or used", ErrTokenInvalid)
	}

	sess, nextHash, err := s.issue(auth.User, now)
	if err != nil {
		return Session{}, internal(op, err)
	}

	if err := s.store.RotateRefreshTokenHash(ctx, auth.User.ID, presented, nextHash, now); err != nil {
		switch {
		case identity.IsNotActive(err):
			// Lost a race with another refresh, a logout or a password change.
			return Session{}, unauthorized(op, "refresh token is expired or used", ErrTokenInvalid)
		case identity.IsNotFound(err):
			return Session{}, unauthorized(op, "invalid refresh token", ErrTokenInvalid)
		default:
			return Session{}, internal(op, err)
		}
	}
	return sess, nil
}
