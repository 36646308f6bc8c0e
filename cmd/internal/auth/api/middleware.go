package authapi

import (
	"context"
	"net/http"

	"vidtube/cmd/identity"
)

type userCtxKey struct{}

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(identity.User)
	return u, ok
}

// RequireAuth rejects requests without a valid access token and attaches
// the token's user to the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := h.accessToken(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized request")
			return
		}
		u, err := h.sessions.Authenticate(r.Context(), tok)
		if err != nil {
			h.writeServiceError(w, r, "auth.authenticate.fail", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey{}, u)))
	})
}
