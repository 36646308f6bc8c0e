package authapi

import (
	"log/slog"
	"net/http"

	"vidtube/cmd/internal/auth/session"
)

type errorMapping struct {
	status int
	code   string
}

var kindStatus = map[error]errorMapping{
	session.ErrValidation:         {http.StatusBadRequest, "validation_error"},
	session.ErrConflict:           {http.StatusConflict, "conflict"},
	session.ErrNotFound:           {http.StatusNotFound, "not_found"},
	session.ErrInvalidCredentials: {http.StatusUnauthorized, "invalid_credentials"},
	session.ErrUnauthorized:       {http.StatusUnauthorized, "unauthorized"},
	session.ErrMismatch:           {http.StatusBadRequest, "password_mismatch"},
	session.ErrAssetUploadFailed:  {http.StatusBadGateway, "asset_upload_failed"},
}

// writeServiceError maps a session error onto the wire. Internal causes
// are logged under event and never sent to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	kind := session.KindOf(err)
	m, ok := kindStatus[kind]
	if !ok {
		h.log.Error(event, "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	lvl := slog.LevelInfo
	if kind == session.ErrAssetUploadFailed {
		lvl = slog.LevelWarn
	}
	h.log.Log(r.Context(), lvl, event, "err", err, "ip", ipString(clientIP(r, h.cfg.TrustProxy)))
	writeError(w, m.status, m.code, session.Message(err))
}
