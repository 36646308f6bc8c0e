package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vidtube/cmd/identity"
	"vidtube/cmd/internal/auth/session"
)

// Sessions is the auth core the handler drives. *session.Service implements it.
type Sessions interface {
	Register(ctx context.Context, in session.RegisterInput) (identity.User, error)
	Login(ctx context.Context, in session.LoginInput) (session.Session, error)
	Authenticate(ctx context.Context, accessToken string) (identity.User, error)
	Refresh(ctx context.Context, refreshToken string) (session.Session, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID string, in session.ChangePasswordInput) error
	CurrentUser(ctx context.Context, userID string) (identity.User, error)
	UpdateAccount(ctx context.Context, userID string, in session.UpdateAccountInput) (identity.User, error)
	UpdateAvatar(ctx context.Context, userID, localPath string) (identity.User, error)
	UpdateCover(ctx context.Context, userID, localPath string) (identity.User, error)
	RevokesOnPasswordChange() bool
}

var _ Sessions = (*session.Service)(nil)

// Handler wires the /api/v1/users endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions Sessions
	now      func() time.Time
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions Sessions) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	const base = "/api/v1/users"

	mux.HandleFunc("POST "+base+"/register", h.handleRegister)
	mux.HandleFunc("POST "+base+"/login", h.handleLogin)
	mux.HandleFunc("POST "+base+"/refresh-token", h.handleRefresh)

	mux.Handle("POST "+base+"/logout", h.RequireAuth(http.HandlerFunc(h.handleLogout)))
	mux.Handle("POST "+base+"/change-password", h.RequireAuth(http.HandlerFunc(h.handleChangePassword)))
	mux.Handle("GET "+base+"/current-user", h.RequireAuth(http.HandlerFunc(h.handleCurrentUser)))
	mux.Handle("PATCH "+base+"/update-account", h.RequireAuth(http.HandlerFunc(h.handleUpdateAccount)))
	mux.Handle("PATCH "+base+"/avatar", h.RequireAuth(http.HandlerFunc(h.handleUpdateAvatar)))
	mux.Handle("PATCH "+base+"/cover-image", h.RequireAuth(http.HandlerFunc(h.handleUpdateCover)))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	form, err := h.stageMultipart(w, r, "avatar", "cover")
	if err != nil {
		h.writeStageError(w, r, err)
		return
	}
	defer form.cleanup()

	u, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Username:   form.value("username"),
		Email:      form.value("email"),
		FullName:   form.value("fullname"),
		Password:   form.value("password"),
		AvatarPath: form.file("avatar"),
		CoverPath:  form.file("cover"),
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.register.fail", err)
		return
	}

	h.log.Info("auth.register.ok", "user_id", u.ID)
	writeOK(w, http.StatusCreated, toUserResponse(u), "User registered successfully")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	sess, err := h.sessions.Login(r.Context(), session.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.login.fail", err)
		return
	}

	h.setSessionCookies(w, sess, h.now())
	writeOK(w, http.StatusOK, h.toLoginResponse(sess), "User logged in successfully")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tok := cookieValue(r, h.cfg.RefreshCookieName)
	if tok == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		tok = strings.TrimSpace(req.RefreshToken)
	}

	sess, err := h.sessions.Refresh(r.Context(), tok)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			h.clearSessionCookies(w)
		}
		h.writeServiceError(w, r, "auth.refresh.fail", err)
		return
	}

	h.setSessionCookies(w, sess, h.now())
	writeOK(w, http.StatusOK, h.toRefreshResponse(sess), "Access token refreshed")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())

	if err := h.sessions.Logout(r.Context(), u.ID); err != nil {
		h.writeServiceError(w, r, "auth.logout.fail", err)
		return
	}

	h.clearSessionCookies(w)
	writeOK(w, http.StatusOK, nil, "User logged out")
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	err := h.sessions.ChangePassword(r.Context(), u.ID, session.ChangePasswordInput{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.change_password.fail", err)
		return
	}

	if h.sessions.RevokesOnPasswordChange() {
		h.clearSessionCookies(w)
	}
	writeOK(w, http.StatusOK, nil, "Password changed successfully")
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())

	cur, err := h.sessions.CurrentUser(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, r, "auth.current_user.fail", err)
		return
	}
	writeOK(w, http.StatusOK, toUserResponse(cur), "Current user fetched successfully")
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())

	var req updateAccountRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	updated, err := h.sessions.UpdateAccount(r.Context(), u.ID, session.UpdateAccountInput{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.update_account.fail", err)
		return
	}
	writeOK(w, http.StatusOK, toUserResponse(updated), "Account details updated successfully")
}

func (h *Handler) handleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.handleAssetUpdate(w, r, "avatar", h.sessions.UpdateAvatar, "Avatar updated successfully")
}

func (h *Handler) handleUpdateCover(w http.ResponseWriter, r *http.Request) {
	h.handleAssetUpdate(w, r, "cover", h.sessions.UpdateCover, "Cover image updated successfully")
}

type assetUpdateFunc func(ctx context.Context, userID, localPath string) (identity.User, error)

func (h *Handler) handleAssetUpdate(w http.ResponseWriter, r *http.Request, field string, update assetUpdateFunc, okMsg string) {
	u, _ := UserFromContext(r.Context())

	form, err := h.stageMultipart(w, r, field)
	if err != nil {
		h.writeStageError(w, r, err)
		return
	}
	defer form.cleanup()

	path := form.file(field)
	if path == "" {
		writeError(w, http.StatusBadRequest, "validation_error", field+" file is missing")
		return
	}

	updated, err := update(r.Context(), u.ID, path)
	if err != nil {
		h.writeServiceError(w, r, "auth.update_"+field+".fail", err)
		return
	}
	writeOK(w, http.StatusOK, toUserResponse(updated), okMsg)
}
