package authapi

import (
	"vidtube/cmd/identity"
	"vidtube/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.AvatarURL,
		CoverImage: u.CoverURL,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (h *Handler) toLoginResponse(s session.Session) loginResponse {
	out := loginResponse{User: toUserResponse(s.User)}
	if h.cfg.TokensInBody {
		out.AccessToken = s.AccessToken
		out.RefreshToken = s.RefreshToken
	}
	return out
}

func (h *Handler) toRefreshResponse(s session.Session) refreshResponse {
	if !h.cfg.TokensInBody {
		return refreshResponse{}
	}
	return refreshResponse{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}
