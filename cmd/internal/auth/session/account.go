package session

import (
	"context"
	"strings"

	"vidtube/cmd/identity"
)

// UpdateAccountInput carries profile changes; blank fields are left as is.
type UpdateAccountInput struct {
	FullName string
	Email    string
}

// UpdateAccount changes the display name and/or email.
func (s *Service) UpdateAccount(ctx context.Context, userID string, in UpdateAccountInput) (identity.User, error) {
	const op = "session.UpdateAccount"

	var upd identity.ProfileUpdate
	if v := strings.TrimSpace(in.FullName); v != "" {
		upd.FullName = &v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		upd.Email = &v
	}
	if upd.FullName == nil && upd.Email == nil {
		return identity.User{}, newError(op, ErrValidation, "fullname or email is required")
	}
	upd.Now = s.now()

	u, err := s.store.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return identity.User{}, storeWriteError(op, err)
	}
	return u, nil
}

// UpdateAvatar replaces the avatar with the staged file at localPath.
func (s *Service) UpdateAvatar(ctx context.Context, userID, localPath string) (identity.User, error) {
	return s.replaceAsset(ctx, "session.UpdateAvatar", userID, localPath, true)
}

// UpdateCover replaces the cover image with the staged file at localPath.
func (s *Service) UpdateCover(ctx context.Context, userID, localPath string) (identity.User, error) {
	return s.replaceAsset(ctx, "session.UpdateCover", userID, localPath, false)
}

func (s *Service) replaceAsset(ctx context.Context, op, userID, localPath string, avatar bool) (identity.User, error) {
	defer s.discard(localPath)

	name := "cover image"
	if avatar {
		name = "avatar"
	}
	if strings.TrimSpace(localPath) == "" {
		return identity.User{}, newError(op, ErrValidation, name+" file is missing")
	}

	current, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return identity.User{}, storeWriteError(op, err)
	}

	asset, err := s.assets.Upload(ctx, localPath)
	if err != nil {
		s.log.Warn("media.asset.upload_fail", "op", op, "err", err)
		return identity.User{}, &Error{Op: op, Kind: ErrAssetUploadFailed, Msg: "failed to upload " + name, Err: err}
	}

	upd := identity.ProfileUpdate{Now: s.now()}
	previous := current.CoverURL
	if avatar {
		upd.AvatarURL = &asset.URL
		previous = current.AvatarURL
	} else {
		upd.CoverURL = &asset.URL
	}

	u, err := s.store.UpdateProfile(ctx, userID, upd)
	if err != nil {
		s.deleteAssets(context.WithoutCancel(ctx), asset.URL)
		return identity.User{}, storeWriteError(op, err)
	}

	if previous != "" && previous != asset.URL {
		s.deleteAssets(context.WithoutCancel(ctx), previous)
	}
	return u, nil
}
