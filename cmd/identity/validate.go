package identity

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxUsernameLen = 64
	maxEmailLen    = 254
	maxFullNameLen = 128
)

// normalizeCreate trims/normalizes the input and enforces the record invariants:
// every identity field present, password hash non-empty, avatar present.
func normalizeCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	out := CreateUserInput{
		Username:     NormalizeUsername(in.Username),
		Email:        NormalizeEmail(in.Email),
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: in.PasswordHash,
		AvatarURL:    strings.TrimSpace(in.AvatarURL),
		CoverURL:     strings.TrimSpace(in.CoverURL),
		Now:          in.Now,
	}

	switch {
	case out.Username == "":
		return CreateUserInput{}, invalid(op, "username is required")
	case out.Email == "":
		return CreateUserInput{}, invalid(op, "email is required")
	case out.FullName == "":
		return CreateUserInput{}, invalid(op, "fullname is required")
	case strings.TrimSpace(out.PasswordHash) == "":
		return CreateUserInput{}, invalid(op, "password hash is required")
	case out.AvatarURL == "":
		return CreateUserInput{}, invalid(op, "avatar is required")
	}

	if err := checkUsername(op, out.Username); err != nil {
		return CreateUserInput{}, err
	}
	if err := checkEmail(op, out.Email); err != nil {
		return CreateUserInput{}, err
	}
	if utf8.RuneCountInString(out.FullName) > maxFullNameLen {
		return CreateUserInput{}, invalid(op, "fullname too long")
	}

	if out.Now.IsZero() {
		out.Now = time.Now().UTC()
	}
	return out, nil
}

// normalizeProfile applies the same rules to the fields present in p.
func normalizeProfile(op string, p ProfileUpdate) (ProfileUpdate, error) {
	if p.empty() {
		return ProfileUpdate{}, invalid(op, "nothing to update")
	}
	out := ProfileUpdate{Now: p.Now}
	if out.Now.IsZero() {
		out.Now = time.Now().UTC()
	}

	if p.FullName != nil {
		v := strings.TrimSpace(*p.FullName)
		if v == "" {
			return ProfileUpdate{}, invalid(op, "fullname is required")
		}
		if utf8.RuneCountInString(v) > maxFullNameLen {
			return ProfileUpdate{}, invalid(op, "fullname too long")
		}
		out.FullName = &v
	}
	if p.Email != nil {
		v := NormalizeEmail(*p.Email)
		if v == "" {
			return ProfileUpdate{}, invalid(op, "email is required")
		}
		if err := checkEmail(op, v); err != nil {
			return ProfileUpdate{}, err
		}
		out.Email = &v
	}
	if p.AvatarURL != nil {
		v := strings.TrimSpace(*p.AvatarURL)
		if v == "" {
			return ProfileUpdate{}, invalid(op, "avatar is required")
		}
		out.AvatarURL = &v
	}
	if p.CoverURL != nil {
		v := strings.TrimSpace(*p.CoverURL)
		out.CoverURL = &v
	}
	return out, nil
}

func checkUsername(op, u string) error {
	if utf8.RuneCountInString(u) > maxUsernameLen {
		return invalid(op, "username too long")
	}
	if strings.ContainsAny(u, " \t\r\n@") {
		return invalid(op, "username contains invalid characters")
	}
	return nil
}

func checkEmail(op, e string) error {
	if len(e) > maxEmailLen {
		return invalid(op, "email too long")
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return invalid(op, "email is malformed")
	}
	return nil
}
