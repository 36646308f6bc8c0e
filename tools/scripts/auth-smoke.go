// Package main provides a CI-friendly HTTP smoke test for the vidtube auth API.
//
// It validates, against a running server:
//   - multipart registration with an avatar
//   - login (cookies + JSON tokens)
//   - current-user via bearer token
//   - refresh rotation and rejection of the rotated-out token
//   - logout revoking the refresh token
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 1x1 transparent PNG.
var avatarPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type smoke struct {
	base    string
	client  *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8000", "Server base URL")
		password = flag.String("password", "Smoke-test-pw1", "Password for the throwaway account")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	s := &smoke{
		base:    strings.TrimRight(*baseURL, "/") + "/api/v1/users",
		client:  &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	username := "smoke_" + suffix
	email := "smoke+" + suffix + "@example.com"

	s.mustRegister(username, email, *password)

	login := s.mustJSON(http.MethodPost, "/login", "", map[string]string{
		"username": username, "email": email, "password": *password,
	}, http.StatusOK)
	var first tokens
	mustDecode(login.Data, &first)
	if first.AccessToken == "" || first.RefreshToken == "" {
		fatalf("login: tokens missing from body (VIDTUBE_AUTH_TOKENS_IN_BODY=false?)")
	}

	me := s.mustJSON(http.MethodGet, "/current-user", first.AccessToken, nil, http.StatusOK)
	var u struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	mustDecode(me.Data, &u)
	if u.Username != username {
		fatalf("current-user: username=%q want %q", u.Username, username)
	}

	rotated := s.mustJSON(http.MethodPost, "/refresh-token", "", map[string]string{"refreshToken": first.RefreshToken}, http.StatusOK)
	var second tokens
	mustDecode(rotated.Data, &second)
	if second.RefreshToken == "" || second.RefreshToken == first.RefreshToken {
		fatalf("refresh: token was not rotated")
	}

	s.mustJSON(http.MethodPost, "/refresh-token", "", map[string]string{"refreshToken": first.RefreshToken}, http.StatusUnauthorized)

	s.mustJSON(http.MethodPost, "/logout", second.AccessToken, nil, http.StatusOK)
	s.mustJSON(http.MethodPost, "/refresh-token", "", map[string]string{"refreshToken": second.RefreshToken}, http.StatusUnauthorized)

	fmt.Printf("OK: user_id=%s username=%s\n", u.ID, username)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (s *smoke) mustRegister(username, email, password string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"username", username},
		{"email", email},
		{"fullname", "Smoke Test"},
		{"password", password},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			fatalf("register: write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		fatalf("register: create file part: %v", err)
	}
	if _, err := fw.Write(avatarPNG); err != nil {
		fatalf("register: write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		fatalf("register: close multipart: %v", err)
	}

	s.mustDo(http.MethodPost, "/register", "", mw.FormDataContentType(), &buf, http.StatusCreated)
}

func (s *smoke) mustJSON(method, path, bearer string, body any, want int) envelope {
	var rd io.Reader
	ct := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("%s %s: marshal: %v", method, path, err)
		}
		rd = bytes.NewReader(b)
		ct = "application/json"
	}
	return s.mustDo(method, path, bearer, ct, rd, want)
}

func (s *smoke) mustDo(method, path, bearer, contentType string, body io.Reader, want int) envelope {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, body)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode != want {
		msg := strings.TrimSpace(string(raw))
		if env.Error != nil {
			msg = fmt.Sprintf("code=%q msg=%q", env.Error.Code, env.Error.Message)
		}
		fatalf("%s %s: status=%d want %d: %s", method, path, resp.StatusCode, want, msg)
	}
	if s.verbose {
		fmt.Printf("%s %s -> %d\n", method, path, resp.StatusCode)
	}
	return env
}

func mustDecode(raw json.RawMessage, dst any) {
	if err := json.Unmarshal(raw, dst); err != nil {
		fatalf("decode data: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
