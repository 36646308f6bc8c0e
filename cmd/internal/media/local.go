package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore copies uploads into a directory served over HTTP.
type LocalStore struct {
	dir     string
	prefix  string
	baseURL string
	now     func() time.Time
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates cfg.LocalDir if needed.
func NewLocalStore(cfg Config) (*LocalStore, error) {
	dir := filepath.Clean(cfg.LocalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create local dir: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		prefix:  cfg.KeyPrefix,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dir is the root directory, for mounting a file server.
func (s *LocalStore) Dir() string { return s.dir }

// Upload copies localPath to <dir>/<key>.
func (s *LocalStore) Upload(ctx context.Context, localPath string) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	if strings.TrimSpace(localPath) == "" {
		return Asset{}, ErrEmptyPath
	}

	src, err := os.Open(localPath)
	if err != nil {
		return Asset{}, fmt.Errorf("media: open upload: %w", err)
	}
	defer src.Close()

	key := objectKey(s.prefix, s.now(), cleanExt(localPath))
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Asset{}, fmt.Errorf("media: create dir: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("media: create file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return Asset{}, fmt.Errorf("media: copy upload: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return Asset{}, fmt.Errorf("media: close file: %w", err)
	}

	return Asset{URL: s.baseURL + "/" + key, Key: key}, nil
}

// Delete removes the file behind url. Missing files are not an error.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := keyFromURL(s.baseURL, url)
	if !ok {
		return ErrForeignURL
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media: delete file: %w", err)
	}
	return nil
}
