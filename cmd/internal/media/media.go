package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyPath is returned when Upload is called without a local file.
	ErrEmptyPath = errors.New("media: local path is empty")

	// ErrForeignURL is returned by Delete for URLs this store did not produce.
	ErrForeignURL = errors.New("media: url not managed by this store")
)

// Asset is a stored object.
type Asset struct {
	// URL is the public address persisted on the user record.
	URL string
	// Key is the backend object key (or file name for LocalStore).
	Key string
}

// Store uploads local files and deletes previously uploaded assets.
type Store interface {
	Upload(ctx context.Context, localPath string) (Asset, error)
	Delete(ctx context.Context, url string) error
}

// objectKey builds a date-partitioned random key, e.g. users/2026/10/18/<uuid>.png.
func objectKey(prefix string, now time.Time, ext string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "users"
	}
	return fmt.Sprintf("%s/%d/%d/%d/%s%s", prefix, now.Year(), int(now.Month()), now.Day(), uuid.New(), ext)
}

// cleanExt returns the lower-cased extension of p when it is short and plain.
func cleanExt(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func contentTypeFor(ext string, sniffed string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if sniffed != "" {
		return sniffed
	}
	return "application/octet-stream"
}

func keyFromURL(base, url string) (string, bool) {
	base = strings.TrimRight(base, "/")
	if base == "" || !strings.HasPrefix(url, base+"/") {
		return "", false
	}
	key := strings.TrimPrefix(url, base+"/")
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
