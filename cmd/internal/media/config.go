package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Driver selects the Store implementation.
type Driver string

const (
	DriverLocal Driver = "local"
	DriverS3    Driver = "s3"
)

const defaultLocalBaseURL = "http://localhost:8000/media"

// ErrConfig is returned for invalid media configuration.
var ErrConfig = errors.New("media: invalid config")

// Config selects and configures the asset backend.
type Config struct {
	Driver Driver

	// KeyPrefix is the first path segment of every object key.
	KeyPrefix string

	// PublicBaseURL is the address assets are reachable under.
	// For LocalStore it is usually the server's /media path.
	PublicBaseURL string

	// LocalDir is the directory LocalStore writes into.
	LocalDir string

	S3 S3Config
}

// S3Config holds the S3-compatible connection settings.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Endpoint     string // empty means AWS
	Bucket       string
	UsePathStyle bool
}

// DefaultConfig stores files on local disk under ./public/media.
// PublicBaseURL is left empty; LoadConfigFromEnv fills it for the local driver.
func DefaultConfig() Config {
	return Config{
		Driver:    DriverLocal,
		KeyPrefix: "users",
		LocalDir:  "./public/media",
		S3:        S3Config{Region: "us-east-1"},
	}
}

// LoadConfigFromEnv reads:
//   - VIDTUBE_MEDIA_DRIVER (local|s3)
//   - VIDTUBE_MEDIA_KEY_PREFIX
//   - VIDTUBE_MEDIA_PUBLIC_BASE_URL
//   - VIDTUBE_MEDIA_LOCAL_DIR
//   - VIDTUBE_S3_REGION, VIDTUBE_S3_ACCESS_KEY, VIDTUBE_S3_SECRET_KEY,
//     VIDTUBE_S3_ENDPOINT, VIDTUBE_S3_BUCKET, VIDTUBE_S3_PATH_STYLE
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("VIDTUBE_MEDIA_DRIVER"))); v != "" {
		cfg.Driver = Driver(v)
	}
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_MEDIA_KEY_PREFIX")); v != "" {
		cfg.KeyPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_MEDIA_PUBLIC_BASE_URL")); v != "" {
		cfg.PublicBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_MEDIA_LOCAL_DIR")); v != "" {
		cfg.LocalDir = v
	}

	if v := strings.TrimSpace(os.Getenv("VIDTUBE_S3_REGION")); v != "" {
		cfg.S3.Region = v
	}
	cfg.S3.AccessKey = strings.TrimSpace(os.Getenv("VIDTUBE_S3_ACCESS_KEY"))
	cfg.S3.SecretKey = os.Getenv("VIDTUBE_S3_SECRET_KEY")
	cfg.S3.Endpoint = strings.TrimRight(strings.TrimSpace(os.Getenv("VIDTUBE_S3_ENDPOINT")), "/")
	cfg.S3.Bucket = strings.TrimSpace(os.Getenv("VIDTUBE_S3_BUCKET"))
	if v := strings.TrimSpace(os.Getenv("VIDTUBE_S3_PATH_STYLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: VIDTUBE_S3_PATH_STYLE: %v", ErrConfig, err)
		}
		cfg.S3.UsePathStyle = b
	}

	if cfg.Driver == DriverLocal && cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = defaultLocalBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings required by the selected driver.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverLocal:
		if strings.TrimSpace(c.LocalDir) == "" {
			return fmt.Errorf("%w: local dir is required", ErrConfig)
		}
		if strings.TrimSpace(c.PublicBaseURL) == "" {
			return fmt.Errorf("%w: public base url is required for the local driver", ErrConfig)
		}
	case DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: VIDTUBE_S3_BUCKET is required", ErrConfig)
		}
		if c.S3.Region == "" {
			return fmt.Errorf("%w: VIDTUBE_S3_REGION is required", ErrConfig)
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			return fmt.Errorf("%w: S3 access key and secret key must be set together", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrConfig, c.Driver)
	}
	return nil
}

// New builds the Store selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverS3:
		return NewS3Store(ctx, cfg)
	default:
		return NewLocalStore(cfg)
	}
}
