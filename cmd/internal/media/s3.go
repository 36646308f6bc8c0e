package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectAPI is the subset of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Swappable in tests.
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Store uploads assets to an S3-compatible bucket.
type S3Store struct {
	client  objectAPI
	bucket  string
	prefix  string
	baseURL string
	now     func() time.Time
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds an S3 client from cfg.S3.
// Static credentials are used when an access key is configured; otherwise
// the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	return newS3Store(client, cfg), nil
}

func newS3Store(client objectAPI, cfg Config) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  cfg.S3.Bucket,
		prefix:  cfg.KeyPrefix,
		baseURL: s3PublicBaseURL(cfg),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// s3PublicBaseURL resolves where uploaded objects are reachable.
func s3PublicBaseURL(cfg Config) string {
	if strings.TrimSpace(cfg.PublicBaseURL) != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	if cfg.S3.Endpoint != "" {
		return strings.TrimRight(cfg.S3.Endpoint, "/") + "/" + cfg.S3.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3.Bucket, cfg.S3.Region)
}

// Upload puts the file at localPath under a fresh random key.
func (s *S3Store) Upload(ctx context.Context, localPath string) (Asset, error) {
	if strings.TrimSpace(localPath) == "" {
		return Asset{}, ErrEmptyPath
	}

	f, err := os.Open(localPath)
	if err != nil {
		return Asset{}, fmt.Errorf("media: open upload: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Asset{}, fmt.Errorf("media: stat upload: %w", err)
	}

	sniffed, err := sniff(f)
	if err != nil {
		return Asset{}, err
	}

	ext := cleanExt(localPath)
	key := objectKey(s.prefix, s.now(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String(contentTypeFor(ext, sniffed)),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("media: put object: %w", err)
	}

	return Asset{URL: s.baseURL + "/" + key, Key: key}, nil
}

// Delete removes the object behind url. URLs outside this bucket return ErrForeignURL.
func (s *S3Store) Delete(ctx context.Context, url string) error {
	key, ok := keyFromURL(s.baseURL, url)
	if !ok {
		return ErrForeignURL
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("media: delete object: %w", err)
	}
	return nil
}

// sniff reads the first bytes for content detection and rewinds f.
func sniff(f *os.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("media: read upload: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("media: rewind upload: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	return http.DetectContentType(head[:n]), nil
}
