package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 uploader.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// S3Uploader uploads project archives to AWS S3.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader loads AWS config and prepares an uploader.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return &S3Uploader{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Upload stores the local archive under a timestamped key and returns the
// resulting storage key.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	key := u.objectKey("archives", fmt.Sprintf("%d-%s", time.Now().UTC().Unix(), filepath.Base(localPath)))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		Body:        file,
		ContentType: ptr("application/gzip"),
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

// Exists reports whether the local archive candidate is readable.
func (u *S3Uploader) Exists(localPath string) bool {
	info, err := os.Stat(localPath)
	return err == nil && !info.IsDir()
}

// URL renders an s3:// URI for a previously returned key.
func (u *S3Uploader) URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", u.bucket, key)
}

func (u *S3Uploader) objectKey(parts ...string) string {
	if u.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{u.prefix}, parts...)...)
}

// ErrNoUploader is returned by the nil uploader seam when an upload is needed
// but no storage target is configured.
var ErrNoUploader = errors.New("artifacts: no uploader configured")

// NoopUploader rejects uploads; used when no S3 target is configured.
type NoopUploader struct{}

func (NoopUploader) Upload(ctx context.Context, localPath string) (string, error) {
	return "", ErrNoUploader
}

func (NoopUploader) Exists(localPath string) bool {
	info, err := os.Stat(localPath)
	return err == nil && !info.IsDir()
}

func ptr[T any](v T) *T {
	return &v
}
