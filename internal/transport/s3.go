package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bidwatch/bidwatch/internal/common"
	"github.com/bidwatch/bidwatch/internal/service"
)

// S3Config locates the durable store object.
type S3Config struct {
	Bucket  string
	Key     string
	Region  string
	WorkDir string
}

// S3Transport keeps the durable store as a single S3 object. Object puts
// are atomic, which gives the merge engine its all-or-nothing guarantee:
// a crashed run never leaves a partially uploaded store.
type S3Transport struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Transport creates an S3 transport using the default AWS
// configuration chain with optional region override.
func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Transport{
		client: s3.NewFromConfig(awsCfg),
		cfg:    cfg,
	}, nil
}

// Download fetches the store object into the working directory and returns
// the local path. A missing object is not an error: first runs start with
// an empty database at the returned path.
func (t *S3Transport) Download(ctx context.Context) (string, error) {
	if err := os.MkdirAll(t.cfg.WorkDir, 0750); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}
	dst := filepath.Join(t.cfg.WorkDir, storeFilename)

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(t.cfg.Key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return dst, nil
		}
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}
	defer func() { _ = out.Body.Close() }()

	tmp, err := os.CreateTemp(t.cfg.WorkDir, ".store-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, out.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrStoreDownload, err)
	}

	return dst, nil
}

// Upload pushes the working store back as a whole object.
func (t *S3Transport) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUpload, err)
	}
	defer func() { _ = file.Close() }()

	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.cfg.Bucket),
		Key:         aws.String(t.cfg.Key),
		Body:        file,
		ContentType: aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUpload, err)
	}

	return nil
}

var _ service.StoreTransport = (*S3Transport)(nil)
