package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/version"
)

// S3Storage implements Storage for S3-compatible object storage.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	prefix   string
	endpoint string
}

var _ Storage = &S3Storage{}

// NewS3Storage creates a new S3Storage from configuration.
func NewS3Storage(cfg *config.S3) (*S3Storage, error) {
	accessKey := os.Getenv(cfg.AccessKeyEnv)
	if accessKey == "" {
		return nil, fmt.Errorf("S3 access key environment variable %s is not set", cfg.AccessKeyEnv)
	}

	secretKey := os.Getenv(cfg.SecretKeyEnv)
	if secretKey == "" {
		return nil, fmt.Errorf("S3 secret key environment variable %s is not set", cfg.SecretKeyEnv)
	}

	// Build S3 client options
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		},
	}

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for most S3-compatible services
		})
	}

	return NewS3StorageWithClient(s3.New(s3.Options{}, opts...), cfg.Bucket, cfg.Prefix, cfg.Endpoint), nil
}

// NewS3StorageWithClient creates an S3Storage using an existing client.
func NewS3StorageWithClient(client *s3.Client, bucket, prefix, endpoint string) *S3Storage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Storage{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		endpoint: endpoint,
	}
}

func (s *S3Storage) key(name string) string {
	return s.prefix + strings.TrimPrefix(name, "/")
}

// getObject returns the body of the object name. It returns a nil body
// without error if the object does not exist.
func (s *S3Storage) getObject(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", s.bucket, key, err)
	}
	return result.Body, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (s *S3Storage) VersionInfo(ctx context.Context) (version.Version, error) {
	body, err := s.getObject(ctx, VersionKey)
	if err != nil || body == nil {
		return version.None, err
	}
	defer body.Close()
	return parseVersion(body)
}

func (s *S3Storage) FindLatestBackup(ctx context.Context) ([]string, error) {
	return s.readCatalog(ctx, LatestBackupKey)
}

func (s *S3Storage) ListMetadataForExistingFiles(ctx context.Context) ([]string, error) {
	return s.readCatalog(ctx, ExistingFilesKey)
}

func (s *S3Storage) readCatalog(ctx context.Context, name string) ([]string, error) {
	body, err := s.getObject(ctx, name)
	if err != nil || body == nil {
		return nil, err
	}
	defer body.Close()

	entries, err := parseCatalog(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, s.key(name), err)
	}
	return entries, nil
}

// LoadFile downloads the archive object into destPath.
func (s *S3Storage) LoadFile(ctx context.Context, archiveID, destPath string) error {
	if err := checkArchiveID(archiveID); err != nil {
		return err
	}
	body, err := s.getObject(ctx, archiveID)
	if err != nil {
		return err
	}
	if body == nil {
		return fmt.Errorf("backup s3://%s/%s: %w", s.bucket, s.key(archiveID), fs.ErrNotExist)
	}
	defer body.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if _, err := io.Copy(dst, body); err != nil {
		dst.Close()
		return fmt.Errorf("failed to download s3://%s/%s: %w", s.bucket, s.key(archiveID), err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}

// Identifier returns the S3 URI for traceability.
func (s *S3Storage) Identifier() string {
	if s.endpoint != "" {
		return fmt.Sprintf("s3://%s/%s (endpoint: %s)", s.bucket, s.prefix, s.endpoint)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}
