package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible endpoint (R2, MinIO); empty for AWS
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage implements Store on an S3 bucket. Keys use the same
// "<subdir>/<filename>" references as LocalStorage.
type S3Storage struct {
	client    *s3.S3
	uploader  *s3manager.Uploader
	bucket    string
	subDirMap map[AssetType]string
	logger    *slog.Logger
}

func NewS3Storage(cfg S3Config, subDirs map[AssetType]string, logger *slog.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for S3 storage")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	logger.Info("initialized S3 artifact storage", "bucket", cfg.Bucket, "endpoint", cfg.Endpoint)
	return &S3Storage{
		client:    s3.New(sess),
		uploader:  s3manager.NewUploader(sess),
		bucket:    cfg.Bucket,
		subDirMap: subDirs,
		logger:    logger,
	}, nil
}

func (s *S3Storage) key(assetType AssetType, filename string) (string, error) {
	subDir, ok := s.subDirMap[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	if filename == "" || strings.Contains(filename, "/") {
		return "", fmt.Errorf("invalid artifact filename '%s'", filename)
	}
	return path.Join(subDir, filename), nil
}

func (s *S3Storage) Save(ctx context.Context, assetType AssetType, filename string, data io.Reader) (string, error) {
	key, err := s.key(assetType, filename)
	if err != nil {
		return "", err
	}

	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	}
	if contentType := mime.TypeByExtension(path.Ext(filename)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload '%s' to S3: %w", key, err)
	}
	s.logger.Debug("saved artifact", "ref", key, "bucket", s.bucket)
	return key, nil
}

func (s *S3Storage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get '%s' from S3: %w", ref, err)
	}
	return result.Body, nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Storage) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("failed to delete '%s' from S3: %w", ref, err)
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context, assetType AssetType) ([]string, error) {
	subDir, ok := s.subDirMap[assetType]
	if !ok {
		return nil, fmt.Errorf("asset type '%s' is not configured", assetType)
	}

	var refs []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(subDir + "/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			refs = append(refs, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s artifacts in S3: %w", assetType, err)
	}
	sort.Strings(refs)
	return refs, nil
}
