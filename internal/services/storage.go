package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ReceiptArchive stores generated documents and returns where they went.
type ReceiptArchive interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// S3Archive uploads to an S3 bucket.
type S3Archive struct {
	uploader *s3manager.Uploader
	bucket   string
	region   string
}

func NewS3Archive(region, accessKey, secretKey, bucket string) (*S3Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name not configured")
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Archive{uploader: s3manager.NewUploader(sess), bucket: bucket, region: region}, nil
}

func (a *S3Archive) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key), nil
}

// LocalArchive writes under a directory on disk.
type LocalArchive struct {
	dir string
}

func NewLocalArchive(dir string) (*LocalArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{dir: dir}, nil
}

func (a *LocalArchive) Put(_ context.Context, key string, data []byte) (string, error) {
	path := filepath.Join(a.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}

// NewReceiptArchive picks S3 when credentials are configured and the local
// directory otherwise.
func NewReceiptArchive(region, accessKey, secretKey, bucket, localDir string, log *slog.Logger) (ReceiptArchive, error) {
	if region != "" && accessKey != "" && secretKey != "" {
		a, err := NewS3Archive(region, accessKey, secretKey, bucket)
		if err != nil {
			return nil, err
		}
		log.Info("receipts archived to s3", "bucket", bucket)
		return a, nil
	}
	log.Warn("AWS S3 not configured, archiving receipts locally", "dir", localDir)
	return NewLocalArchive(localDir)
}
