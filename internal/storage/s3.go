package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

// UploadResult describes a stored object.
type UploadResult struct {
	URL    string `json:"url"`
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
}

// Uploader stores ad captures in an object store. Upload failures are
// independent of ledger state; callers must never roll a committed debit back
// because of one.
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileName, mimeType string) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string) (string, error)
}

// S3Storage uploads to any S3-compatible endpoint (Hostinger object storage
// in production).
type S3Storage struct {
	client *minio.Client
	bucket string
	base   string
}

func NewS3Storage() (*S3Storage, error) {
	viper.SetDefault("storage.bucket", "skry-ad-capture")

	endpoint := viper.GetString("storage.endpoint")
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			viper.GetString("storage.access_key"),
			viper.GetString("storage.secret_key"), ""),
		Secure: viper.GetBool("storage.use_ssl"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	scheme := "http"
	if viper.GetBool("storage.use_ssl") {
		scheme = "https"
	}

	return &S3Storage{
		client: client,
		bucket: viper.GetString("storage.bucket"),
		base:   fmt.Sprintf("%s://%s", scheme, endpoint),
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, data []byte, fileName, mimeType string) (*UploadResult, error) {
	key := fmt.Sprintf("ads/%s-%s", uuid.NewString(), fileName)
	log.Printf("[STORAGE] Uploading %s (%d bytes)", key, len(data))

	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	return &UploadResult{
		URL:    fmt.Sprintf("%s/%s/%s", s.base, s.bucket, key),
		Key:    key,
		Bucket: s.bucket,
	}, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	log.Printf("[STORAGE] Deleting %s", key)
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *S3Storage) SignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, 15*time.Minute, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
