// Package storage archives raw uploads in S3-compatible object storage.
// Archival is optional: when no endpoint is configured the service runs
// without it and only the paginated text survives ingestion.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores and retrieves original upload binaries.
type Archive interface {
	Put(ctx context.Context, documentID, filename string, data []byte) error
	PresignGet(ctx context.Context, documentID, filename string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, documentID, filename string) error
}

// MinioArchive implements Archive over MinIO/S3-compatible storage.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to the endpoint and ensures the bucket exists.
func NewMinioArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioArchive{client: client, bucket: bucket}, nil
}

// Put uploads the original file under its document ID.
func (m *MinioArchive) Put(ctx context.Context, documentID, filename string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectKey(documentID, filename),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
	if err != nil {
		return fmt.Errorf("archive upload: %w", err)
	}
	return nil
}

// PresignGet generates a pre-signed download URL for an archived upload.
func (m *MinioArchive) PresignGet(ctx context.Context, documentID, filename string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey(documentID, filename), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url.String(), nil
}

// Delete removes an archived upload.
func (m *MinioArchive) Delete(ctx context.Context, documentID, filename string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectKey(documentID, filename), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("delete archived upload: %w", err)
	}
	return nil
}

func objectKey(documentID, filename string) string {
	return path.Join("uploads", documentID, path.Base(filename))
}
