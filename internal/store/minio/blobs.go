// Package minio implements the remote blob store on a MinIO server.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gosuda/dossier/internal/domain"
)

// Config holds the MinIO connection settings.
type Config struct {
	Endpoint        string // host:port
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G117: object storage credential config
	Bucket          string
	Region          string
	UseSSL          bool
}

// BlobStore stores attachment payloads as MinIO objects.
type BlobStore struct {
	client *minio.Client
	bucket string
}

// New creates a BlobStore. It does not contact the server.
func New(cfg Config) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio.New: %w", err)
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (b *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return translate("minio.BlobStore.EnsureBucket", err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return translate("minio.BlobStore.EnsureBucket", err)
	}
	return nil
}

func (b *BlobStore) Put(ctx context.Context, path string, data []byte, mimeType string) (domain.RemoteRef, error) {
	_, err := b.client.PutObject(ctx, b.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return domain.RemoteRef{}, translate("minio.BlobStore.Put", err)
	}
	return domain.RemoteRef{URL: b.objectURL(path), Path: path}, nil
}

func (b *BlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate("minio.BlobStore.Get", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate("minio.BlobStore.Get", err)
	}
	return data, nil
}

// Delete removes the object. MinIO treats a missing object as success.
func (b *BlobStore) Delete(ctx context.Context, path string) error {
	err := b.client.RemoveObject(ctx, b.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		err = translate("minio.BlobStore.Delete", err)
		if errors.Is(err, domain.ErrBlobNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (b *BlobStore) objectURL(path string) string {
	return strings.TrimSuffix(b.client.EndpointURL().String(), "/") + "/" + b.bucket + "/" + path
}

func translate(op string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return fmt.Errorf("%s: %w", op, domain.ErrBlobNotFound)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
