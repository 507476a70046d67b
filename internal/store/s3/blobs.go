// Package s3 implements the remote blob store on S3-compatible object
// storage (AWS S3, Cloudflare R2).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/gosuda/dossier/internal/domain"
)

// Config holds the S3 connection settings.
type Config struct {
	Endpoint        string // empty for AWS; https://<account>.r2.cloudflarestorage.com for R2
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G117: object storage credential config
	PublicURL       string // base URL used in returned refs; defaults to endpoint/bucket
	UsePathStyle    bool
}

// BlobStore stores attachment payloads as S3 objects.
type BlobStore struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// New creates a BlobStore from cfg.
func New(cfg Config) *BlobStore {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		base := cfg.Endpoint
		if base == "" {
			base = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		publicURL = strings.TrimSuffix(base, "/") + "/" + cfg.Bucket
	}

	return &BlobStore{
		client:    s3.New(opts),
		bucket:    cfg.Bucket,
		publicURL: publicURL,
	}
}

func (b *BlobStore) Put(ctx context.Context, path string, data []byte, mimeType string) (domain.RemoteRef, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return domain.RemoteRef{}, translate("s3.BlobStore.Put", err)
	}
	return domain.RemoteRef{URL: b.publicURL + "/" + path, Path: path}, nil
}

func (b *BlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, translate("s3.BlobStore.Get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, translate("s3.BlobStore.Get: read body", err)
	}
	return data, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (b *BlobStore) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		err = translate("s3.BlobStore.Delete", err)
		if errors.Is(err, domain.ErrBlobNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func translate(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, domain.ErrBlobNotFound)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
