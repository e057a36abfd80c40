package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"driftfm/config"
	"driftfm/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxStreamURLTTL caps signed stream URL lifetimes. Each play requests a
// fresh URL, so longer capabilities would only widen the exposure window.
const MaxStreamURLTTL = time.Hour

// Client wraps an S3-compatible object store. It is the only code in the
// repository that talks to the storage vendor directly.
type Client struct {
	mc       *minio.Client
	endpoint string
	bucket   string
	useSSL   bool
	cdnBase  string
}

// NewClient builds a storage client from configuration and verifies the
// bucket is reachable. Missing connection settings fail immediately.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, fmt.Errorf("storage configuration invalid: %w", err)
	}

	mc, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
		Region: cfg.StorageRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := mc.BucketExists(ctx, cfg.StorageBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.StorageBucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.StorageBucket, minio.MakeBucketOptions{Region: cfg.StorageRegion}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.StorageBucket, err)
		}
		logger.Info("created storage bucket", logger.String("bucket", cfg.StorageBucket))
	}

	return &Client{
		mc:       mc,
		endpoint: cfg.StorageEndpoint,
		bucket:   cfg.StorageBucket,
		useSSL:   cfg.StorageUseSSL,
		cdnBase:  cfg.CDNBaseURL,
	}, nil
}

// SignedStreamURL returns a time-limited signed URL for one object.
// TTLs above MaxStreamURLTTL (or non-positive) are clamped to the cap.
// Presigning is local and cannot fail transiently.
func (c *Client) SignedStreamURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxStreamURLTTL {
		ttl = MaxStreamURLTTL
	}
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Upload stores data under key. No retries; callers own retry policy.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Download reads the full contents of one object. The transcoding
// pipeline works on whole files, so there is no streaming variant.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes one object. Removing a missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// PublicURL returns a non-signed URL for key: CDN-prefixed when a CDN base
// is configured, otherwise a direct vendor URL.
func (c *Client) PublicURL(key string) string {
	if c.cdnBase != "" {
		base := c.cdnBase
		for len(base) > 0 && base[len(base)-1] == '/' {
			base = base[:len(base)-1]
		}
		return base + "/" + key
	}
	scheme := "http"
	if c.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, c.endpoint, c.bucket, key)
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
