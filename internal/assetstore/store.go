// Package assetstore implements the transient asset store on top of an
// S3-compatible object store. Each campaign gets its own namespace (a key
// prefix inside the bucket); asset handles are namespace+key pairs.
package assetstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/config"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

// Store is the object-store backed asset store.
type Store struct {
	mc            *minio.Client
	bucket        string
	presignExpiry time.Duration
	logger        zerolog.Logger
}

// New creates a Store from config. It does not touch the network.
func New(cfg config.StoreConfig, logger zerolog.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("asset store endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("asset store access key and secret key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &Store{
		mc:            mc,
		bucket:        cfg.Bucket,
		presignExpiry: expiry,
		logger:        logger.With().Str("component", "assetstore").Logger(),
	}, nil
}

// CreateNamespace ensures the campaign's namespace is usable. The bucket is
// shared; namespaces are key prefixes, so this only has to guarantee the
// bucket exists. Safe to call for an existing namespace.
func (s *Store) CreateNamespace(ctx context.Context, name string) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return s.wrap(err, "check bucket")
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			resp := minio.ToErrorResponse(err)
			// Lost the race with a concurrent campaign; the bucket is there.
			if resp.Code != "BucketAlreadyOwnedByYou" && resp.Code != "BucketAlreadyExists" {
				return s.wrap(err, "create bucket")
			}
		}
		s.logger.Info().Str("bucket", s.bucket).Msg("created asset bucket")
	}
	s.logger.Debug().Str("namespace", name).Msg("namespace ready")
	return nil
}

// Upload stores a local file under the namespace and returns its handle.
// The key is the file's base name, so re-uploading the same file overwrites
// rather than duplicates.
func (s *Store) Upload(ctx context.Context, namespace, localPath string) (pipeline.AssetHandle, error) {
	h := pipeline.AssetHandle{Namespace: namespace, Key: filepath.Base(localPath)}

	if _, err := s.mc.FPutObject(ctx, s.bucket, s.objectName(h), localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(localPath),
	}); err != nil {
		return pipeline.AssetHandle{}, s.wrap(err, fmt.Sprintf("upload %s", h.Key))
	}

	s.logger.Debug().Str("namespace", namespace).Str("key", h.Key).Msg("uploaded asset")
	return h, nil
}

// Download fetches the asset to a local path, creating parent directories.
func (s *Store) Download(ctx context.Context, h pipeline.AssetHandle, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := s.mc.FGetObject(ctx, s.bucket, s.objectName(h), destPath, minio.GetObjectOptions{}); err != nil {
		return s.wrap(err, fmt.Sprintf("download %s", h.Key))
	}
	return nil
}

// Get returns a reader for the asset. Caller closes it.
func (s *Store) Get(ctx context.Context, h pipeline.AssetHandle) (io.ReadCloser, error) {
	obj, err := s.mc.GetObject(ctx, s.bucket, s.objectName(h), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(err, fmt.Sprintf("get %s", h.Key))
	}
	// GetObject is lazy; Stat forces the existence check.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s.wrap(err, fmt.Sprintf("stat %s", h.Key))
	}
	return obj, nil
}

// Put writes bytes under the handle. size may be -1 for streaming.
func (s *Store) Put(ctx context.Context, h pipeline.AssetHandle, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.mc.PutObject(ctx, s.bucket, s.objectName(h), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return s.wrap(err, fmt.Sprintf("put %s", h.Key))
	}
	return nil
}

// PresignGet returns a time-limited URL the editing services can read from.
func (s *Store) PresignGet(ctx context.Context, h pipeline.AssetHandle) (string, error) {
	u, err := s.mc.PresignedGetObject(ctx, s.bucket, s.objectName(h), s.presignExpiry, url.Values{})
	if err != nil {
		return "", s.wrap(err, fmt.Sprintf("presign get %s", h.Key))
	}
	return u.String(), nil
}

// PresignPut returns a time-limited URL the editing services can write to.
func (s *Store) PresignPut(ctx context.Context, h pipeline.AssetHandle) (string, error) {
	u, err := s.mc.PresignedPutObject(ctx, s.bucket, s.objectName(h), s.presignExpiry)
	if err != nil {
		return "", s.wrap(err, fmt.Sprintf("presign put %s", h.Key))
	}
	return u.String(), nil
}

func (s *Store) objectName(h pipeline.AssetHandle) string {
	return h.Namespace + "/" + h.Key
}

// wrap converts an object-store error into an apierr.Error so the retry
// layer can classify it. Errors without an HTTP status are transport-level
// and treated as transient.
func (s *Store) wrap(err error, op string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return &apierr.Error{Service: "assetstore", Status: resp.StatusCode, Message: op, Err: err}
	}
	return apierr.Wrap("assetstore", op, err)
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".psd":
		return "image/vnd.adobe.photoshop"
	default:
		return "application/octet-stream"
	}
}
