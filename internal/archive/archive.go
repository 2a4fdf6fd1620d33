// Package archive copies finalized reports to object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
)

const defaultPrefix = "reports"

// Storage is the subset of *minio.Client the archive needs.
type Storage interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinIOConfig struct {
	Endpoint  string
	AccessID  string
	SecretKey string
	Secure    bool
}

// NewMinIO connects a MinIO client.
func NewMinIO(c MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessID, c.SecretKey, ""),
		Secure: c.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return client, nil
}

type Config struct {
	EventBus *event.Bus
	Storage  Storage
	Bucket   string
	// Prefix is the object key prefix. Defaults to "reports".
	Prefix string
}

type Service struct {
	storage Storage
	bucket  string
	prefix  string
}

func NewService(c Config) *Service {
	s := &Service{
		storage: c.Storage,
		bucket:  c.Bucket,
		prefix:  c.Prefix,
	}
	if s.prefix == "" {
		s.prefix = defaultPrefix
	}

	c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
		ended, ok := e.(domain.EventSessionEnded)
		if !ok || ended.Report == nil {
			return nil
		}
		return s.Put(ctx, ended.Report)
	}, domain.EventNameSessionEnded)

	return s
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.storage.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.storage.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}

	slog.InfoContext(ctx, "archive: bucket created", "bucket", s.bucket)
	return nil
}

// Put writes the report as JSON. Writing the same report twice overwrites the object.
func (s *Service) Put(ctx context.Context, r *domain.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("archive: marshal report: %w", err)
	}

	key := s.Key(r.SessionID)
	if _, err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(b), int64(len(b)), minio.PutObjectOptions{
		ContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}

	slog.InfoContext(ctx, "archive: report stored", "session", r.SessionID, "object", key)
	return nil
}

func (s *Service) Key(sessionID string) string {
	return path.Join(s.prefix, sessionID+".json")
}
