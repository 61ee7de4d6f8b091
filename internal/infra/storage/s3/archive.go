package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"stayvista/internal/infra/outbox"
)

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive writes every published outbox event as one JSON object, keyed by
// topic and day. It is an outbox sink for deployments without a broker.
type Archive struct {
	bucket string
	store  objectStore
	logger *slog.Logger
	now    func() time.Time

	bucketOnce sync.Once
	bucketErr  error
}

func NewArchive(endpoint string, useSSL bool, accessKey, secretKey, bucket string, logger *slog.Logger) (*Archive, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	client, err := minio.New(parseEndpoint(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &Archive{bucket: bucket, store: client, logger: logger, now: time.Now}, nil
}

func (a *Archive) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	object := a.objectKey(topic, key, headers["ce-id"])
	_, err := a.store.PutObject(ctx, a.bucket, object, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/cloudevents+json",
		UserMetadata: map[string]string{
			"ce-type": headers["ce-type"],
		},
	})
	if err != nil {
		return fmt.Errorf("s3: put object: %w", err)
	}
	if a.logger != nil {
		a.logger.DebugContext(ctx, "event archived", slog.String("bucket", a.bucket), slog.String("key", object))
	}
	return nil
}

func (a *Archive) objectKey(topic, key, eventID string) string {
	day := a.now().UTC().Format("2006/01/02")
	name := eventID
	if name == "" {
		name = fmt.Sprintf("%d", a.now().UnixNano())
	}
	if key != "" {
		name = sanitize(key) + "-" + name
	}
	return fmt.Sprintf("%s/%s/%s.json", sanitize(topic), day, name)
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	a.bucketOnce.Do(func() {
		exists, err := a.store.BucketExists(ctx, a.bucket)
		if err != nil {
			a.bucketErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			a.bucketErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return a.bucketErr
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(strings.TrimSpace(s))
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ outbox.Producer = (*Archive)(nil)
