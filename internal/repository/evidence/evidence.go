// Package evidence stores photo evidence attached to audit entries and
// damage reports.
package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrInvalidPhoto is returned for payloads that are not base64 encoded.
var ErrInvalidPhoto = errors.New("photo payload is not valid base64")

// Uploader turns a raw photo payload into the reference kept on a record.
type Uploader interface {
	Upload(ctx context.Context, name, payload string) (string, error)
}

// InlineUploader keeps the payload itself as the reference.
type InlineUploader struct{}

// Upload returns payload unchanged.
func (InlineUploader) Upload(_ context.Context, _ string, payload string) (string, error) {
	return payload, nil
}

// GCSUploader writes photos to a Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSUploader builds an uploader. credentialsJSON may be empty, in which
// case application default credentials are used.
func NewGCSUploader(ctx context.Context, bucket, credentialsJSON string, logger *zap.Logger) (*GCSUploader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage client: %w", err)
	}

	return &GCSUploader{client: client, bucket: bucket, logger: logger}, nil
}

// Upload stores a photo and returns its gs:// reference. Payloads that are
// already references (URLs or gs:// paths) are returned unchanged.
func (u *GCSUploader) Upload(ctx context.Context, name, payload string) (string, error) {
	if IsReference(payload) {
		return payload, nil
	}

	data, err := DecodePayload(payload)
	if err != nil {
		return "", err
	}

	object := path.Join("evidence", name)
	wc := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = http.DetectContentType(data)

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}

	u.logger.Debug("evidence uploaded", zap.String("object", object), zap.Int("bytes", len(data)))
	return fmt.Sprintf("gs://%s/%s", u.bucket, object), nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// IsReference reports whether payload already points at stored content.
func IsReference(payload string) bool {
	p := strings.TrimSpace(payload)
	return strings.HasPrefix(p, "gs://") || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// DecodePayload accepts plain base64 or a data URL.
func DecodePayload(payload string) ([]byte, error) {
	p := strings.TrimSpace(payload)
	if strings.HasPrefix(p, "data:") {
		if idx := strings.Index(p, ","); idx >= 0 {
			p = p[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(p)
	if err != nil || len(data) == 0 {
		return nil, ErrInvalidPhoto
	}
	return data, nil
}
