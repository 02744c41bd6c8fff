package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GCS uploads files into a Cloud Storage bucket. The folder id is used as an
// object prefix and the object name is the archive id.
type GCS struct {
	client *storage.Client
	bucket string
	log    *logrus.Entry
}

func NewGCS(ctx context.Context, creds Credentials, bucket string, log *logrus.Entry) (*GCS, error) {
	if creds == nil {
		return nil, ErrNoCredentials
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket not configured")
	}
	ts, err := creds.TokenSource(ctx, storage.ScopeReadWrite)
	if err != nil {
		return nil, err
	}
	return newGCS(ctx, bucket, log, option.WithTokenSource(ts))
}

func newGCS(ctx context.Context, bucket string, log *logrus.Entry, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, log: log}, nil
}

// Upload writes the local file to <folderID>/<name>. A failed copy cancels
// the writer so no partial object is committed.
func (g *GCS) Upload(ctx context.Context, localPath, name, mimeType, folderID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	object := ObjectName(folderID, name)
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		return "", fmt.Errorf("gcs upload failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs upload failed: %w", err)
	}

	g.log.WithFields(logrus.Fields{"bucket": g.bucket, "object": object}).Info("uploaded to gcs")
	return object, nil
}

func (g *GCS) ViewURL(id string) string {
	return GCSViewURL(g.bucket, id)
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// ObjectName joins an optional prefix with the display name.
func ObjectName(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func GCSViewURL(bucket, object string) string {
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("https://storage.cloud.google.com/%s/%s", bucket, strings.Join(segments, "/"))
}
