// Package gcs provides an artifact store backed by Google Cloud Storage,
// used as the upload target of the final pipeline phase.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is an optional object-name prefix ahead of the namespace.
	Prefix string
}

// ArtifactStore reads and writes artifacts in a configured GCS bucket, one
// object per artifact under <prefix>/<namespace>/<name>.
type ArtifactStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// List returns the artifact names under the namespace prefix.
func (s *ArtifactStore) List(ctx context.Context, namespace string) ([]string, error) {
	prefix := s.objectName(namespace, "")
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		names = append(names, strings.TrimPrefix(attrs.Name, prefix))
	}
	return names, nil
}

// Open reads one object.
func (s *ArtifactStore) Open(ctx context.Context, namespace, name string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(namespace, name)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", namespace, name, err)
	}
	return r, nil
}

// Put uploads data and returns a gs:// URI.
func (s *ArtifactStore) Put(ctx context.Context, namespace, name, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("artifact name is required")
	}
	object := s.objectName(namespace, name)
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

func (s *ArtifactStore) objectName(namespace, name string) string {
	parts := []string{}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	parts = append(parts, namespace)
	joined := strings.Join(parts, "/") + "/"
	return joined + name
}
