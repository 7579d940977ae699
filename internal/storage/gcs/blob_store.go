// Package gcs provides an ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Config captures the parameters required to reach one bucket. It is passed
// by value; nothing here touches process-wide environment.
type Config struct {
	Bucket          string
	Endpoint        string
	CredentialsFile string
	WithoutAuth     bool
	ReadTimeout     time.Duration
	ListTimeout     time.Duration
}

// ClientOptions converts the account settings into client options.
func (c Config) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	switch {
	case c.WithoutAuth:
		opts = append(opts, option.WithoutAuthentication())
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// NewClient creates a storage client for the account.
func NewClient(ctx context.Context, cfg Config) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	return client, nil
}

// ObjectStore reads artifacts from a configured GCS bucket.
type ObjectStore struct {
	client      *storage.Client
	bucket      string
	readTimeout time.Duration
	listTimeout time.Duration
}

// New creates a GCS-backed object store.
func New(client *storage.Client, cfg Config) (*ObjectStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ObjectStore{
		client:      client,
		bucket:      cfg.Bucket,
		readTimeout: cfg.ReadTimeout,
		listTimeout: cfg.ListTimeout,
	}, nil
}

// GetObject downloads one object. Missing objects wrap retrieval.ErrObjectNotFound.
func (s *ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("key is required")
	}
	ctx, cancel := withTimeout(ctx, s.readTimeout)
	defer cancel()

	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", retrieval.ErrObjectNotFound, s.URI(key))
		}
		return nil, fmt.Errorf("open object %s: %w", s.URI(key), err)
	}
	defer reader.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", s.URI(key), err)
	}
	return data, nil
}

// ListObjects returns every object under prefix, sorted by name.
func (s *ObjectStore) ListObjects(ctx context.Context, prefix string) ([]retrieval.ObjectInfo, error) {
	ctx, cancel := withTimeout(ctx, s.listTimeout)
	defer cancel()

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []retrieval.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", s.bucket, prefix, err)
		}
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, retrieval.ObjectInfo{
			Name:    attrs.Name,
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// URI returns the gs:// URI of key.
func (s *ObjectStore) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
