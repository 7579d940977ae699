// Package local implements a filesystem ObjectStore that mirrors a bucket
// layout on disk, for development and offline replays.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Config captures the parameters for the local filesystem object store.
type Config struct {
	// BaseDir is the directory holding one sub-directory per bucket.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Bucket selects the sub-directory for this account.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

// ObjectStore reads and writes objects under {BaseDir}/{Bucket}.
type ObjectStore struct {
	root string
}

// New creates a new local filesystem-backed object store.
func New(cfg Config) (*ObjectStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	root := filepath.Join(cfg.BaseDir, cfg.Bucket)

	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &ObjectStore{root: root}, nil
}

func (s *ObjectStore) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(key))

	// Clean the path and verify it's within root to prevent path traversal.
	cleanRoot := filepath.Clean(s.root)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

// GetObject reads one object. Missing files wrap retrieval.ErrObjectNotFound.
func (s *ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- fullPath is confined to the store root above.
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", retrieval.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// ListObjects walks the store and returns the objects whose key starts with prefix.
func (s *ObjectStore) ListObjects(ctx context.Context, prefix string) ([]retrieval.ObjectInfo, error) {
	var out []retrieval.ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, retrieval.ObjectInfo{Name: key, Size: info.Size(), Updated: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutObject writes data under key and returns a file:// URI.
func (s *ObjectStore) PutObject(_ context.Context, key string, _ string, data []byte) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}
