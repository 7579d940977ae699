// Package memory keeps objects and bookkeeping rows in-memory for development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// ObjectStore stores objects in-memory and returns pseudo URIs.
type ObjectStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	updated map[string]time.Time
}

// NewObjectStore creates a new in-memory object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		data:    make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// PutObject persists a copy of the content and returns a URI.
func (s *ObjectStore) PutObject(_ context.Context, key string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	s.updated[key] = time.Now().UTC()
	return fmt.Sprintf("memory://%s", key), nil
}

// GetObject returns a copy of the stored bytes.
func (s *ObjectStore) GetObject(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: memory://%s", retrieval.ErrObjectNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// ListObjects returns objects under prefix sorted by name.
func (s *ObjectStore) ListObjects(_ context.Context, prefix string) ([]retrieval.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []retrieval.ObjectInfo
	for key, data := range s.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, retrieval.ObjectInfo{Name: key, Size: int64(len(data)), Updated: s.updated[key]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
