package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// MappingStore provides an in-memory bookkeeping implementation for development/testing.
type MappingStore struct {
	mu       sync.RWMutex
	mappings map[string]retrieval.TaskMapping
}

// NewMappingStore constructs a MappingStore.
func NewMappingStore() *MappingStore {
	return &MappingStore{mappings: make(map[string]retrieval.TaskMapping)}
}

// RecordMapping inserts or replaces the row for mapping.JobID.
func (s *MappingStore) RecordMapping(_ context.Context, mapping retrieval.TaskMapping) error {
	if mapping.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if mapping.UpdatedAt.IsZero() {
		mapping.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mapping.JobID] = mapping
	return nil
}

// GetMapping returns the row for jobID.
func (s *MappingStore) GetMapping(_ context.Context, jobID string) (retrieval.TaskMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.mappings[jobID]
	if !ok {
		return retrieval.TaskMapping{}, fmt.Errorf("%w: %s", retrieval.ErrMappingNotFound, jobID)
	}
	return mapping, nil
}

// ListMappings returns every row ordered by job id.
func (s *MappingStore) ListMappings(_ context.Context) ([]retrieval.TaskMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]retrieval.TaskMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

// Close is a no-op.
func (s *MappingStore) Close() error { return nil }
