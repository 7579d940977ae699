// Package badger provides an embedded badgerhold-backed bookkeeping store for
// single-host deployments.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// MappingStore persists task mappings in an embedded Badger database.
type MappingStore struct {
	store  *badgerhold.Store
	logger *zap.Logger
}

// Open creates (if needed) and opens the database in dir.
func Open(dir string, logger *zap.Logger) (*MappingStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug("badger bookkeeping store opened", zap.String("path", dir))
	return &MappingStore{store: store, logger: logger}, nil
}

// RecordMapping upserts the row keyed by job id.
func (s *MappingStore) RecordMapping(_ context.Context, mapping retrieval.TaskMapping) error {
	if mapping.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	if mapping.UpdatedAt.IsZero() {
		mapping.UpdatedAt = time.Now().UTC()
	}
	if err := s.store.Upsert(mapping.JobID, mapping); err != nil {
		return fmt.Errorf("failed to store mapping: %w", err)
	}
	return nil
}

// GetMapping loads the row for jobID.
func (s *MappingStore) GetMapping(_ context.Context, jobID string) (retrieval.TaskMapping, error) {
	var mapping retrieval.TaskMapping
	if err := s.store.Get(jobID, &mapping); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return retrieval.TaskMapping{}, fmt.Errorf("%w: %s", retrieval.ErrMappingNotFound, jobID)
		}
		return retrieval.TaskMapping{}, fmt.Errorf("failed to get mapping: %w", err)
	}
	return mapping, nil
}

// ListMappings returns every row ordered by job id.
func (s *MappingStore) ListMappings(_ context.Context) ([]retrieval.TaskMapping, error) {
	var mappings []retrieval.TaskMapping
	if err := s.store.Find(&mappings, badgerhold.Where("JobID").Ne("").SortBy("JobID")); err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return mappings, nil
}

// Close closes the database.
func (s *MappingStore) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}
