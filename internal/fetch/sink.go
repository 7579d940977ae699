package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// FileSink writes artifacts to {root}/{task_type}/{task_id}/{name}.
type FileSink struct {
	root   string
	hasher retrieval.Hasher
}

// NewFileSink constructs a sink rooted at root. hasher may be nil.
func NewFileSink(root string, hasher retrieval.Hasher) (*FileSink, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("save root is required")
	}
	return &FileSink{root: root, hasher: hasher}, nil
}

// Dir returns the task's save directory.
func (s *FileSink) Dir(identity retrieval.TaskIdentity) string {
	return retrieval.SaveDir(s.root, identity)
}

// Save writes data under the task directory, replacing any previous file of
// the same name.
func (s *FileSink) Save(
	ctx context.Context,
	identity retrieval.TaskIdentity,
	name string,
	data []byte,
) (retrieval.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("context canceled: %w", err)
	}
	if err := validSegment(identity.TaskType); err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("task type: %w", err)
	}
	if err := validSegment(identity.TaskID); err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("task id: %w", err)
	}
	if err := validSegment(name); err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("file name: %w", err)
	}
	dir := s.Dir(identity)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("create save directory: %w", err)
	}
	fullPath := filepath.Join(dir, name)
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("write %s: %w", name, err)
	}
	rec := retrieval.FileRecord{
		OriginalName: name,
		SavedName:    name,
		LocalPath:    fullPath,
		SizeBytes:    int64(len(data)),
	}
	if s.hasher != nil {
		sum, err := s.hasher.Hash(data)
		if err != nil {
			return retrieval.FileRecord{}, fmt.Errorf("hash %s: %w", name, err)
		}
		rec.SHA256 = sum
	}
	return rec, nil
}

func validSegment(seg string) error {
	switch {
	case strings.TrimSpace(seg) == "":
		return fmt.Errorf("must not be empty")
	case seg == "." || seg == "..":
		return fmt.Errorf("invalid path segment %q", seg)
	case strings.ContainsAny(seg, `/\`):
		return fmt.Errorf("path separators not allowed in %q", seg)
	}
	return nil
}
