package fetch

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// FetchPrecise reads exactly one object from the parse account and saves it
// as the canonical parse file. key must lie under the task's parse prefix.
func (f *Fetcher) FetchPrecise(
	ctx context.Context,
	key string,
	identity retrieval.TaskIdentity,
	decompress bool,
) retrieval.Outcome {
	if f.parse == nil {
		return f.failed(retrieval.MethodPrecisePath, identity, fmt.Errorf("parse store is not configured"))
	}
	if strings.TrimSpace(key) == "" {
		return f.failed(retrieval.MethodPrecisePath, identity, fmt.Errorf("no inferred path"))
	}
	prefix := f.layout.ParsePrefix(identity.TaskType, identity.TaskID)
	if !f.layout.IsParseKey(key) || !strings.HasPrefix(key, prefix) {
		return f.failed(retrieval.MethodPrecisePath, identity, fmt.Errorf("path %s is outside %s", key, prefix))
	}
	data, err := f.parse.GetObject(ctx, key)
	if err != nil {
		f.logger.Info("precise read failed", zap.String("key", key), zap.Error(err))
		return f.failed(retrieval.MethodPrecisePath, identity, fmt.Errorf("read %s: %w", key, err))
	}
	content, decodeErr := retrieval.Decode(data, decompress, strings.HasSuffix(key, ".gz"))
	if decodeErr != nil {
		f.logger.Warn("keeping raw bytes", zap.String("key", key), zap.Error(decodeErr))
	}
	rec, err := f.sink.Save(ctx, identity, retrieval.CanonicalParseName, content.Bytes())
	if err != nil {
		return f.failed(retrieval.MethodPrecisePath, identity, err)
	}
	rec.OriginalName = path.Base(key)
	f.logger.Info("precise read saved", zap.String("key", key), zap.Int64("size", rec.SizeBytes))
	return f.succeeded(retrieval.MethodPrecisePath, identity, []retrieval.FileRecord{rec})
}
