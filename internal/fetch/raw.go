package fetch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Raw output formats.
const (
	FormatHTML = "html"
	FormatText = "txt"
	FormatJSON = "json"
	FormatRaw  = "raw"
)

// FetchRaw reads the named raw input files from the raw account, decompresses
// them and saves each one with the requested format's extension. Missing
// objects are skipped.
func (f *Fetcher) FetchRaw(
	ctx context.Context,
	identity retrieval.TaskIdentity,
	files []string,
	format string,
) retrieval.Outcome {
	if f.raw == nil {
		return f.failed(retrieval.MethodRaw, identity, fmt.Errorf("raw store is not configured"))
	}
	if len(files) == 0 {
		return f.failed(retrieval.MethodRaw, identity, fmt.Errorf("no raw files requested"))
	}

	logger := f.logger.With(
		zap.String("task_type", identity.TaskType),
		zap.String("task_id", identity.TaskID),
	)
	var (
		saved []retrieval.FileRecord
		errs  []error
	)
	for _, file := range files {
		key := f.layout.RawPath(identity.TaskType, identity.TaskID, file)
		data, err := f.raw.GetObject(ctx, key)
		if err != nil {
			if errors.Is(err, retrieval.ErrObjectNotFound) {
				logger.Debug("raw file missing", zap.String("key", key))
			} else {
				logger.Warn("raw read failed", zap.String("key", key), zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		content, decodeErr := retrieval.Decode(data, true, strings.HasSuffix(file, ".gz"))
		if decodeErr != nil {
			logger.Warn("keeping raw bytes", zap.String("key", key), zap.Error(decodeErr))
		}
		rec, err := f.sink.Save(ctx, identity, rawName(file, format), content.Bytes())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		rec.OriginalName = path.Base(file)
		saved = append(saved, rec)
	}
	if len(saved) == 0 {
		return f.failed(retrieval.MethodRaw, identity,
			fmt.Errorf("no raw files saved: %w", errors.Join(errs...)))
	}
	logger.Info("raw files saved", zap.Int("files", len(saved)))
	return f.succeeded(retrieval.MethodRaw, identity, saved)
}

// rawName maps "page_1.gz" to "page_1.html" for the html format and to
// "page_1" for the raw format.
func rawName(file, format string) string {
	name := strings.TrimSuffix(path.Base(file), ".gz")
	if format != FormatRaw && format != "" {
		name = strings.TrimSuffix(name, path.Ext(name)) + "." + format
	}
	if name == retrieval.CanonicalParseName {
		name = "raw_" + name
	}
	return name
}
