package fetch

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// FetchBroad lists the task's parse prefix and downloads every object, JSON
// first. The first object saved becomes the canonical parse file. Later
// objects are saved beside it under their own corrected names; they are
// siblings of the artifact, not the artifact.
func (f *Fetcher) FetchBroad(
	ctx context.Context,
	identity retrieval.TaskIdentity,
	decompress bool,
) retrieval.Outcome {
	if f.parse == nil {
		return f.failed(retrieval.MethodBroadSearch, identity, fmt.Errorf("parse store is not configured"))
	}
	prefix := f.layout.ParsePrefix(identity.TaskType, identity.TaskID)
	objects, err := f.parse.ListObjects(ctx, prefix)
	if err != nil {
		return f.failed(retrieval.MethodBroadSearch, identity, fmt.Errorf("list %s: %w", prefix, err))
	}
	if len(objects) == 0 {
		return f.failed(retrieval.MethodBroadSearch, identity, fmt.Errorf("no files found at prefix %s", prefix))
	}
	objects = orderObjects(objects)

	logger := f.logger.With(zap.String("prefix", prefix))
	var (
		files []retrieval.FileRecord
		errs  []error
	)
	for i, obj := range objects {
		data, err := f.parse.GetObject(ctx, obj.Name)
		if err != nil {
			logger.Warn("broad read failed", zap.String("key", obj.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", obj.Name, err))
			continue
		}
		content, decodeErr := retrieval.Decode(data, decompress, strings.HasSuffix(obj.Name, ".gz"))
		if decodeErr != nil {
			logger.Warn("keeping raw bytes", zap.String("key", obj.Name), zap.Error(decodeErr))
		}
		original := path.Base(obj.Name)
		name := correctedName(original, content)
		if len(files) == 0 {
			name = retrieval.CanonicalParseName
		} else if name == retrieval.CanonicalParseName {
			name = fmt.Sprintf("parse_result.%d.json", i)
		}
		rec, err := f.sink.Save(ctx, identity, name, content.Bytes())
		if err != nil {
			logger.Warn("broad save failed", zap.String("key", obj.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", obj.Name, err))
			continue
		}
		rec.OriginalName = original
		files = append(files, rec)
	}
	if len(files) == 0 {
		return f.failed(retrieval.MethodBroadSearch, identity,
			fmt.Errorf("all %d object(s) under %s failed: %w", len(objects), prefix, errors.Join(errs...)))
	}
	logger.Info("broad search saved", zap.Int("files", len(files)), zap.Int("objects", len(objects)))
	return f.succeeded(retrieval.MethodBroadSearch, identity, files)
}

// orderObjects sorts by tier (.json, then .json.gz, then anything else) and
// by name within a tier.
func orderObjects(objects []retrieval.ObjectInfo) []retrieval.ObjectInfo {
	out := append([]retrieval.ObjectInfo(nil), objects...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := tier(out[i].Name), tier(out[j].Name)
		if ti != tj {
			return ti < tj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func tier(name string) int {
	switch {
	case strings.HasSuffix(name, ".json"):
		return 0
	case strings.HasSuffix(name, ".json.gz"):
		return 1
	default:
		return 2
	}
}

// correctedName drops a .gz suffix from decompressed objects and gives JSON
// content a .json extension.
func correctedName(name string, content retrieval.Content) string {
	if content.Decompressed() {
		name = strings.TrimSuffix(name, ".gz")
	}
	if !strings.HasSuffix(name, ".json") && content.IsJSON() {
		name = strings.TrimSuffix(name, path.Ext(name)) + ".json"
	}
	return name
}
