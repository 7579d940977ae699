package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// FetchDirect downloads each URL in order and saves every successful body as
// the canonical parse file. Failed URLs are logged and skipped.
func (f *Fetcher) FetchDirect(
	ctx context.Context,
	identity retrieval.TaskIdentity,
	urls []string,
	decompress bool,
) retrieval.Outcome {
	if len(urls) == 0 {
		return f.failed(retrieval.MethodDirectLink, identity, retrieval.ErrNoLinks)
	}
	if f.downloader == nil {
		return f.failed(retrieval.MethodDirectLink, identity, fmt.Errorf("downloader is not configured"))
	}

	logger := f.logger.With(
		zap.String("task_type", identity.TaskType),
		zap.String("task_id", identity.TaskID),
	)
	var (
		files []retrieval.FileRecord
		errs  []error
	)
	for _, link := range urls {
		rec, err := f.downloadOne(ctx, identity, link, decompress)
		if err != nil {
			logger.Warn("direct download failed", zap.String("url", redactURL(link)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", redactURL(link), err))
			continue
		}
		logger.Info("direct download saved",
			zap.String("url", redactURL(link)),
			zap.Int64("size", rec.SizeBytes),
		)
		files = append(files, rec)
	}
	if len(files) == 0 {
		return f.failed(retrieval.MethodDirectLink, identity,
			fmt.Errorf("no files downloaded from %d link(s): %w", len(urls), errors.Join(errs...)))
	}
	return f.succeeded(retrieval.MethodDirectLink, identity, files)
}

func (f *Fetcher) downloadOne(
	ctx context.Context,
	identity retrieval.TaskIdentity,
	link string,
	decompress bool,
) (retrieval.FileRecord, error) {
	if err := checkLink(link); err != nil {
		return retrieval.FileRecord{}, err
	}
	dlCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	dl, err := f.downloader.Download(dlCtx, link)
	if err != nil {
		return retrieval.FileRecord{}, fmt.Errorf("download: %w", err)
	}
	if dl.StatusCode < 200 || dl.StatusCode > 299 {
		return retrieval.FileRecord{}, fmt.Errorf("unexpected status %d", dl.StatusCode)
	}

	gz := strings.HasSuffix(strings.ToLower(urlFileName(link)), ".gz") ||
		strings.EqualFold(dl.Headers.Get("Content-Encoding"), "gzip")
	content, decodeErr := retrieval.Decode(dl.Body, decompress, gz)
	if decodeErr != nil {
		f.logger.Warn("keeping raw bytes", zap.String("url", redactURL(link)), zap.Error(decodeErr))
	}

	rec, err := f.sink.Save(ctx, identity, retrieval.CanonicalParseName, content.Bytes())
	if err != nil {
		return retrieval.FileRecord{}, err
	}
	rec.OriginalName = urlFileName(link)
	if rec.OriginalName == "" {
		rec.OriginalName = retrieval.CanonicalParseName
	}
	return rec, nil
}

func checkLink(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}
