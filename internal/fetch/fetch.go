// Package fetch implements the retrieval strategies: direct pre-signed link
// downloads, precise and broad reads from the parse storage account, and raw
// input reads from the raw account. Every strategy writes through a Sink and
// reports a retrieval.Outcome; per-item failures are logged and absorbed.
package fetch

import (
	"fmt"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

const defaultDownloadTimeout = 30 * time.Second

// Deps bundles the collaborators a Fetcher needs. Only Sink is required;
// a strategy whose collaborator is missing reports a failed outcome.
type Deps struct {
	Downloader      retrieval.Downloader
	Parse           retrieval.ObjectStore
	Raw             retrieval.ObjectStore
	Sink            retrieval.Sink
	Layout          retrieval.Layout
	DownloadTimeout time.Duration
	Logger          *zap.Logger
}

// Fetcher runs the individual retrieval strategies.
type Fetcher struct {
	downloader retrieval.Downloader
	parse      retrieval.ObjectStore
	raw        retrieval.ObjectStore
	sink       retrieval.Sink
	layout     retrieval.Layout
	timeout    time.Duration
	logger     *zap.Logger
}

// New constructs a Fetcher.
func New(deps Deps) (*Fetcher, error) {
	if deps.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.DownloadTimeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &Fetcher{
		downloader: deps.Downloader,
		parse:      deps.Parse,
		raw:        deps.Raw,
		sink:       deps.Sink,
		layout:     deps.Layout,
		timeout:    timeout,
		logger:     logger.Named("fetch"),
	}, nil
}

// SavePath returns the directory artifacts for identity are written to.
func (f *Fetcher) SavePath(identity retrieval.TaskIdentity) string {
	return f.sink.Dir(identity)
}

func (f *Fetcher) failed(method retrieval.Method, identity retrieval.TaskIdentity, err error) retrieval.Outcome {
	out := retrieval.Failed(method, err)
	out.SavePath = f.sink.Dir(identity)
	return out
}

func (f *Fetcher) succeeded(
	method retrieval.Method,
	identity retrieval.TaskIdentity,
	files []retrieval.FileRecord,
) retrieval.Outcome {
	return retrieval.Outcome{
		Success:  true,
		Method:   method,
		Files:    files,
		SavePath: f.sink.Dir(identity),
	}
}

// redactURL drops the query string so pre-signed credentials never reach logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath()
}

// urlFileName returns the last path segment of a URL, or "" when none.
func urlFileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
