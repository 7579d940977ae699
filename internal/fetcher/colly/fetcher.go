// Package collyfetcher implements retrieval.Downloader using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps response bodies in bytes; 0 disables the cap.
	MaxBodySize int
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetcher downloads single URLs with the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Download executes a single HTTP GET using Colly. Non-2xx responses return
// a *StatusError alongside the partial Download.
func (f *Fetcher) Download(ctx context.Context, url string) (retrieval.Download, error) {
	var (
		result   retrieval.Download
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(result *retrieval.Download, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	// Colly treats 203 and above as errors unless told otherwise; status
	// classification happens in the response hook instead.
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodySize
	collector.SetRequestTimeout(f.cfg.Timeout)

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *retrieval.Download, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = toDownload(r)
		if !successful(r.StatusCode) {
			*fetchErr = &StatusError{URL: result.URL, StatusCode: r.StatusCode}
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = toDownload(r)
			if !successful(r.StatusCode) {
				*fetchErr = &StatusError{URL: result.URL, StatusCode: r.StatusCode}
				return
			}
		}
		*fetchErr = err
	})
}

func successful(status int) bool {
	return status >= 200 && status <= 299
}

func toDownload(r *colly.Response) retrieval.Download {
	d := retrieval.Download{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
	}
	if r.Request != nil && r.Request.URL != nil {
		d.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		d.Headers = r.Headers.Clone()
	}
	return d
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var statusErr *StatusError
		if errors.As(*fetchErr, &statusErr) {
			return statusErr
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
