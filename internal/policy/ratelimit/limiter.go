// Package ratelimit throttles direct-link downloads per host with a token
// bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/parse-artifact-retriever/internal/metrics"
	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables
// throttling.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for rawURL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not worth a sample.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Downloader waits on a Limiter before delegating each download.
type Downloader struct {
	next    retrieval.Downloader
	limiter *Limiter
}

// Wrap returns next throttled by limiter.
func Wrap(next retrieval.Downloader, limiter *Limiter) *Downloader {
	return &Downloader{next: next, limiter: limiter}
}

// Download implements retrieval.Downloader.
func (d *Downloader) Download(ctx context.Context, rawURL string) (retrieval.Download, error) {
	if err := d.limiter.Wait(ctx, rawURL); err != nil {
		return retrieval.Download{}, err
	}
	return d.next.Download(ctx, rawURL)
}
