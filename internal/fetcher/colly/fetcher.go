// Package collyfetcher implements watcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

const (
	// DefaultTimeout bounds a single page fetch.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps the decoded response body.
	DefaultMaxBodySize = 32 << 20
)

var (
	// ErrStatus marks a response whose status code is not a success.
	ErrStatus = errors.New("unexpected status code")
	// ErrBodyTooLarge marks a response cut off at the body size limit.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize is the largest body accepted, in bytes. Larger pages fail
	// rather than being hashed from a truncated prefix.
	MaxBodySize int
}

// Fetcher implements watcher.Fetcher using the Colly collector.
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
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch issues a single GET for url. Network failures and non-2xx statuses
// are returned as errors; nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) (watcher.Page, error) {
	var (
		result   watcher.Page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return watcher.Page{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	result *watcher.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	// The same URL is fetched on every check.
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	// One byte past the limit tells a page that fits from one colly cut short.
	collector.MaxBodySize = f.cfg.MaxBodySize + 1

	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *watcher.Page,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			*fetchErr = fmt.Errorf("%w: %d", ErrStatus, r.StatusCode)
			return
		}
		if len(r.Body) > f.cfg.MaxBodySize {
			*fetchErr = fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.cfg.MaxBodySize)
			return
		}
		*result = watcher.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       decodeBody(r.Body, contentType(r)),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("%w: %d: %v", ErrStatus, r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func contentType(r *colly.Response) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// decodeBody returns body as UTF-8. Colly already converts bodies whose
// Content-Type names a charset; anything still invalid is decoded using the
// BOM, the header and the document's <meta> declaration, in that order.
func decodeBody(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return append([]byte(nil), body...)
	}
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return append([]byte(nil), body...)
	}
	return decoded
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
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
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
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
