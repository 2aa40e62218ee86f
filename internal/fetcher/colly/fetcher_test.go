package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

func TestFetcherFetchSuccess(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><main>notes</main></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "watcher-test", Timeout: 5 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "<html><main>notes</main></html>", string(page.Body))
	assert.Equal(t, "watcher-test", <-agents)

	// Repeated fetches of the same URL must not be deduplicated.
	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestFetcherFetchErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFetcherFetchNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), addr)
	require.Error(t, err)
}

func TestFetcherFetchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	assert.Equal(t, DefaultTimeout, f.cfg.Timeout)
	assert.Equal(t, DefaultMaxBodySize, f.cfg.MaxBodySize)
}

func TestFetcherRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><main>" + strings.Repeat("x", 256) + "</main></html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second, MaxBodySize: 64})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrBodyTooLarge)

	// A body exactly at the limit is accepted whole.
	exact := New(Config{Timeout: 5 * time.Second, MaxBodySize: len("<html><main>" + strings.Repeat("x", 256) + "</main></html>")})
	page, err := exact.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "</main></html>")
}

func TestFetcherDecodesLegacyCharset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{
			name:        "charset in header",
			contentType: "text/html; charset=ISO-8859-1",
			body:        []byte("<html><main>caf\xe9</main></html>"),
		},
		{
			name:        "charset in meta",
			contentType: "text/html",
			body:        []byte(`<html><head><meta charset="iso-8859-1"></head><main>caf` + "\xe9" + `</main></html>`),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			f := New(Config{Timeout: 5 * time.Second})
			page, err := f.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.True(t, utf8.Valid(page.Body))
			assert.Contains(t, string(page.Body), "café")
		})
	}
}

func TestDecodeBodyKeepsUTF8(t *testing.T) {
	t.Parallel()

	body := []byte("<main>café</main>")
	assert.Equal(t, body, decodeBody(body, "text/html; charset=windows-1252"))
}

func TestBuildCollectorSettings(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second})
	collector := f.buildCollector(context.Background(), time.Unix(0, 0), &watcher.Page{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.False(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var result watcher.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "https://example.com", result.URL)
	assert.NoError(t, fetchErr)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusNotModified,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.True(t, errors.Is(fetchErr, ErrStatus))

	hooks.onError(nil, errors.New("boom"))
	require.Error(t, fetchErr)
	assert.Equal(t, "boom", fetchErr.Error())
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
