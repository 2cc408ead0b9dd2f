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

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

var _ crawler.Fetcher = (*Fetcher)(nil)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Seen-Agent", r.UserAgent())
		w.Header().Set("X-Seen-Trace", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte(`<html><body><a href="/next">next</a></body></html>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetchReturnsPage(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	f := New(Config{UserAgent: "yacrawler-test"})

	page, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     server.URL + "/page",
		Depth:   3,
		Headers: http.Header{"X-Trace": {"yes"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, server.URL+"/page", page.Entry.URL)
	require.Equal(t, 3, page.Entry.Depth)
	require.Contains(t, string(page.Body), `href="/next"`)
	require.Equal(t, "yacrawler-test", page.Headers.Get("X-Seen-Agent"))
	require.Equal(t, "yes", page.Headers.Get("X-Seen-Trace"))
	require.False(t, page.FetchedAt.IsZero())
}

func TestFetchReturnsErrorStatusAsPage(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	page, err := New(Config{}).Fetch(context.Background(), crawler.FetchRequest{URL: server.URL + "/missing"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, page.StatusCode)
	require.Contains(t, string(page.Body), "gone")
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	page, err := New(Config{}).Fetch(context.Background(), crawler.FetchRequest{URL: server.URL + "/moved"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "next")
	require.Equal(t, server.URL+"/moved", page.Entry.URL)
}

func TestFetchCapsBody(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	page, err := New(Config{MaxBodyBytes: 100}).Fetch(context.Background(), crawler.FetchRequest{URL: server.URL + "/big"})
	require.NoError(t, err)
	require.Len(t, page.Body, 100)
}

func TestFetchTransportFailureIsNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL + "/page"
	server.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), crawler.FetchRequest{URL: target})
	var netErr *crawler.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, target, netErr.URL)
}

func TestFetchHonorsContext(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(Config{}).Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/slow"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, DefaultTimeout, f.cfg.Timeout)
	require.True(t, f.baseCollector.ParseHTTPErrorResponse)
	require.True(t, f.baseCollector.AllowURLRevisit)

	clone := f.buildCollector(context.Background(), crawler.FetchRequest{}, time.Now(), &crawler.Page{}, new(error))
	require.True(t, clone.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Depth:   1,
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var page crawler.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &page, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	require.Equal(t, http.StatusCreated, page.StatusCode)
	require.Equal(t, "body", string(page.Body))
	require.Equal(t, "ok", page.Headers.Get("X-Resp"))
	require.Equal(t, "https://example.com/final", page.FinalURL)
	require.Equal(t, crawler.Entry{URL: "https://example.com", Depth: 1}, page.Entry)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
