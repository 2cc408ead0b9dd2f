package promote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

var _ crawler.Fetcher = (*Fetcher)(nil)

func htmlPage(status int, body string) crawler.Page {
	return crawler.Page{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"text/html"}},
		Body:       []byte(body),
	}
}

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	tests := map[string]struct {
		page crawler.Page
		want bool
	}{
		"empty body":       {page: htmlPage(200, ""), want: true},
		"spa marker":       {page: htmlPage(200, `<div id="__next"></div>`), want: true},
		"script density":   {page: htmlPage(200, `<html><script>var a=1;</script><p>t</p></html>`), want: true},
		"unclosed script":  {page: htmlPage(200, `<p>x</p><script>var a=1;`), want: true},
		"plain article":    {page: htmlPage(200, `<html><body><p>A normal article body.</p></body></html>`), want: false},
		"not found":        {page: htmlPage(404, "not found"), want: false},
		"non html content": {page: crawler.Page{StatusCode: 200, Headers: http.Header{"Content-Type": {"application/json"}}}, want: false},
	}
	for name, tc := range tests {
		require.Equal(t, tc.want, h.ShouldPromote(tc.page), name)
	}
	require.Equal(t, DefaultBodyThreshold, NewHeuristic(0).BodyLengthThreshold)
}

type stubFetcher struct {
	page  crawler.Page
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, crawler.FetchRequest) (crawler.Page, error) {
	s.calls++
	return s.page, s.err
}

func TestFetcherPromotes(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{page: htmlPage(200, `<div id="root"></div>`)}
	headless := &stubFetcher{page: htmlPage(200, `<div id="root"><a href="https://example.com/x">x</a></div>`)}
	f, err := New(probe, headless, nil, zap.NewNop())
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Contains(t, string(page.Body), "href")
	require.Equal(t, 1, headless.calls)
}

func TestFetcherKeepsStaticPages(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{page: htmlPage(200, `<html><body><p>A normal article body.</p></body></html>`)}
	headless := &stubFetcher{}
	f, err := New(probe, headless, NewHeuristic(10), nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, probe.page, page)
	require.Zero(t, headless.calls)
}

func TestFetcherFallsBackToProbe(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{page: htmlPage(200, "")}
	headless := &stubFetcher{err: errors.New("chrome missing")}
	f, err := New(probe, headless, nil, nil)
	require.NoError(t, err)

	page, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, probe.page, page)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: "https://example.com"})
	var netErr *crawler.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestFetcherProbeFailure(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{err: &crawler.NetworkError{URL: "https://example.com", Err: errors.New("refused")}}
	headless := &stubFetcher{}
	f, err := New(probe, headless, nil, nil)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com"})
	require.Error(t, err)
	require.Zero(t, headless.calls)

	_, err = New(nil, headless, nil, nil)
	require.Error(t, err)
}
