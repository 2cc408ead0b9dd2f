package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/yacrawler/internal/engine"
	"github.com/JakeFAU/yacrawler/internal/status"
)

const testRunID = "01890a5d-ac96-774b-bcce-b302099a8057"

type fakeEngine struct {
	snap engine.Snapshot
}

func (f fakeEngine) Snapshot() engine.Snapshot { return f.snap }

type brokenStore struct{}

func (brokenStore) Put(context.Context, status.RunStatus) error { return errors.New("down") }

func (brokenStore) Get(context.Context, string) (status.RunStatus, error) {
	return status.RunStatus{}, errors.New("down")
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	return NewServer(opts)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Options{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := serve(s, req)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestMetricsUsesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "yacrawler_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	s := newTestServer(t, Options{Gatherer: reg})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "yacrawler_test_total 3")
}

func TestCrawlStatus(t *testing.T) {
	t.Parallel()

	snap := engine.Snapshot{RunID: testRunID, Running: true, Active: 2, Backlog: 5, Seen: 9, Fetched: 3}
	s := newTestServer(t, Options{Engine: fakeEngine{snap: snap}})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Crawl engine.Snapshot `json:"crawl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, snap, body.Crawl)

	s = newTestServer(t, Options{})
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store := status.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), status.RunStatus{
		RunID:   testRunID,
		State:   status.StateCompleted,
		Fetched: 4,
	}))
	s := newTestServer(t, Options{Statuses: store})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/v1/runs/"+testRunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run status.RunStatus `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, testRunID, body.Run.RunID)
	require.Equal(t, status.StateCompleted, body.Run.State)
	require.Equal(t, 4, body.Run.Fetched)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/runs/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/runs/01890a5d-ac96-774b-bcce-b302099a8058", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunStoreFailures(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(t, Options{Statuses: brokenStore{}}),
		httptest.NewRequest(http.MethodGet, "/v1/runs/"+testRunID, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(newTestServer(t, Options{}),
		httptest.NewRequest(http.MethodGet, "/v1/runs/"+testRunID, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIKeyGuardsV1Routes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Options{Engine: fakeEngine{}, APIKey: "secret"})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("X-API-Key", "secret")
	require.Equal(t, http.StatusOK, serve(s, req).Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/status?api_key=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	_, err := rw.Write([]byte("tea"))
	require.NoError(t, err)
	rw.Flush()
	require.Equal(t, http.StatusTeapot, rw.status)
	require.True(t, rec.Flushed)

	_, _, err = rw.Hijack()
	require.Error(t, err)
}

func TestListenAndServe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	require.Error(t, ListenAndServe(context.Background(), "256.0.0.1:bad", http.NotFoundHandler(), nil))
}
