package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/yacrawler/internal/status"
)

func TestHTTPMetricsRecordRoutePattern(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	srv := newTestServer(t, Options{Gatherer: reg, Registerer: reg, Statuses: status.NewMemoryStore()})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/runs/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	m, err := NewHTTPMetrics(reg)
	require.NoError(t, err)
	require.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/healthz", "200")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/v1/runs/{run_id}", "400")), 0)
	require.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := NewHTTPMetrics(reg)
	require.NoError(t, err)
	second, err := NewHTTPMetrics(reg)
	require.NoError(t, err)
	require.Same(t, first.requests, second.requests)
}
