package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dashpay/functest-runner/internal/job"
	"github.com/dashpay/functest-runner/internal/report"
	"github.com/dashpay/functest-runner/internal/scheduler"
	"github.com/dashpay/functest-runner/internal/tracing"
)

func newTestRouter(store *Store, metrics *report.Metrics) *mux.Router {
	r := mux.NewRouter()
	var h *Handler
	if metrics != nil {
		h = NewHandler(store, metrics.Registry())
	} else {
		h = NewHandler(store, nil)
	}
	h.RegisterRoutes(r)
	return r
}

func fixtureStore() *Store {
	start := time.Unix(1700000000, 0)
	s := NewStore("run-1", 3, start)
	s.SetQueue([]scheduler.JobInfo{{Name: "wallet_hd.py --descriptors", PortSeed: 1, Attempt: 2}}, 1)
	s.AddResult(job.NewResult("rpc_net.py", job.StatusPassed, 0, 1, start, start.Add(3*time.Second)))
	return s
}

func TestHealth(t *testing.T) {
	router := newTestRouter(fixtureStore(), nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "run-1", body["run_id"])
}

func TestListJobs(t *testing.T) {
	router := newTestRouter(fixtureStore(), nil)

	req := httptest.NewRequest("GET", "/jobs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Finished)
	assert.Equal(t, 1, st.Pending)
	require.Len(t, st.Running, 1)
	assert.Equal(t, 2, st.Running[0].Attempt)
	require.Len(t, st.Results, 1)
	assert.Equal(t, job.StatusPassed, st.Results[0].Status)
}

func TestListResultsFilter(t *testing.T) {
	store := fixtureStore()
	start := time.Now()
	store.AddResult(job.NewResult("p2p_ping.py", job.StatusFailed, 1, 1, start, start))
	router := newTestRouter(store, nil)

	tests := []struct {
		query string
		count float64
	}{
		{"", 2},
		{"?status=Failed", 1},
		{"?status=Skipped", 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/results"+tt.query, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.count, body["count"], tt.query)
	}

	// Filtering must not touch the stored results
	assert.Len(t, store.Snapshot().Results, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	m := report.NewMetrics("run-1")
	m.IncrLaunched()
	router := newTestRouter(fixtureStore(), m)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `testrunner_launches_total{run_id="run-1"} 1`)
}

func TestMetricsNotRegisteredWithoutGatherer(t *testing.T) {
	router := newTestRouter(fixtureStore(), nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerStartAndShutdown(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	srv, err := Start("127.0.0.1:0", NewHandler(fixtureStore(), nil), tracing.NewWithExporter("testrunner", exp), nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "run-1"))

	require.NoError(t, srv.Shutdown(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /healthz", spans[0].Name)
}

func TestSnapshotIsACopy(t *testing.T) {
	store := fixtureStore()
	snap := store.Snapshot()
	snap.Results[0].Name = "changed"
	snap.Running[0].Name = "changed"

	again := store.Snapshot()
	assert.Equal(t, "rpc_net.py", again.Results[0].Name)
	assert.Equal(t, "wallet_hd.py --descriptors", again.Running[0].Name)
}
