package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mxshs/h2hcrawler/src/parser"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProgress parser.Snapshot

func (f fixedProgress) Snapshot() parser.Snapshot { return parser.Snapshot(f) }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "h2h_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	return NewRouter("run-7", fixedProgress{
		Total: 10, Processed: 4, OK: 3, LoadError: 1,
		Elapsed: 61500 * time.Millisecond, MemoryBytes: 2 << 20,
	}, reg)
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","run_id":"run-7"}`, w.Body.String())
}

func TestProgress(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/progress", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-7", body["run_id"])
	assert.Equal(t, float64(10), body["total"])
	assert.Equal(t, float64(4), body["processed"])
	assert.Equal(t, float64(1), body["load_error"])
	assert.Equal(t, "1m2s", body["elapsed"])
	assert.Equal(t, "2.1 MB", body["memory"])
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "h2h_test_total 3")
}
