package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/factorfarm/internal/cluster"
	"github.com/dreamware/factorfarm/internal/coordinator"
	"github.com/dreamware/factorfarm/internal/logging"
	"github.com/dreamware/factorfarm/internal/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T) (*server, *coordinator.Coordinator, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	coord, err := coordinator.New(storage.NewMemoryStore(), coordinator.Options{Clock: clock.Now})
	require.NoError(t, err)
	return newServer(coord, logging.Discard(), "NPP"), coord, clock
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandleGetWork(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes(nil)

	rec := do(t, h, http.MethodGet, "/get_work?worker_id=w1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"worker_id":"w1","number_to_factor":"NPP","start_range":2,"end_range":10002,"range_size":10000}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/get_work?worker_id=w2", "")
	work := decode[cluster.WorkResponse](t, rec)
	assert.Equal(t, int64(10002), work.StartRange)
	assert.Equal(t, int64(20002), work.EndRange)
}

func TestHandleGetWorkGeneratesID(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.routes(nil)

	work := decode[cluster.WorkResponse](t, do(t, h, http.MethodGet, "/get_work", ""))
	assert.True(t, strings.HasPrefix(work.WorkerID, "worker_"), work.WorkerID)

	_, held := coord.Assignment(work.WorkerID)
	assert.True(t, held)

	other := decode[cluster.WorkResponse](t, do(t, h, http.MethodGet, "/get_work", ""))
	assert.NotEqual(t, work.WorkerID, other.WorkerID)
}

func TestHandleGetWorkRecordsOrigin(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.routes(nil)

	req := httptest.NewRequest(http.MethodGet, "/get_work?worker_id=w1", nil)
	req.RemoteAddr = "10.1.2.3:40000"
	h.ServeHTTP(httptest.NewRecorder(), req)

	workers := coord.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, "10.1.2.3", workers[0].Origin)
}

func TestHandleSubmitResult(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	h := srv.routes(nil)

	do(t, h, http.MethodGet, "/get_work?worker_id=w1", "")

	rec := do(t, h, http.MethodPost, "/submit_result", `{"worker_id":"w1","divisors":[17],"largest_prime_tested":10002}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[cluster.SubmitResponse](t, rec)
	assert.Equal(t, cluster.StatusSuccess, resp.Status)
	assert.Equal(t, 1, resp.DivisorsAccepted)
	assert.Equal(t, 1, resp.DivisorsFound)
	assert.Equal(t, int64(10002), resp.LargestPrimeTested)

	assert.Equal(t, int64(10002), coord.Watermark())
	_, held := coord.Assignment("w1")
	assert.False(t, held)

	ledger := coord.Divisors()
	require.Len(t, ledger, 1)
	assert.Equal(t, storage.Divisor("17"), ledger[0].Divisor)
	assert.Equal(t, "w1", ledger[0].FoundBy)
	assert.Equal(t, "192.0.2.1", ledger[0].Origin)
}

func TestHandleSubmitResultRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing worker id", `{"divisors":[17],"largest_prime_tested":99999}`},
		{"bad json", `{"worker_id":`},
		{"non-numeric divisor", `{"worker_id":"w1","divisors":[17,"x"],"largest_prime_tested":99999}`},
		{"non-numeric watermark", `{"worker_id":"w1","divisors":[17],"largest_prime_tested":"x"}`},
		{"fractional watermark", `{"worker_id":"w1","largest_prime_tested":1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, coord, _ := newTestServer(t)
			h := srv.routes(nil)
			do(t, h, http.MethodGet, "/get_work?worker_id=w1", "")

			rec := do(t, h, http.MethodPost, "/submit_result", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[cluster.ErrorResponse](t, rec)
			assert.Equal(t, cluster.StatusError, resp.Status)
			assert.NotEmpty(t, resp.Message)

			assert.Equal(t, storage.InitialWatermark, coord.Watermark())
			assert.Empty(t, coord.Divisors())
			_, held := coord.Assignment("w1")
			assert.True(t, held)
		})
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _, clock := newTestServer(t)
	h := srv.routes(nil)

	do(t, h, http.MethodGet, "/get_work?worker_id=w1", "")
	do(t, h, http.MethodGet, "/get_work?worker_id=w2", "")
	clock.Advance(time.Minute)
	do(t, h, http.MethodPost, "/submit_result", `{"worker_id":"w1","divisors":[3,5],"largest_prime_tested":10002}`)

	status := decode[cluster.StatusResponse](t, do(t, h, http.MethodGet, "/status", ""))
	assert.Equal(t, int64(10002), status.LargestPrimeTested)
	assert.Equal(t, 2, status.ActiveWorkers)
	assert.Equal(t, 2, status.DivisorsFound)
	assert.Equal(t, 1, status.WorkRangesActive)
	assert.Len(t, status.RecentDivisors, 2)
	assert.True(t, status.LastUpdate.Equal(clock.Now()))

	// w2 never reported back
	clock.Advance(5 * time.Minute)
	status = decode[cluster.StatusResponse](t, do(t, h, http.MethodGet, "/status", ""))
	assert.Equal(t, 1, status.ActiveWorkers)
	assert.Equal(t, 0, status.WorkRangesActive)
}

func TestHandleStatusEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv.routes(nil), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recent_divisors":[]`)
}

func TestHandleDivisors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes(nil)

	rec := do(t, h, http.MethodGet, "/divisors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"divisors":[],"total_count":0}`, rec.Body.String())

	do(t, h, http.MethodPost, "/submit_result", `{"worker_id":"w1","divisors":[340282366920938463463374607431768211507]}`)
	rec = do(t, h, http.MethodGet, "/divisors", "")
	assert.Contains(t, rec.Body.String(), `"divisor":340282366920938463463374607431768211507`)
	resp := decode[cluster.DivisorsResponse](t, rec)
	assert.Equal(t, 1, resp.TotalCount)
}

func TestHandleWorkersAndLeave(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes(nil)

	do(t, h, http.MethodGet, "/get_work?worker_id=w1", "")
	resp := decode[cluster.WorkersResponse](t, do(t, h, http.MethodGet, "/workers", ""))
	require.Len(t, resp.Workers, 1)
	assert.Equal(t, "w1", resp.Workers[0].ID)
	require.NotNil(t, resp.Workers[0].Range)
	assert.Equal(t, coordinator.Range{Start: 2, End: 10002}, *resp.Workers[0].Range)

	rec := do(t, h, http.MethodPost, "/leave", `{"worker_id":"w1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	resp = decode[cluster.WorkersResponse](t, do(t, h, http.MethodGet, "/workers", ""))
	assert.Empty(t, resp.Workers)

	rec = do(t, h, http.MethodPost, "/leave", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/leave", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes(nil)

	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/get_work"},
		{http.MethodGet, "/submit_result"},
		{http.MethodPut, "/status"},
		{http.MethodDelete, "/divisors"},
		{http.MethodPost, "/workers"},
		{http.MethodGet, "/leave"},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes(nil)

	rec := do(t, h, http.MethodOptions, "/submit_result", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	h := srv.routes(nil)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", "").Code)

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h = srv.routes(metricsHandler)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRemoteHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5000"
	assert.Equal(t, "::1", remoteHost(req))

	req.RemoteAddr = "not-a-hostport"
	assert.Equal(t, "not-a-hostport", remoteHost(req))
}
