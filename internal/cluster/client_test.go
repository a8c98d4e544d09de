package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/factorfarm/internal/storage"
)

func TestClientRoundTrip(t *testing.T) {
	var left string
	mux := http.NewServeMux()
	mux.HandleFunc("/get_work", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("worker_id")
		if id == "" {
			id = "worker_generated"
		}
		_ = json.NewEncoder(w).Encode(WorkResponse{WorkerID: id, StartRange: 2, EndRange: 12, RangeSize: 10})
	})
	mux.HandleFunc("/submit_result", func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Status: StatusError, Message: err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(SubmitResponse{Status: StatusSuccess, DivisorsAccepted: len(req.Divisors)})
	})
	mux.HandleFunc("/leave", func(w http.ResponseWriter, r *http.Request) {
		var req LeaveRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		left = req.WorkerID
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL+"/", nil)
	assert.Equal(t, ts.URL, c.BaseURL())
	ctx := context.Background()

	work, err := c.GetWork(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "worker_generated", work.WorkerID)

	work, err = c.GetWork(ctx, "w 1")
	require.NoError(t, err)
	assert.Equal(t, "w 1", work.WorkerID)

	wm := json.Number("12")
	ack, err := c.Submit(ctx, SubmitRequest{WorkerID: "w1", Divisors: []storage.Divisor{"3", "5"}, LargestPrimeTested: &wm})
	require.NoError(t, err)
	assert.Equal(t, 2, ack.DivisorsAccepted)

	require.NoError(t, c.Leave(ctx, "w1"))
	assert.Equal(t, "w1", left)
}

func TestClientHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Status: StatusError, Message: "worker_id is required"})
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, nil).Status(context.Background())
	require.Error(t, err)

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Equal(t, "worker_id is required", he.Message)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "worker_id is required")
}

func TestClientServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, nil).Divisors(context.Background())
	require.Error(t, err)
	assert.False(t, IsClientError(err))
}

func TestClientCanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(ts.URL, nil).GetWork(ctx, "w1")
	assert.ErrorIs(t, err, context.Canceled)
}
