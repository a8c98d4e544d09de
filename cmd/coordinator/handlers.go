package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/dreamware/factorfarm/internal/cluster"
	"github.com/dreamware/factorfarm/internal/coordinator"
	"github.com/dreamware/factorfarm/internal/storage"
)

// maxBodyBytes caps request bodies; a submission carries at most a handful
// of divisors.
const maxBodyBytes = 1 << 20

// server adapts the coordinator to HTTP.
type server struct {
	coord       *coordinator.Coordinator
	logger      *slog.Logger
	newWorkerID func() string
	targetLabel string
}

func newServer(coord *coordinator.Coordinator, logger *slog.Logger, targetLabel string) *server {
	return &server{
		coord:       coord,
		logger:      logger.With("component", "http"),
		targetLabel: targetLabel,
		newWorkerID: func() string { return "worker_" + uuid.NewString() },
	}
}

// routes registers every endpoint. /metrics is only mounted when
// metricsHandler is non-nil.
func (s *server) routes(metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/get_work", s.handleGetWork)
	mux.HandleFunc("/submit_result", s.handleSubmitResult)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/divisors", s.handleDivisors)
	mux.HandleFunc("/workers", s.handleWorkers)
	mux.HandleFunc("/leave", s.handleLeave)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	return withCORS(mux)
}

// withCORS allows every origin and answers preflight requests directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleGetWork allocates the next range to the calling worker.
//
// Endpoint: GET /get_work?worker_id=<id>
//
// A missing worker_id is replaced with a generated "worker_<uuid>" id,
// which the response echoes back for the worker to reuse.
//
// Response:
//   - 200 OK: cluster.WorkResponse
//   - 503 Service Unavailable: candidate space exhausted
func (s *server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	workerID := r.URL.Query().Get("worker_id")
	if workerID == "" {
		workerID = s.newWorkerID()
	}

	rng, err := s.coord.Allocate(workerID, remoteHost(r))
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cluster.WorkResponse{
		WorkerID:       workerID,
		NumberToFactor: s.targetLabel,
		StartRange:     rng.Start,
		EndRange:       rng.End,
		RangeSize:      rng.Size(),
	})
}

// handleSubmitResult applies a worker's report.
//
// Endpoint: POST /submit_result
//
// The body is decoded in full before anything is applied, so a malformed
// divisor or watermark rejects the whole submission without side effects.
//
// Response:
//   - 200 OK: cluster.SubmitResponse
//   - 400 Bad Request: missing worker_id or malformed body
//   - 500 Internal Server Error: applied in memory but not persisted
func (s *server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cluster.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.logger.Warn("rejected submission", "error", err, "origin", remoteHost(r))
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sub, err := req.Submission(remoteHost(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ack, err := s.coord.Submit(sub)
	if err != nil {
		s.writeCoordinatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cluster.SubmitResponse{
		Status:             cluster.StatusSuccess,
		Message:            "result processed",
		DivisorsAccepted:   ack.DivisorsAccepted,
		DivisorsFound:      ack.DivisorsTotal,
		LargestPrimeTested: ack.Watermark,
	})
}

// handleStatus sweeps silent workers and reports a summary.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, cluster.NewStatusResponse(s.coord.Status()))
}

func (s *server) handleDivisors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ledger := s.coord.Divisors()
	if ledger == nil {
		ledger = []storage.DivisorRecord{}
	}
	writeJSON(w, http.StatusOK, cluster.DivisorsResponse{
		Divisors:   ledger,
		TotalCount: len(ledger),
	})
}

func (s *server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, cluster.WorkersResponse{Workers: s.coord.Workers()})
}

// handleLeave removes a worker that is shutting down and releases its range.
//
// Endpoint: POST /leave
//
// Response:
//   - 204 No Content: removed, or was not registered
//   - 400 Bad Request: missing worker_id or bad JSON
func (s *server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cluster.LeaveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := s.coord.Depart(req.WorkerID); err != nil {
		s.writeCoordinatorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeCoordinatorError maps coordinator sentinels to status codes.
func (s *server) writeCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coordinator.ErrSpaceExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, cluster.ErrorResponse{Status: cluster.StatusError, Message: msg})
}

// remoteHost returns the host part of the request's remote address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
