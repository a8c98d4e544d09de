package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreamware/factorfarm/internal/coordinator"
	"github.com/dreamware/factorfarm/internal/storage"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WorkResponse answers GET /get_work.
type WorkResponse struct {
	WorkerID       string `json:"worker_id"`
	NumberToFactor string `json:"number_to_factor"`
	StartRange     int64  `json:"start_range"`
	EndRange       int64  `json:"end_range"`
	RangeSize      int64  `json:"range_size"`
}

// Range returns the assigned interval.
func (w WorkResponse) Range() coordinator.Range {
	return coordinator.Range{Start: w.StartRange, End: w.EndRange}
}

// SubmitRequest is the body of POST /submit_result.
//
// Divisor claims decode through storage.Divisor, so a malformed claim fails
// the whole request at decode time. LargestPrimeTested accepts a JSON number
// or a numeric string.
type SubmitRequest struct {
	LargestPrimeTested *json.Number      `json:"largest_prime_tested,omitempty"`
	WorkerID           string            `json:"worker_id"`
	Divisors           []storage.Divisor `json:"divisors,omitempty"`
}

// Submission converts the request into a coordinator submission attributed
// to origin. It fails with coordinator.ErrValidation when the worker id is
// missing or the watermark is not an integer.
func (r SubmitRequest) Submission(origin string) (coordinator.Submission, error) {
	if r.WorkerID == "" {
		return coordinator.Submission{}, fmt.Errorf("%w: worker_id is required", coordinator.ErrValidation)
	}
	s := coordinator.Submission{
		WorkerID: r.WorkerID,
		Origin:   origin,
		Divisors: r.Divisors,
	}
	if r.LargestPrimeTested != nil {
		v, err := r.LargestPrimeTested.Int64()
		if err != nil {
			return coordinator.Submission{}, fmt.Errorf("%w: largest_prime_tested %q is not an integer", coordinator.ErrValidation, r.LargestPrimeTested.String())
		}
		s.ProposedWatermark = &v
	}
	return s, nil
}

// SubmitResponse answers a successful POST /submit_result.
type SubmitResponse struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	DivisorsAccepted   int    `json:"divisors_accepted"`
	DivisorsFound      int    `json:"divisors_found"`
	LargestPrimeTested int64  `json:"largest_prime_tested"`
}

// ErrorResponse is the body of every 4xx/5xx JSON answer.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse answers GET /status.
type StatusResponse struct {
	LastUpdate         time.Time               `json:"last_update"`
	RecentDivisors     []storage.DivisorRecord `json:"recent_divisors"`
	LargestPrimeTested int64                   `json:"largest_prime_tested"`
	ActiveWorkers      int                     `json:"active_workers"`
	DivisorsFound      int                     `json:"divisors_found"`
	WorkRangesActive   int                     `json:"work_ranges_active"`
}

// NewStatusResponse renders a coordinator status.
func NewStatusResponse(s coordinator.Status) StatusResponse {
	recent := s.RecentDivisors
	if recent == nil {
		recent = []storage.DivisorRecord{}
	}
	return StatusResponse{
		LargestPrimeTested: s.Watermark,
		ActiveWorkers:      s.ActiveWorkers,
		DivisorsFound:      s.DivisorsFound,
		LastUpdate:         s.LastUpdate,
		WorkRangesActive:   s.ActiveRanges,
		RecentDivisors:     recent,
	}
}

// DivisorsResponse answers GET /divisors.
type DivisorsResponse struct {
	Divisors   []storage.DivisorRecord `json:"divisors"`
	TotalCount int                     `json:"total_count"`
}

// LeaveRequest is the body of POST /leave.
type LeaveRequest struct {
	WorkerID string `json:"worker_id"`
}

// WorkersResponse answers GET /workers.
type WorkersResponse struct {
	Workers []coordinator.WorkerInfo `json:"workers"`
}
