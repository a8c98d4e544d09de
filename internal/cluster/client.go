package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request made by a Client created without
// an explicit http.Client.
const DefaultTimeout = 10 * time.Second

// HTTPError reports a non-2xx answer. Message carries the server's
// ErrorResponse message when the body had one.
type HTTPError struct {
	URL        string
	Message    string
	StatusCode int
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %s: %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %s: %d", e.URL, e.StatusCode)
}

// IsClientError reports whether err is an HTTPError with a 4xx status.
func IsClientError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500
}

// PostJSON sends body as JSON to url and decodes the answer into out when
// out is non-nil.
func PostJSON(ctx context.Context, hc *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(hc, req, out)
}

// GetJSON fetches url and decodes the JSON answer into out.
func GetJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(hc, req, out)
}

func do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		he := &HTTPError{URL: req.URL.String(), StatusCode: resp.StatusCode}
		var er ErrorResponse
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); len(data) > 0 {
			if json.Unmarshal(data, &er) == nil {
				he.Message = er.Message
			}
		}
		return he
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Client talks to a coordinator over HTTP.
type Client struct {
	hc      *http.Client
	baseURL string
}

// NewClient creates a client for the coordinator at baseURL. A nil hc
// selects a client with DefaultTimeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

// BaseURL returns the coordinator address.
func (c *Client) BaseURL() string { return c.baseURL }

// GetWork requests a range for workerID. An empty id lets the coordinator
// generate one; it is returned in the response.
func (c *Client) GetWork(ctx context.Context, workerID string) (WorkResponse, error) {
	u := c.baseURL + "/get_work"
	if workerID != "" {
		u += "?" + url.Values{"worker_id": {workerID}}.Encode()
	}
	var out WorkResponse
	err := GetJSON(ctx, c.hc, u, &out)
	return out, err
}

// Submit reports a finished range.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := PostJSON(ctx, c.hc, c.baseURL+"/submit_result", req, &out)
	return out, err
}

// Status fetches the coordinator summary.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := GetJSON(ctx, c.hc, c.baseURL+"/status", &out)
	return out, err
}

// Divisors fetches the full divisor ledger.
func (c *Client) Divisors(ctx context.Context) (DivisorsResponse, error) {
	var out DivisorsResponse
	err := GetJSON(ctx, c.hc, c.baseURL+"/divisors", &out)
	return out, err
}

// Leave tells the coordinator that workerID is shutting down.
func (c *Client) Leave(ctx context.Context, workerID string) error {
	return PostJSON(ctx, c.hc, c.baseURL+"/leave", LeaveRequest{WorkerID: workerID}, nil)
}
