// Package cluster defines the HTTP/JSON contract between the coordinator
// and its workers, plus a small client for it.
//
// # Endpoints
//
//	GET  /get_work?worker_id=<id>   → WorkResponse
//	POST /submit_result             SubmitRequest → SubmitResponse
//	GET  /status                    → StatusResponse
//	GET  /divisors                  → DivisorsResponse
//	POST /leave                     LeaveRequest → 204
//	GET  /workers                   → WorkersResponse
//
// Errors are answered with an ErrorResponse of the form
// {"status":"error","message":"..."}; the client surfaces them as *HTTPError.
//
// # Decoding
//
// Divisors travel as bare JSON numbers so that values wider than 64 bits
// survive; quoted integers are accepted too. The watermark field
// largest_prime_tested must be an integer that fits in int64. Either
// violation rejects the request before it reaches the coordinator.
//
// # Client
//
//	c := cluster.NewClient("http://127.0.0.1:5000", nil)
//	work, err := c.GetWork(ctx, "worker-1")
//	if err != nil {
//	    return err
//	}
//	_, err = c.Submit(ctx, cluster.SubmitRequest{WorkerID: work.WorkerID})
package cluster
