package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/dreamware/factorfarm/internal/cluster"
	"github.com/dreamware/factorfarm/internal/sieve"
	"github.com/dreamware/factorfarm/internal/storage"
)

type workerOptions struct {
	client     *cluster.Client
	target     *big.Int
	logger     *slog.Logger
	id         string
	retryDelay time.Duration
	timeout    time.Duration
}

// worker runs the request, search, submit cycle against one coordinator.
type worker struct {
	client     *cluster.Client
	target     *big.Int
	logger     *slog.Logger
	id         string
	retryDelay time.Duration
	timeout    time.Duration
	completed  int
}

func newWorker(opts workerOptions) *worker {
	if opts.retryDelay <= 0 {
		opts.retryDelay = 5 * time.Second
	}
	if opts.timeout <= 0 {
		opts.timeout = cluster.DefaultTimeout
	}
	return &worker{
		client:     opts.client,
		target:     opts.target,
		logger:     opts.logger.With("worker_id", opts.id),
		id:         opts.id,
		retryDelay: opts.retryDelay,
		timeout:    opts.timeout,
	}
}

// run loops until ctx is canceled. Coordinator errors are logged and retried
// after retryDelay; 4xx answers are logged at error level. On the way out the worker tells the coordinator it is
// leaving so its range is released at once.
func (w *worker) run(ctx context.Context) error {
	w.logger.Info("worker started", "coordinator", w.client.BaseURL(), "target_digits", len(w.target.String()))
	defer w.leave()

	for {
		if err := w.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if cluster.IsClientError(err) {
				// a rejected request is not fixed by sending it again; the
				// next cycle starts over with a fresh range
				w.logger.Error("coordinator rejected request", "error", err, "delay", w.retryDelay)
			} else {
				w.logger.Warn("work cycle failed, retrying", "error", err, "delay", w.retryDelay)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retryDelay):
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runOnce fetches one range, searches it and submits the result.
func (w *worker) runOnce(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	work, err := w.client.GetWork(reqCtx, w.id)
	cancel()
	if err != nil {
		return err
	}
	if work.WorkerID != "" {
		w.id = work.WorkerID
	}

	started := time.Now()
	found, err := sieve.Search(ctx, w.target, work.StartRange, work.EndRange)
	if err != nil {
		return err
	}

	divisors := make([]storage.Divisor, 0, len(found))
	for _, d := range found {
		divisors = append(divisors, storage.Divisor(d.String()))
	}
	tested := json.Number(strconv.FormatInt(work.EndRange, 10))

	reqCtx, cancel = context.WithTimeout(ctx, w.timeout)
	defer cancel()
	ack, err := w.client.Submit(reqCtx, cluster.SubmitRequest{
		WorkerID:           w.id,
		Divisors:           divisors,
		LargestPrimeTested: &tested,
	})
	if err != nil {
		return err
	}

	w.completed++
	if len(divisors) > 0 {
		w.logger.Info("divisors found", "range", work.Range().String(), "divisors", divisors)
	}
	w.logger.Debug("range completed",
		"range", work.Range().String(),
		"elapsed", time.Since(started),
		"watermark", ack.LargestPrimeTested,
		"completed", w.completed)
	return nil
}

func (w *worker) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.client.Leave(ctx, w.id); err != nil {
		w.logger.Warn("failed to leave coordinator", "error", err)
		return
	}
	w.logger.Info("worker stopped", "completed", w.completed)
}
