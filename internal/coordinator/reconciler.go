package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamware/factorfarm/internal/logging"
)

// DefaultReconcileInterval is how often the reconciler runs when no interval
// is configured.
const DefaultReconcileInterval = 2 * time.Hour

// Reconciler periodically recomputes the watermark from in-flight ranges
// and persists it, so progress is recorded even when workers never report a
// watermark of their own.
//
// It goes through Coordinator.Reconcile and therefore takes the same lock as
// request handlers. Passes never decrease the watermark.
// Thread-safe: Start and Stop may be called from any goroutine.
type Reconciler struct {
	coord    *Coordinator       // Coordinator whose watermark is advanced
	logger   *slog.Logger       // Component logger
	cancel   context.CancelFunc // Stops the running loop
	wg       sync.WaitGroup     // Wait group for graceful shutdown
	mu       sync.Mutex         // Protects cancel
	interval time.Duration      // Time between passes
}

// NewReconciler creates a reconciler for coord with the given interval.
// A non-positive interval selects DefaultReconcileInterval.
//
// Example:
//
//	r := NewReconciler(coord, 2*time.Hour, logger)
//	r.Start(ctx)
//	defer r.Stop()
func NewReconciler(coord *Coordinator, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{
		coord:    coord,
		interval: interval,
		logger:   logger.With("component", "reconciler"),
	}
}

// Interval returns the time between passes.
func (r *Reconciler) Interval() time.Duration { return r.interval }

// Start launches the reconcile loop in a new goroutine. The first pass runs
// one interval after Start. The loop ends when ctx is canceled or Stop is
// called. Calling Start on a running reconciler has no effect.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ticker.C:
			r.RunOnce()
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		}
	}
}

// RunOnce performs a single reconcile pass and reports whether the
// watermark advanced.
func (r *Reconciler) RunOnce() bool {
	advanced, err := r.coord.Reconcile()
	if err != nil {
		r.logger.Error("reconcile pass could not persist watermark", "error", err)
	}
	return advanced
}
