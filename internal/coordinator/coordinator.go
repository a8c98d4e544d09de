// Package coordinator implements the work-range coordinator for the
// distributed divisor search. See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/factorfarm/internal/logging"
	"github.com/dreamware/factorfarm/internal/metrics"
	"github.com/dreamware/factorfarm/internal/storage"
)

// Defaults applied by New for zero-valued Options fields.
const (
	DefaultRangeSize     int64 = 10000
	DefaultWorkerTimeout       = 5 * time.Minute
	recentDivisorsLimit        = 5
)

// Options configures a Coordinator.
type Options struct {
	// Logger receives structured logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics records activity. Defaults to metrics.Nop.
	Metrics metrics.Collector

	// Clock returns the current time. Defaults to time.Now; tests inject a
	// controllable clock to exercise liveness timeouts.
	Clock func() time.Time

	// RangeSize is the number of candidates per allocated range.
	// Zero selects DefaultRangeSize; negative values are rejected.
	RangeSize int64

	// WorkerTimeout is the silence after which a sweep evicts a worker.
	// Zero selects DefaultWorkerTimeout; negative values are rejected.
	WorkerTimeout time.Duration

	// AssignmentTTL releases ranges held longer than this on every sweep,
	// without evicting the worker. Zero disables it.
	AssignmentTTL time.Duration
}

// Submission is one worker's report for its assigned range.
type Submission struct {
	// ProposedWatermark is the highest candidate the worker claims to have
	// finished; nil when the worker did not report one.
	ProposedWatermark *int64
	WorkerID          string
	Origin            string
	Divisors          []storage.Divisor
}

// Ack summarizes an applied submission.
type Ack struct {
	DivisorsAccepted int   // Records appended by this submission
	DivisorsTotal    int   // Ledger length afterwards
	Watermark        int64 // Watermark afterwards
	Released         bool  // Whether an assignment was released
}

// Status is a point-in-time summary of coordinator state.
type Status struct {
	LastUpdate     time.Time
	RecentDivisors []storage.DivisorRecord
	Watermark      int64
	ActiveWorkers  int
	DivisorsFound  int
	ActiveRanges   int
}

// WorkerInfo describes a registered worker and its in-flight range, if any.
type WorkerInfo struct {
	Range *Range `json:"range,omitempty"`
	WorkerRecord
}

// SweepResult lists the workers affected by a sweep.
type SweepResult struct {
	Evicted []string // Workers removed for silence; their ranges were released
	Expired []string // Workers whose range outlived the assignment TTL
}

// Coordinator partitions the search space into non-overlapping ranges,
// tracks worker liveness, records divisors and advances the watermark.
//
// Architecture:
//
//	┌───────────────────────────────────────────┐
//	│               Coordinator                 │
//	├───────────────────────────────────────────┤
//	│  mu: one mutex for every operation        │
//	│  registry:  workerID → WorkerRecord       │
//	│  allocator: workerID → [start, end)       │
//	│  ledger:    []DivisorRecord (append-only) │
//	│  watermark: int64 (never decreases)       │
//	├───────────────────────────────────────────┤
//	│  store: storage.Store checkpoint          │
//	└───────────────────────────────────────────┘
//
// Concurrency Model:
//   - Every exported method runs inside a single critical section
//   - Persistence writes happen inside that critical section, so a later
//     write can never be overtaken by an earlier one
//   - The Reconciler uses the same methods and therefore the same lock
//
// The in-memory state is the source of truth while the process runs; the
// store is a best-effort checkpoint reloaded only at startup.
type Coordinator struct {
	lastUpdate    time.Time
	store         storage.Store
	metrics       metrics.Collector
	logger        *slog.Logger
	now           func() time.Time
	registry      *workerRegistry
	allocator     *rangeAllocator
	ledger        []storage.DivisorRecord
	mu            sync.Mutex
	rangeSize     int64
	watermark     int64
	workerTimeout time.Duration
	assignmentTTL time.Duration

	// set when the in-memory artifact differs from the last successful save
	watermarkDirty bool
	ledgerDirty    bool
}

// New creates a Coordinator and restores the watermark and ledger from
// store.
//
// Load failures never abort startup: a corrupt or unreadable watermark
// resets to storage.InitialWatermark and a corrupt ledger starts empty, with
// the anomaly logged. A reset is never written back on its own; the store
// only sees that artifact again after the next mutation.
//
// Parameters:
//   - store: persistence backend (required)
//   - opts: tuning, logging and metrics; zero values select defaults
//
// Returns:
//   - *Coordinator ready to serve requests
//   - ErrInvalidConfig if store is nil or a size/timeout is negative
//
// Example:
//
//	store, _ := storage.NewFileStore(".")
//	c, err := coordinator.New(store, coordinator.Options{RangeSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
func New(store storage.Store, opts Options) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if opts.RangeSize < 0 {
		return nil, fmt.Errorf("%w: range size must be positive, got %d", ErrInvalidConfig, opts.RangeSize)
	}
	if opts.WorkerTimeout < 0 {
		return nil, fmt.Errorf("%w: worker timeout must be positive, got %s", ErrInvalidConfig, opts.WorkerTimeout)
	}
	if opts.AssignmentTTL < 0 {
		return nil, fmt.Errorf("%w: assignment TTL must not be negative, got %s", ErrInvalidConfig, opts.AssignmentTTL)
	}
	if opts.RangeSize == 0 {
		opts.RangeSize = DefaultRangeSize
	}
	if opts.WorkerTimeout == 0 {
		opts.WorkerTimeout = DefaultWorkerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	c := &Coordinator{
		store:         store,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With("component", "coordinator"),
		now:           opts.Clock,
		registry:      newWorkerRegistry(),
		allocator:     newRangeAllocator(),
		rangeSize:     opts.RangeSize,
		workerTimeout: opts.WorkerTimeout,
		assignmentTTL: opts.AssignmentTTL,
	}
	c.lastUpdate = c.now()
	c.watermark = c.loadWatermark()
	c.ledger = c.loadLedger()

	c.logger.Info("coordinator initialized",
		"watermark", c.watermark,
		"divisors", len(c.ledger),
		"range_size", c.rangeSize,
		"worker_timeout", c.workerTimeout)
	c.recordGauges()
	return c, nil
}

func (c *Coordinator) loadWatermark() int64 {
	v, err := c.store.LoadWatermark()
	if err == nil {
		return v
	}
	if errors.Is(err, storage.ErrCorrupt) {
		c.logger.Warn("persisted watermark is invalid, resetting", "error", err, "watermark", storage.InitialWatermark)
		return storage.InitialWatermark
	}
	if v >= storage.InitialWatermark {
		// initialized but could not be written back
		c.logger.Error("failed to persist initial watermark", "error", err)
		c.watermarkDirty = true
		return v
	}
	c.logger.Error("persisted watermark unreadable, resetting", "error", err, "watermark", storage.InitialWatermark)
	return storage.InitialWatermark
}

func (c *Coordinator) loadLedger() []storage.DivisorRecord {
	records, err := c.store.LoadLedger()
	if err != nil {
		c.logger.Warn("persisted divisor ledger unusable, starting empty", "error", err)
		return []storage.DivisorRecord{}
	}
	if records == nil {
		records = []storage.DivisorRecord{}
	}
	return records
}

// Allocate hands workerID the next free range, registering or refreshing
// the worker first.
//
// The range starts at the watermark or after the end of every in-flight
// range, whichever is greater, so no two in-flight ranges overlap. A worker
// that already holds a range abandons it. The abandoned range is not
// recycled on purpose, but it is handed out again once it lies at or above
// the watermark with no in-flight range after it.
//
// Parameters:
//   - workerID: caller identity (must be non-empty)
//   - origin: caller address, recorded on the worker record
//
// Returns:
//   - Range assigned to workerID
//   - ErrValidation if workerID is empty
//   - ErrSpaceExhausted if the range would overflow int64
//
// Example:
//
//	r, err := c.Allocate("w1", "10.0.0.7")
//	// fresh state: r == Range{Start: 2, End: 10002}
func (c *Coordinator) Allocate(workerID, origin string) (Range, error) {
	if workerID == "" {
		return Range{}, fmt.Errorf("%w: worker_id is required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.registry.touch(workerID, origin, now)

	rng, replaced, err := c.allocator.allocate(workerID, c.rangeSize, c.watermark, now)
	if err != nil {
		c.logger.Error("range allocation failed", "worker_id", workerID, "error", err)
		return Range{}, err
	}
	if replaced {
		c.metrics.RecordReleasedAssignment("replaced")
		c.logger.Debug("worker abandoned previous range", "worker_id", workerID)
	}

	c.metrics.RecordAllocation(rng.Size())
	c.recordGauges()
	c.logger.Debug("range allocated", "worker_id", workerID, "start", rng.Start, "end", rng.End)
	return rng, nil
}

// Release removes workerID's assignment, if any, and reports whether one
// existed. Submit and sweeps call it internally; it is exported for callers
// that need to drop a range without a submission.
func (c *Coordinator) Release(workerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	released := c.allocator.release(workerID)
	if released {
		c.metrics.RecordReleasedAssignment("released")
		c.recordGauges()
	}
	return released
}

// Submit applies a worker's submission in one critical section.
//
// Processing order:
//  1. Reject an empty WorkerID with ErrValidation (no side effects)
//  2. Register or refresh the worker
//  3. Append one ledger record per divisor claim, then persist the ledger
//     once for the whole submission
//  4. Advance and persist the watermark if ProposedWatermark exceeds it
//  5. Release the worker's assignment
//
// Divisor claims are not checked against the target. A persistence failure
// is logged, leaves the in-memory update in place, and is reported as an
// error wrapping ErrPersistence alongside a populated Ack.
//
// Example:
//
//	wm := int64(10002)
//	ack, err := c.Submit(coordinator.Submission{
//	    WorkerID:          "w1",
//	    Divisors:          []storage.Divisor{"17"},
//	    ProposedWatermark: &wm,
//	})
func (c *Coordinator) Submit(s Submission) (Ack, error) {
	if s.WorkerID == "" {
		c.metrics.RecordRejectedSubmission()
		return Ack{}, fmt.Errorf("%w: worker_id is required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.registry.touch(s.WorkerID, s.Origin, now)

	var persistErrs []error
	if len(s.Divisors) > 0 {
		for _, d := range s.Divisors {
			c.ledger = append(c.ledger, storage.DivisorRecord{
				Divisor:   d,
				FoundBy:   s.WorkerID,
				Timestamp: now,
				Origin:    s.Origin,
			})
		}
		c.ledgerDirty = true
		c.logger.Info("divisors recorded", "worker_id", s.WorkerID, "divisors", s.Divisors, "total", len(c.ledger))
		if err := c.persistLedger(); err != nil {
			persistErrs = append(persistErrs, err)
		}
	}

	if s.ProposedWatermark != nil && *s.ProposedWatermark > c.watermark {
		if err := c.advanceWatermark(*s.ProposedWatermark, now); err != nil {
			persistErrs = append(persistErrs, err)
		}
	}

	released := c.allocator.release(s.WorkerID)
	if released {
		c.metrics.RecordReleasedAssignment("submitted")
	}

	c.metrics.RecordSubmission(len(s.Divisors))
	c.recordGauges()

	ack := Ack{
		DivisorsAccepted: len(s.Divisors),
		DivisorsTotal:    len(c.ledger),
		Watermark:        c.watermark,
		Released:         released,
	}
	if len(persistErrs) > 0 {
		return ack, fmt.Errorf("%w: %w", ErrPersistence, errors.Join(persistErrs...))
	}
	return ack, nil
}

// Sweep evicts workers silent for longer than the worker timeout, releasing
// their ranges, and releases ranges older than the assignment TTL when one
// is configured.
//
// Eviction is lazy: nothing calls Sweep on a timer. Status runs it, so a
// silent worker is only noticed when someone asks for status.
func (c *Coordinator) Sweep() SweepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepLocked()
}

func (c *Coordinator) sweepLocked() SweepResult {
	now := c.now()
	var result SweepResult

	result.Evicted = c.registry.sweep(now, c.workerTimeout)
	for _, id := range result.Evicted {
		if c.allocator.release(id) {
			c.metrics.RecordReleasedAssignment("evicted")
		}
		c.logger.Info("worker evicted", "worker_id", id, "timeout", c.workerTimeout)
	}
	if len(result.Evicted) > 0 {
		c.metrics.RecordEviction(len(result.Evicted))
	}

	if c.assignmentTTL > 0 {
		result.Expired = c.allocator.expire(now, c.assignmentTTL)
		for _, id := range result.Expired {
			c.metrics.RecordReleasedAssignment("expired")
			c.logger.Info("assignment expired", "worker_id", id, "ttl", c.assignmentTTL)
		}
	}

	c.recordGauges()
	return result
}

// Status sweeps stale workers and returns a summary of the current state.
// RecentDivisors holds at most the five newest ledger records, oldest first.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	recent := c.ledger
	if len(recent) > recentDivisorsLimit {
		recent = recent[len(recent)-recentDivisorsLimit:]
	}

	return Status{
		Watermark:      c.watermark,
		ActiveWorkers:  c.registry.countActive(),
		DivisorsFound:  len(c.ledger),
		LastUpdate:     c.lastUpdate,
		ActiveRanges:   c.allocator.count(),
		RecentDivisors: slices.Clone(recent),
	}
}

// Divisors returns a copy of the full divisor ledger in append order.
func (c *Coordinator) Divisors() []storage.DivisorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.ledger)
}

// Watermark returns the current watermark.
func (c *Coordinator) Watermark() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.watermark
}

// Assignment returns workerID's in-flight range, if any.
func (c *Coordinator) Assignment(workerID string) (Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.allocator.get(workerID)
}

// ActiveRanges returns every in-flight range ordered by start.
func (c *Coordinator) ActiveRanges() []Range {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.allocator.ranges()
}

// Workers lists registered workers sorted by id, each with its in-flight
// range if it holds one. It does not sweep.
func (c *Coordinator) Workers() []WorkerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := c.registry.list()
	out := make([]WorkerInfo, 0, len(records))
	for _, rec := range records {
		info := WorkerInfo{WorkerRecord: rec}
		if rng, ok := c.allocator.get(rec.ID); ok {
			info.Range = &rng
		}
		out = append(out, info)
	}
	return out
}

// Depart removes workerID from the registry and releases its range. It
// reports whether the worker was registered.
func (c *Coordinator) Depart(workerID string) (bool, error) {
	if workerID == "" {
		return false, fmt.Errorf("%w: worker_id is required", ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	known := c.registry.remove(workerID)
	if c.allocator.release(workerID) {
		c.metrics.RecordReleasedAssignment("departed")
	}
	if known {
		c.logger.Info("worker departed", "worker_id", workerID)
	}
	c.recordGauges()
	return known, nil
}

// Reconcile advances the watermark to the largest start among in-flight
// ranges when that exceeds it, and persists the result. It reports whether
// the watermark moved.
//
// Workers that never report a watermark still leave allocation facts
// behind; this pass turns those into recorded progress.
func (c *Coordinator) Reconcile() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	maxStart, ok := c.allocator.maxStart()
	if !ok || maxStart <= c.watermark {
		c.metrics.RecordReconcile(false)
		return false, nil
	}

	c.metrics.RecordReconcile(true)
	err := c.advanceWatermark(maxStart, c.now())
	c.logger.Info("watermark reconciled from in-flight ranges", "watermark", c.watermark)
	if err != nil {
		return true, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return true, nil
}

// Close writes every artifact whose last save failed, so the store catches
// up with memory. Artifacts already in sync are left untouched. It does not
// close the store, which belongs to the caller.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.watermarkDirty && !c.ledgerDirty {
		c.logger.Info("coordinator closed, store up to date", "watermark", c.watermark, "divisors", len(c.ledger))
		return nil
	}

	var errs []error
	if c.watermarkDirty {
		if err := c.persistWatermark(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ledgerDirty {
		if err := c.persistLedger(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPersistence, errors.Join(errs...))
	}
	c.logger.Info("coordinator state flushed", "watermark", c.watermark, "divisors", len(c.ledger))
	return nil
}

// advanceWatermark raises the watermark to v and persists it. Callers must
// hold c.mu and have checked v > c.watermark.
func (c *Coordinator) advanceWatermark(v int64, now time.Time) error {
	c.watermark = v
	c.watermarkDirty = true
	c.lastUpdate = now
	c.metrics.RecordWatermark(v)
	return c.persistWatermark()
}

func (c *Coordinator) persistWatermark() error {
	if err := c.store.SaveWatermark(c.watermark); err != nil {
		c.metrics.RecordPersistenceError("watermark")
		c.logger.Error("failed to persist watermark", "watermark", c.watermark, "error", err)
		return fmt.Errorf("save watermark: %w", err)
	}
	c.watermarkDirty = false
	return nil
}

func (c *Coordinator) persistLedger() error {
	if err := c.store.SaveLedger(c.ledger); err != nil {
		c.metrics.RecordPersistenceError("ledger")
		c.logger.Error("failed to persist divisor ledger", "divisors", len(c.ledger), "error", err)
		return fmt.Errorf("save ledger: %w", err)
	}
	c.ledgerDirty = false
	return nil
}

func (c *Coordinator) recordGauges() {
	c.metrics.RecordWatermark(c.watermark)
	c.metrics.RecordActiveWorkers(c.registry.countActive())
	c.metrics.RecordActiveAssignments(c.allocator.count())
}
