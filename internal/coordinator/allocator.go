package coordinator

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/slices"
)

// Range is a half-open interval [Start, End) of candidate divisors.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Size returns the number of candidates in the range.
func (r Range) Size() int64 { return r.End - r.Start }

// Overlaps reports whether r and o share at least one candidate.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// assignment binds a range to a worker.
type assignment struct {
	assignedAt time.Time
	rng        Range
}

// rangeAllocator holds the in-flight assignments, at most one per worker.
//
// Not safe for concurrent use: every method must be called with the owning
// Coordinator's mutex held. The scan in allocate must not interleave with
// another allocate, or two workers could receive overlapping ranges.
type rangeAllocator struct {
	assignments map[string]assignment // workerID -> assignment
}

func newRangeAllocator() *rangeAllocator {
	return &rangeAllocator{assignments: make(map[string]assignment)}
}

// allocate places a range of size candidates at or above watermark and
// after the end of every in-flight range, binding it to workerID. A prior
// unfinished assignment for workerID is replaced; its range is not
// recycled. Returns whether a prior assignment was replaced.
//
// Implementation:
//  1. start = watermark
//  2. raise start to the end of any in-flight range that ends beyond it
//  3. end = start + size
//  4. record (or replace) the assignment
func (a *rangeAllocator) allocate(workerID string, size, watermark int64, now time.Time) (Range, bool, error) {
	start := watermark
	for _, as := range a.assignments {
		if as.rng.End > start {
			start = as.rng.End
		}
	}
	if start > math.MaxInt64-size {
		return Range{}, false, fmt.Errorf("%w: no room for %d candidates after %d", ErrSpaceExhausted, size, start)
	}

	rng := Range{Start: start, End: start + size}
	_, replaced := a.assignments[workerID]
	a.assignments[workerID] = assignment{rng: rng, assignedAt: now}
	return rng, replaced, nil
}

// release removes workerID's assignment and reports whether one existed.
func (a *rangeAllocator) release(workerID string) bool {
	if _, ok := a.assignments[workerID]; !ok {
		return false
	}
	delete(a.assignments, workerID)
	return true
}

// expire releases assignments held longer than ttl and returns the affected
// worker ids in sorted order.
func (a *rangeAllocator) expire(now time.Time, ttl time.Duration) []string {
	var expired []string
	for id, as := range a.assignments {
		if now.Sub(as.assignedAt) > ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(a.assignments, id)
	}
	slices.Sort(expired)
	return expired
}

// maxStart returns the largest Start among in-flight ranges.
func (a *rangeAllocator) maxStart() (int64, bool) {
	var (
		max   int64
		found bool
	)
	for _, as := range a.assignments {
		if !found || as.rng.Start > max {
			max = as.rng.Start
			found = true
		}
	}
	return max, found
}

func (a *rangeAllocator) get(workerID string) (Range, bool) {
	as, ok := a.assignments[workerID]
	return as.rng, ok
}

func (a *rangeAllocator) count() int {
	return len(a.assignments)
}

// ranges returns every in-flight range ordered by Start.
func (a *rangeAllocator) ranges() []Range {
	out := make([]Range, 0, len(a.assignments))
	for _, as := range a.assignments {
		out = append(out, as.rng)
	}
	slices.SortFunc(out, func(x, y Range) int {
		switch {
		case x.Start < y.Start:
			return -1
		case x.Start > y.Start:
			return 1
		}
		return 0
	})
	return out
}
