package coordinator

import (
	"time"

	"golang.org/x/exp/slices"
)

// WorkerRecord is the liveness record of one worker identity.
type WorkerRecord struct {
	LastSeen time.Time `json:"last_seen"` // Last request or submission
	ID       string    `json:"id"`        // Worker-chosen identity
	Origin   string    `json:"origin"`    // Address the last request came from
}

// workerRegistry tracks which workers have been heard from recently.
//
// Not safe for concurrent use: every method must be called with the owning
// Coordinator's mutex held.
type workerRegistry struct {
	workers map[string]*WorkerRecord
}

func newWorkerRegistry() *workerRegistry {
	return &workerRegistry{workers: make(map[string]*WorkerRecord)}
}

// touch registers id if unseen, else refreshes LastSeen. An empty origin
// keeps the previously recorded one.
func (r *workerRegistry) touch(id, origin string, now time.Time) {
	rec, ok := r.workers[id]
	if !ok {
		r.workers[id] = &WorkerRecord{ID: id, Origin: origin, LastSeen: now}
		return
	}
	rec.LastSeen = now
	if origin != "" {
		rec.Origin = origin
	}
}

// sweep removes every worker silent for longer than timeout and returns
// their ids in sorted order.
func (r *workerRegistry) sweep(now time.Time, timeout time.Duration) []string {
	var evicted []string
	for id, rec := range r.workers {
		if now.Sub(rec.LastSeen) > timeout {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		delete(r.workers, id)
	}
	slices.Sort(evicted)
	return evicted
}

// remove deletes id and reports whether it was registered.
func (r *workerRegistry) remove(id string) bool {
	if _, ok := r.workers[id]; !ok {
		return false
	}
	delete(r.workers, id)
	return true
}

func (r *workerRegistry) countActive() int {
	return len(r.workers)
}

// list returns copies of all records sorted by id.
func (r *workerRegistry) list() []WorkerRecord {
	out := make([]WorkerRecord, 0, len(r.workers))
	for _, rec := range r.workers {
		out = append(out, *rec)
	}
	slices.SortFunc(out, func(a, b WorkerRecord) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
