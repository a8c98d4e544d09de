// Package metrics records coordinator activity. Collector is satisfied by a
// no-op implementation and by a Prometheus-backed one.
package metrics

// Collector defines methods for recording coordinator metrics.
//
// Implementations must be non-blocking and safe for concurrent use. The
// coordinator calls them while holding its lock.
type Collector interface {
	// RecordAllocation records a range handed to a worker.
	RecordAllocation(size int64)

	// RecordSubmission records an accepted submission and the number of
	// divisors it carried.
	RecordSubmission(divisors int)

	// RecordRejectedSubmission records a submission refused by validation.
	RecordRejectedSubmission()

	// RecordEviction records workers evicted by a liveness sweep.
	RecordEviction(count int)

	// RecordReleasedAssignment records assignments released for a reason
	// ("submitted", "evicted", "expired", "departed", "replaced").
	RecordReleasedAssignment(reason string)

	// RecordWatermark sets the current watermark gauge.
	RecordWatermark(value int64)

	// RecordActiveWorkers sets the active worker gauge.
	RecordActiveWorkers(count int)

	// RecordActiveAssignments sets the in-flight range gauge.
	RecordActiveAssignments(count int)

	// RecordPersistenceError records a failed write of the named artifact.
	RecordPersistenceError(artifact string)

	// RecordReconcile records a reconciler pass and whether it advanced the
	// watermark.
	RecordReconcile(advanced bool)
}

// Nop implements Collector and discards everything.
type Nop struct{}

var _ Collector = Nop{}

// NewNop returns a Collector that records nothing.
func NewNop() Nop { return Nop{} }

func (Nop) RecordAllocation(int64)          {}
func (Nop) RecordSubmission(int)            {}
func (Nop) RecordRejectedSubmission()       {}
func (Nop) RecordEviction(int)              {}
func (Nop) RecordReleasedAssignment(string) {}
func (Nop) RecordWatermark(int64)           {}
func (Nop) RecordActiveWorkers(int)         {}
func (Nop) RecordActiveAssignments(int)     {}
func (Nop) RecordPersistenceError(string)   {}
func (Nop) RecordReconcile(bool)            {}
